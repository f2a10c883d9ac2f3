package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixelnerd/internal/store"
)

// historyCmd prints a conversation's persisted messages.
var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show the persisted messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewLocalStore(cfg.Store.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		cc, err := st.GetContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cc == nil {
			return fmt.Errorf("conversation %q not found", args[0])
		}

		fmt.Println(titleStyle.Render("Conversation " + cc.ConversationID))
		for _, m := range cc.Messages {
			fmt.Printf("%s %s\n", labelStyle.Render(m.Role+":"), m.Content)
		}
		if cc.LastAnalysis != nil {
			fmt.Println()
			fmt.Print(renderAnalysis(*cc.LastAnalysis))
		}
		return nil
	},
}

var pruneKeep int

// pruneCmd enforces the retention ceiling.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Trim old conversations and the learning record to the retention ceiling",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewLocalStore(cfg.Store.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		keep := pruneKeep
		if keep <= 0 {
			keep = cfg.Store.RetentionCeiling
		}
		removed, err := st.Prune(cmd.Context(), keep)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d conversations and %d executions, keeping the %d most recent of each\n",
			removed.Conversations, removed.Executions, keep)
		return nil
	},
}

// statsCmd summarizes what the store has learned.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store contents and the active similarity backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewLocalStore(cfg.Store.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Store"))
		fmt.Printf("%s %s\n", labelStyle.Render("database:      "), st.Path())
		fmt.Printf("%s %d\n", labelStyle.Render("conversations: "), s.Conversations)
		fmt.Printf("%s %d\n", labelStyle.Render("messages:      "), s.Messages)
		fmt.Printf("%s %d\n", labelStyle.Render("executions:    "), s.Executions)
		fmt.Printf("%s %s\n", labelStyle.Render("backend:       "), s.Backend)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "conversations and executions to keep (default: config retention ceiling)")
}

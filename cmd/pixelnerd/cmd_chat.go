package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pixelnerd/internal/analysis"
	"pixelnerd/internal/llm"
	"pixelnerd/internal/orchestrator"
	"pixelnerd/internal/results"
	"pixelnerd/internal/store"
	"pixelnerd/internal/tools"
	"pixelnerd/internal/types"
)

var (
	chatImage        string
	chatConversation string
	chatSkipVerify   bool
	chatDPI          int
)

// chatCmd runs one grounded editing turn.
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run one editing request through the grounded pipeline",
	Long: `Sends one natural-language editing request. The image is analyzed
first, the model sees the measured facts, and every tool call it proposes is
validated against them before anything executes.

Example:
  pixelnerd chat --image logo.png "remove the blue background"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatImage == "" {
			return fmt.Errorf("--image is required")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		client, err := llm.NewClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		st, err := store.NewLocalStore(cfg.Store.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		conversationID := chatConversation
		if conversationID == "" {
			conversationID = uuid.NewString()
		}

		var checker orchestrator.ResultChecker
		if !chatSkipVerify {
			checker = results.NewChecker()
		}
		executor := tools.NewHTTPExecutor(cfg.Executor.BaseURL, cfg.ExecutorTimeout())

		o := orchestrator.New(client, executor, st, checker)
		o.SetUpscaleLimit(cfg.Limits.MaxUpscalePixels)
		o.SetAnalysisOptions(analysis.Options{
			DPI:       chatDPI,
			MaxColors: cfg.Limits.MaxDominantColors,
		})
		res := o.Run(cmd.Context(), types.TurnRequest{
			ConversationID: conversationID,
			Message:        joinArgs(args),
			ImageRef:       chatImage,
		})

		fmt.Print(renderTurn(res))
		fmt.Println(labelStyle.Render("conversation: " + conversationID))
		if res.ErrorClass != types.ErrorClassNone {
			return fmt.Errorf("turn aborted (%s)", res.ErrorClass)
		}
		return nil
	},
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func init() {
	chatCmd.Flags().StringVarP(&chatImage, "image", "i", "", "image to edit (file path, URL, or data URI)")
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "continue an existing conversation")
	chatCmd.Flags().BoolVar(&chatSkipVerify, "skip-verify", false, "skip post-execution pixel verification")
	chatCmd.Flags().IntVar(&chatDPI, "dpi", 0, "known pixel density of the image (0 = unknown)")
}

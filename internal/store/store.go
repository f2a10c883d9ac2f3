// Package store persists conversations and the learning record of successful
// tool executions. The learning side is gated hard: only executions that both
// succeeded and scored at least minStoreConfidence are admitted, because the
// store's sole purpose is to bias future parameter choices toward known-good
// values. Admitting failures would poison that signal.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pixelnerd/internal/logging"
	"pixelnerd/internal/types"
)

// minStoreConfidence is the admission gate for the learning record.
const minStoreConfidence = 70.0

// LocalStore is the SQLite-backed context and learning store.
type LocalStore struct {
	db      *sql.DB
	dbPath  string
	backend types.SimilarityBackend
	mu      sync.RWMutex
}

// NewLocalStore creates or opens the store at dbPath. A nil backend selects
// the built-in SQLite similarity backend; inject NoopBackend to run in
// degraded mode (learning retrieval disabled, nothing errors).
func NewLocalStore(dbPath string, backend types.SimilarityBackend) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &LocalStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if backend == nil {
		backend = NewSQLiteBackend(db)
	}
	s.backend = backend
	logging.Store("opened %s (similarity backend: %s)", dbPath, backend.Name())
	return s, nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Backend names the active similarity backend.
func (s *LocalStore) Backend() string {
	return s.backend.Name()
}

func (s *LocalStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		analysis_json TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_conversation ON analyses(conversation_id, analyzed_at);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		parameters_json TEXT NOT NULL,
		success INTEGER NOT NULL,
		confidence REAL NOT NULL,
		metrics_json TEXT NOT NULL,
		specs_json TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_tool ON executions(tool_name, timestamp);

	CREATE TABLE IF NOT EXISTS features (
		execution_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTurn persists the turn's messages and, when present, the image analysis
// that grounded it. The conversation row is created on first use.
func (s *LocalStore) SaveTurn(ctx context.Context, conversationID string, msgs []types.ChatMessage, img *types.ImageAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning turn transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		conversationID, now, now); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), conversationID, m.Role, m.Content, ts); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	if img != nil && img.Confidence > 0 {
		blob, err := json.Marshal(img)
		if err != nil {
			return fmt.Errorf("marshaling analysis: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO analyses (id, conversation_id, analysis_json, analyzed_at)
			VALUES (?, ?, ?, ?)`,
			uuid.NewString(), conversationID, string(blob), img.AnalyzedAt.UTC()); err != nil {
			return fmt.Errorf("inserting analysis: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	logging.StoreDebug("saved turn for %s (%d messages)", conversationID, len(msgs))
	return nil
}

// StoreExecution admits a tool execution into the learning record. The
// success plus confidence gate is applied here, not by callers: a rejected
// execution is recorded nowhere and the call still succeeds, returning false.
func (s *LocalStore) StoreExecution(ctx context.Context, conversationID string, exec types.ToolExecution) (bool, error) {
	if !exec.Success || exec.Confidence < minStoreConfidence {
		logging.StoreDebug("execution of %s rejected by gate (success=%v confidence=%.0f)",
			exec.ToolName, exec.Success, exec.Confidence)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now().UTC()
	}

	params, err := json.Marshal(exec.Parameters)
	if err != nil {
		return false, fmt.Errorf("marshaling parameters: %w", err)
	}
	metrics, err := json.Marshal(exec.Metrics)
	if err != nil {
		return false, fmt.Errorf("marshaling metrics: %w", err)
	}
	specs, err := json.Marshal(exec.ImageSpecs)
	if err != nil {
		return false, fmt.Errorf("marshaling image specs: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, conversation_id, tool_name, parameters_json,
			success, confidence, metrics_json, specs_json, timestamp)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		exec.ID, conversationID, exec.ToolName, string(params),
		exec.Confidence, string(metrics), string(specs), exec.Timestamp.UTC()); err != nil {
		return false, fmt.Errorf("inserting execution: %w", err)
	}

	if err := s.backend.Insert(ctx, exec.ID, FeatureVector(exec.ImageSpecs)); err != nil {
		// The execution row stands; only retrieval quality suffers.
		logging.Store("feature insert failed for %s: %v", exec.ID, err)
	}

	logging.Store("stored execution %s of %s (confidence %.0f)", exec.ID, exec.ToolName, exec.Confidence)
	return true, nil
}

// FindSimilar retrieves past successful executions of toolName on images
// resembling the given analysis, most similar first. A degraded backend
// yields an empty slice, never an error.
func (s *LocalStore) FindSimilar(ctx context.Context, toolName string, img types.ImageAnalysis, limit int) ([]types.ToolExecution, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Over-fetch because matches span all tools and get filtered below.
	matches, err := s.backend.Search(ctx, FeatureVector(img.Snapshot()), limit*4)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	var out []types.ToolExecution
	for _, m := range matches {
		exec, err := s.getExecution(ctx, m.ExecutionID)
		if err != nil {
			return nil, err
		}
		if exec == nil || exec.ToolName != toolName {
			continue
		}
		out = append(out, *exec)
		if len(out) == limit {
			break
		}
	}
	logging.StoreDebug("found %d similar executions of %s", len(out), toolName)
	return out, nil
}

func (s *LocalStore) getExecution(ctx context.Context, id string) (*types.ToolExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, tool_name, parameters_json, success,
			confidence, metrics_json, specs_json, timestamp
		FROM executions WHERE id = ?`, id)

	var exec types.ToolExecution
	var params, metrics, specs string
	var success int
	if err := row.Scan(&exec.ID, &exec.ConversationID, &exec.ToolName, &params,
		&success, &exec.Confidence, &metrics, &specs, &exec.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading execution %s: %w", id, err)
	}
	exec.Success = success != 0

	if err := json.Unmarshal([]byte(params), &exec.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshaling parameters for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(metrics), &exec.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshaling metrics for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(specs), &exec.ImageSpecs); err != nil {
		return nil, fmt.Errorf("unmarshaling image specs for %s: %w", id, err)
	}
	return &exec, nil
}

// GetContext loads the full persisted state of a conversation: its messages
// in order plus the most recent image analysis, if any.
func (s *LocalStore) GetContext(ctx context.Context, conversationID string) (*types.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cc := &types.ConversationContext{ConversationID: conversationID}
	row := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM conversations WHERE id = ?`, conversationID)
	if err := row.Scan(&cc.CreatedAt, &cc.LastUpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation %s: %w", conversationID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM messages
		WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("reading message row: %w", err)
		}
		cc.Messages = append(cc.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	var blob string
	err = s.db.QueryRowContext(ctx, `
		SELECT analysis_json FROM analyses
		WHERE conversation_id = ? ORDER BY analyzed_at DESC LIMIT 1`, conversationID).Scan(&blob)
	if err == nil {
		var img types.ImageAnalysis
		if err := json.Unmarshal([]byte(blob), &img); err != nil {
			return nil, fmt.Errorf("unmarshaling analysis: %w", err)
		}
		cc.LastAnalysis = &img
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading latest analysis: %w", err)
	}

	return cc, nil
}

// PruneResult reports what a Prune removed.
type PruneResult struct {
	Conversations int
	Executions    int
}

// Prune enforces the retention ceiling: conversations beyond the keepCount
// most recently updated are removed oldest-first, cascading their messages
// and analyses, and the learning record is trimmed to the keepCount most
// recent executions, dropping their feature vectors alongside.
func (s *LocalStore) Prune(ctx context.Context, keepCount int) (PruneResult, error) {
	if keepCount < 0 {
		keepCount = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PruneResult{}, fmt.Errorf("beginning prune transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY updated_at DESC, id LIMIT ?
		)`, keepCount)
	if err != nil {
		return PruneResult{}, fmt.Errorf("pruning conversations: %w", err)
	}
	convRemoved, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return PruneResult{}, fmt.Errorf("pruning messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM analyses WHERE conversation_id NOT IN (SELECT id FROM conversations)`); err != nil {
		return PruneResult{}, fmt.Errorf("pruning analyses: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM executions WHERE id NOT IN (
			SELECT id FROM executions ORDER BY timestamp DESC, id LIMIT ?
		)`, keepCount)
	if err != nil {
		return PruneResult{}, fmt.Errorf("pruning executions: %w", err)
	}
	execRemoved, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM features WHERE execution_id NOT IN (SELECT id FROM executions)`); err != nil {
		return PruneResult{}, fmt.Errorf("pruning feature vectors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PruneResult{}, fmt.Errorf("committing prune: %w", err)
	}
	removed := PruneResult{Conversations: int(convRemoved), Executions: int(execRemoved)}
	if removed.Conversations > 0 || removed.Executions > 0 {
		logging.Store("pruned %d conversations and %d executions (keeping %d of each)",
			removed.Conversations, removed.Executions, keepCount)
	}
	return removed, nil
}

// Stats summarizes the store for the CLI.
type Stats struct {
	Conversations int
	Messages      int
	Executions    int
	Backend       string
}

// GetStats counts the persisted rows.
func (s *LocalStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Backend: s.backend.Name()}
	for _, q := range []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM conversations`, &st.Conversations},
		{`SELECT COUNT(*) FROM messages`, &st.Messages},
		{`SELECT COUNT(*) FROM executions`, &st.Executions},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("counting rows: %w", err)
		}
	}
	return st, nil
}

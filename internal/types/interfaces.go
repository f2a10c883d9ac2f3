package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns the
	// response together with any tool calls the model proposed.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
}

// ToolExecutor is the external collaborator that actually runs an image
// operation. It receives only validated parameter maps. Failure is signaled
// by an error with a human-readable message.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall, imageRef string) (*ToolOutput, error)
}

// SimilarityBackend is the pluggable vector-similarity storage behind the
// learning store. A no-op implementation is the store's degraded mode: it
// accepts writes silently and finds nothing, and must never return an error
// for that reason.
type SimilarityBackend interface {
	// Insert associates an execution ID with its feature vector.
	Insert(ctx context.Context, executionID string, features []float32) error
	// Search returns up to limit execution IDs ranked by similarity.
	Search(ctx context.Context, features []float32, limit int) ([]SimilarityMatch, error)
	// Name identifies the backend in logs and stats.
	Name() string
}

// SimilarityMatch is one ranked result from a similarity search.
type SimilarityMatch struct {
	ExecutionID string
	Similarity  float64 // cosine similarity, higher is closer
}

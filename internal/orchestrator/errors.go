package orchestrator

import (
	"context"
	"errors"
	"strings"

	"pixelnerd/internal/types"
)

// ClassifyError buckets a turn-aborting LLM failure so the caller can decide
// whether a retry makes sense. The orchestrator itself never retries.
func ClassifyError(err error) types.ErrorClass {
	if err == nil {
		return types.ErrorClassNone
	}
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return types.ErrorClassTimeout

	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "overloaded"):
		return types.ErrorClassRateLimit

	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "not configured"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "status 401"),
		strings.Contains(msg, "status 403"),
		strings.Contains(msg, "unknown llm provider"):
		return types.ErrorClassConfiguration

	default:
		return types.ErrorClassUnknown
	}
}

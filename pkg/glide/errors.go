package glide

import (
	"fmt"
	"time"

	"github.com/rowsync-inc/rowsync-engine/pkg/models"
)

// APIError is a classified failure from the Glide API. Kind is one of the
// ledger error types (RATE_LIMIT, API_ERROR, NETWORK_ERROR).
type APIError struct {
	Kind       string
	StatusCode int
	Message    string
	RetryAfter time.Duration // 429 Retry-After hint, zero when absent
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsRetryable reports whether a later run may succeed without operator
// intervention. Satisfies the retry package's RetryableError interface.
func (e *APIError) IsRetryable() bool {
	return e.Kind == models.ErrorTypeRateLimit || e.Kind == models.ErrorTypeNetwork ||
		e.StatusCode >= 500
}

// RetryDelayHint exposes the 429 Retry-After hint to the retry package's
// wait calculation. Zero means no hint.
func (e *APIError) RetryDelayHint() time.Duration {
	return e.RetryAfter
}

package client

import (
	"errors"
	"fmt"
)

// ErrUpstreamTimeout indicates a call exceeded its wall-clock timeout.
// The client does not retry timeouts; that decision belongs to the caller.
var ErrUpstreamTimeout = errors.New("upstream request timed out")

// ErrRateLimitExhausted indicates the 429 retry budget was spent.
var ErrRateLimitExhausted = errors.New("upstream rate limit retry budget exhausted")

// UpstreamError is a non-retryable HTTP failure (status >= 400, not 429).
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// IsUpstreamError reports whether err wraps an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

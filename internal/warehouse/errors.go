package warehouse

import (
	"errors"
	"fmt"
	"strings"
)

// WriteError carries the non-empty per-row error list from an insert.
// A non-empty list is always a hard failure for the caller; it is never
// silently dropped.
type WriteError struct {
	Table string
	Errs  []error
}

func (e *WriteError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("warehouse write to %s failed for %d row(s): %s",
		e.Table, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *WriteError) Unwrap() []error {
	return e.Errs
}

// IsWriteError reports whether err wraps a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

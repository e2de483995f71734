package retry

import (
	"fmt"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// ErrRetryLimitExceeded matches any *RetryLimitExceededError through errors.Is.
var ErrRetryLimitExceeded = mboxdb.ErrRetryLimitExceeded

// RetryLimitExceededError is returned when every permitted attempt failed
// with a transient error. Err is the error of the last attempt.
type RetryLimitExceededError struct {
	Attempts int
	Err      error
}

func (e *RetryLimitExceededError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", mboxdb.ErrRetryLimitExceeded, e.Attempts, e.Err)
}

func (e *RetryLimitExceededError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRetryLimitExceeded.
func (e *RetryLimitExceededError) Is(target error) bool {
	return target == mboxdb.ErrRetryLimitExceeded
}

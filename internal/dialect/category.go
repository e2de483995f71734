package dialect

import "fmt"

// ErrorCategory is a backend-independent meaning of a database error.
type ErrorCategory string

const (
	DeadlockDetected      ErrorCategory = "deadlock-detected"
	DuplicateRow          ErrorCategory = "duplicate-row"
	ForeignKeyNoParent    ErrorCategory = "foreign-key-no-parent"
	ForeignKeyChildExists ErrorCategory = "foreign-key-child-exists"
	NoSuchDatabase        ErrorCategory = "no-such-database"
	NoSuchTable           ErrorCategory = "no-such-table"
	// LockTimeout also covers busy-database conditions such as SQLITE_BUSY.
	LockTimeout   ErrorCategory = "lock-timeout"
	TooManyParams ErrorCategory = "too-many-params"

	// Unknown is the result for codes with no mapping. It is never retried.
	Unknown ErrorCategory = "unknown"
)

// RequiredCategories must resolve to native codes or to an explicit
// unsupported marker in every registered profile.
var RequiredCategories = []ErrorCategory{
	DeadlockDetected,
	DuplicateRow,
	ForeignKeyNoParent,
	ForeignKeyChildExists,
	NoSuchDatabase,
	NoSuchTable,
	LockTimeout,
	TooManyParams,
}

func (c ErrorCategory) String() string {
	return string(c)
}

// Transient reports whether an error of this category is expected to clear
// up if the same operation is tried again.
func (c ErrorCategory) Transient() bool {
	return c == DeadlockDetected || c == LockTimeout
}

// ParseCategory resolves a category name.
func ParseCategory(s string) (ErrorCategory, error) {
	if s == string(Unknown) {
		return Unknown, nil
	}
	for _, c := range RequiredCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown error category %q", s)
}

package dialect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

var (
	// ErrUnknownBackend is returned by Registry.Lookup for unregistered names.
	ErrUnknownBackend = errors.New("unknown dialect backend")

	// ErrCapabilityUnsupported is returned by fragment generators that need a
	// capability the profile does not declare.
	ErrCapabilityUnsupported = errors.New("capability not supported by dialect")

	// ErrTooManyParams is returned by CheckParamLimit.
	ErrTooManyParams = errors.New("too many SQL parameters")
)

// ConfigurationError reports a profile whose tables are incomplete or
// inconsistent. It is detected when the profile is first constructed,
// before any query runs.
type ConfigurationError struct {
	Profile  string
	Missing  []ErrorCategory
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, c := range e.Missing {
			names[i] = string(c)
		}
		parts = append(parts, "no codes or unsupported marker for "+strings.Join(names, ", "))
	}
	parts = append(parts, e.Problems...)
	return fmt.Sprintf("dialect %q is misconfigured: %s", e.Profile, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is(err, mboxdb.ErrInvalidConfig) match.
func (e *ConfigurationError) Unwrap() error {
	return mboxdb.ErrInvalidConfig
}

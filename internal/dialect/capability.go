package dialect

import "fmt"

// Capability names an optional SQL feature a backend may or may not have.
// The set is closed: profiles only ever declare the constants below.
type Capability string

const (
	// CapUpsert covers ON DUPLICATE KEY UPDATE and ON CONFLICT DO UPDATE.
	CapUpsert Capability = "upsert"
	// CapReplaceInto is MySQL/SQLite REPLACE INTO.
	CapReplaceInto Capability = "replace-into"
	// CapLimitClause means the LIMIT keyword is understood.
	CapLimitClause             Capability = "limit-clause"
	CapRowLevelLocking         Capability = "row-level-locking"
	CapBitwiseOperations       Capability = "bitwise-operations"
	CapCaseSensitiveComparison Capability = "case-sensitive-comparison"
	CapMultitableUpdate        Capability = "multitable-update"
	CapUniqueNameIndex         Capability = "unique-name-index"
	CapDisableConstraintCheck  Capability = "disable-constraint-check"
	CapBooleanDatatype         Capability = "boolean-datatype"
	CapNonBMPCharacters        Capability = "non-bmp-characters"
	CapSQLParamLimit           Capability = "sql-param-limit"
	CapForceIndex              Capability = "force-index"
	CapForceIndexEvenIfNoSort  Capability = "force-index-even-if-no-sort"
	CapFilePerDatabase         Capability = "file-per-database"
	CapAvoidOrInWhereClause    Capability = "avoid-or-in-where-clause"
	CapBrokenInClause          Capability = "broken-in-clause"
	CapNativeIfNull            Capability = "native-ifnull"
	CapReturning               Capability = "returning"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{
	CapUpsert,
	CapReplaceInto,
	CapLimitClause,
	CapRowLevelLocking,
	CapBitwiseOperations,
	CapCaseSensitiveComparison,
	CapMultitableUpdate,
	CapUniqueNameIndex,
	CapDisableConstraintCheck,
	CapBooleanDatatype,
	CapNonBMPCharacters,
	CapSQLParamLimit,
	CapForceIndex,
	CapForceIndexEvenIfNoSort,
	CapFilePerDatabase,
	CapAvoidOrInWhereClause,
	CapBrokenInClause,
	CapNativeIfNull,
	CapReturning,
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability resolves a capability name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range AllCapabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

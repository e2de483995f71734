package dialect

import (
	"fmt"
	"strings"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// ForceIndexClause renders a hint forcing the physical index behind the
// logical name. It returns "" when the backend has no hint syntax or the
// logical index has no mapping, so callers can append the result
// unconditionally.
func (p *Profile) ForceIndexClause(logicalIndex string) string {
	if logicalIndex == "" {
		return ""
	}
	if !p.Supports(CapForceIndex) {
		p.logger.Verbose("dialect %s: no index hints, %q runs without hint", p.name, logicalIndex)
		return ""
	}

	physical, ok := p.physicalIndex(logicalIndex)
	if !ok {
		p.logger.Verbose("dialect %s: no index mapped for %q, query runs without hint", p.name, logicalIndex)
		return ""
	}

	switch p.HintStyle() {
	case HintForceIndex:
		return " FORCE INDEX (" + physical + ")"
	case HintIndexedBy:
		return " INDEXED BY " + physical
	case HintDerbyProperties:
		// Derby reads properties from a trailing comment, which must end the line.
		return " --DERBY-PROPERTIES index=" + physical + "\n"
	default:
		p.logger.Verbose("dialect %s: index hints are not rendered", p.name)
		return ""
	}
}

// IfNull returns an expression yielding a, or b when a is NULL.
func (p *Profile) IfNull(a, b string) string {
	if p.Supports(CapNativeIfNull) {
		return fmt.Sprintf("%s(%s, %s)", p.nullFunctionName(), a, b)
	}
	return fmt.Sprintf("CASE WHEN %s IS NULL THEN %s ELSE %s END", a, b, a)
}

// Limit renders a page clause. It returns "" for backends without one; the
// caller then pages by skipping rows.
func (p *Profile) Limit(offset, count int) string {
	if offset < 0 {
		offset = 0
	}

	switch p.LimitStyle() {
	case LimitOffsetCount:
		if offset == 0 {
			return fmt.Sprintf("LIMIT %d", count)
		}
		return fmt.Sprintf("LIMIT %d, %d", offset, count)
	case LimitCountOffset:
		if offset == 0 {
			return fmt.Sprintf("LIMIT %d", count)
		}
		return fmt.Sprintf("LIMIT %d OFFSET %d", count, offset)
	case LimitFetchNext:
		if offset == 0 {
			return fmt.Sprintf("FETCH FIRST %d ROWS ONLY", count)
		}
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, count)
	default:
		return ""
	}
}

// BitAND renders a & b. Backends without bitwise operators get the BITAND
// function, which the schema installs for them.
func (p *Profile) BitAND(a, b string) string {
	if p.Supports(CapBitwiseOperations) {
		return "(" + a + " & " + b + ")"
	}
	return "BITAND(" + a + ", " + b + ")"
}

// BitANDNOT renders a & ~b.
func (p *Profile) BitANDNOT(a, b string) string {
	if p.Supports(CapBitwiseOperations) {
		return "(" + a + " & ~" + b + ")"
	}
	return "BITANDNOT(" + a + ", " + b + ")"
}

// Concat joins string expressions.
func (p *Profile) Concat(parts ...string) string {
	switch len(parts) {
	case 0:
		return "''"
	case 1:
		return parts[0]
	}
	if p.usesConcatFunction() {
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

// Upsert renders the clause appended to an INSERT so that a conflicting row
// is updated instead. conflictCols are the unique key columns (ignored by
// ON DUPLICATE KEY, which uses every unique key). With no updateCols the
// conflicting row is left unchanged.
func (p *Profile) Upsert(conflictCols, updateCols []string) (string, error) {
	if !p.Supports(CapUpsert) {
		return "", fmt.Errorf("%w: %s has no upsert", ErrCapabilityUnsupported, p.name)
	}

	switch p.UpsertStyle() {
	case UpsertOnDuplicateKey:
		if len(updateCols) == 0 {
			if len(conflictCols) == 0 {
				return "", fmt.Errorf("upsert needs at least one column: %w", mboxdb.ErrInvalidConfig)
			}
			return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", conflictCols[0], conflictCols[0]), nil
		}
		sets := make([]string, len(updateCols))
		for i, c := range updateCols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", "), nil

	default:
		if len(conflictCols) == 0 {
			return "", fmt.Errorf("%s upsert needs conflict columns: %w", p.name, mboxdb.ErrInvalidConfig)
		}
		target := "ON CONFLICT (" + strings.Join(conflictCols, ", ") + ")"
		if len(updateCols) == 0 {
			return target + " DO NOTHING", nil
		}
		sets := make([]string, len(updateCols))
		for i, c := range updateCols {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return target + " DO UPDATE SET " + strings.Join(sets, ", "), nil
	}
}

// CheckParamLimit fails with ErrTooManyParams when a statement would bind
// more parameters than the backend accepts. Callers typically split the
// statement into batches and retry.
func (p *Profile) CheckParamLimit(n int) error {
	limit := p.ParamLimit()
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %d exceeds the %s limit of %d", ErrTooManyParams, n, p.name, limit)
	}
	return nil
}

// ParamBatchSize returns how many list parameters fit into one statement that
// already binds reserved other parameters. It returns total when no limit
// applies.
func (p *Profile) ParamBatchSize(total, reserved int) int {
	limit := p.ParamLimit()
	if limit <= 0 {
		return total
	}
	size := limit - reserved
	if size < 1 {
		size = 1
	}
	if size > total {
		return total
	}
	return size
}

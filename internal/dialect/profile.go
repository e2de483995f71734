package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vvka-141/mboxdb/internal/logging"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// IndexHintStyle selects how ForceIndexClause renders a hint.
type IndexHintStyle int

const (
	hintInherit IndexHintStyle = iota
	HintNone
	HintForceIndex      // FORCE INDEX (name)
	HintDerbyProperties // --DERBY-PROPERTIES index=name
	HintIndexedBy       // INDEXED BY name
)

func (s IndexHintStyle) String() string {
	switch s {
	case HintNone:
		return "none"
	case HintForceIndex:
		return "force-index"
	case HintDerbyProperties:
		return "derby-properties"
	case HintIndexedBy:
		return "indexed-by"
	default:
		return "inherit"
	}
}

// LimitStyle selects how Limit renders a page clause.
type LimitStyle int

const (
	limitInherit LimitStyle = iota
	LimitNone
	LimitOffsetCount // LIMIT off, n
	LimitCountOffset // LIMIT n OFFSET off
	LimitFetchNext   // OFFSET off ROWS FETCH NEXT n ROWS ONLY
)

func (s LimitStyle) String() string {
	switch s {
	case LimitNone:
		return "none"
	case LimitOffsetCount:
		return "limit-offset-count"
	case LimitCountOffset:
		return "limit-count-offset"
	case LimitFetchNext:
		return "fetch-next"
	default:
		return "inherit"
	}
}

// UpsertStyle selects how Upsert renders the conflict clause.
type UpsertStyle int

const (
	upsertInherit UpsertStyle = iota
	UpsertOnDuplicateKey
	UpsertOnConflict
)

func (s UpsertStyle) String() string {
	switch s {
	case UpsertOnDuplicateKey:
		return "on-duplicate-key"
	case UpsertOnConflict:
		return "on-conflict"
	default:
		return "inherit"
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Profile describes one backend: its capabilities, the native codes behind
// each ErrorCategory, and how to render dialect-specific SQL fragments.
//
// A Profile is immutable once NewProfile returns and is safe for concurrent
// use. A derived profile keeps a pointer to its base and only stores its own
// overrides; every lookup checks the derived entry first.
type Profile struct {
	name string
	base *Profile

	capabilities map[Capability]bool
	codes        map[ErrorCategory][]string
	unsupported  map[ErrorCategory]bool
	patterns     map[ErrorCategory][]string
	indexHints   map[string]string

	hintStyle    IndexHintStyle
	limitStyle   LimitStyle
	upsertStyle  UpsertStyle
	nullFunction *string
	concatFunc   *bool
	paramLimit   *int

	logger mboxdb.Logger

	// codeIndex is the resolved code -> category table, built once.
	// sharedCodes holds codes declared by more than one category; those are
	// told apart by message.
	codeIndex   map[string]ErrorCategory
	sharedCodes map[string][]ErrorCategory
	conflicts   []string
}

// ProfileOption configures a Profile under construction.
type ProfileOption func(*Profile)

// WithBase makes the profile inherit every entry it does not override.
func WithBase(base *Profile) ProfileOption {
	return func(p *Profile) {
		p.base = base
	}
}

// WithCapability declares or overrides a single capability.
func WithCapability(c Capability, supported bool) ProfileOption {
	return func(p *Profile) {
		p.capabilities[c] = supported
	}
}

// WithCapabilities declares every listed capability as supported.
func WithCapabilities(caps ...Capability) ProfileOption {
	return func(p *Profile) {
		for _, c := range caps {
			p.capabilities[c] = true
		}
	}
}

// WithErrorCodes maps a category to native codes, replacing whatever the
// base declares for that category.
func WithErrorCodes(cat ErrorCategory, codes ...string) ProfileOption {
	return func(p *Profile) {
		normalized := make([]string, 0, len(codes))
		for _, c := range codes {
			normalized = append(normalized, normalizeCode(c))
		}
		p.codes[cat] = normalized
		delete(p.unsupported, cat)
	}
}

// WithUnsupported records that the backend has no native code for the
// categories. Classification never yields them from a code.
func WithUnsupported(cats ...ErrorCategory) ProfileOption {
	return func(p *Profile) {
		for _, cat := range cats {
			p.unsupported[cat] = true
			delete(p.codes, cat)
		}
	}
}

// WithMessagePatterns sets the case-insensitive substrings used when a driver
// error carries no structured code.
func WithMessagePatterns(cat ErrorCategory, patterns ...string) ProfileOption {
	return func(p *Profile) {
		lowered := make([]string, len(patterns))
		for i, s := range patterns {
			lowered[i] = strings.ToLower(s)
		}
		p.patterns[cat] = lowered
	}
}

// WithIndexHint maps a logical index name used by DAO code to the physical
// index name of this backend.
func WithIndexHint(logical, physical string) ProfileOption {
	return func(p *Profile) {
		p.indexHints[logical] = physical
	}
}

// WithIndexHints applies WithIndexHint for every entry of hints.
func WithIndexHints(hints map[string]string) ProfileOption {
	return func(p *Profile) {
		for logical, physical := range hints {
			p.indexHints[logical] = physical
		}
	}
}

func WithIndexHintStyle(s IndexHintStyle) ProfileOption {
	return func(p *Profile) {
		p.hintStyle = s
	}
}

func WithLimitStyle(s LimitStyle) ProfileOption {
	return func(p *Profile) {
		p.limitStyle = s
	}
}

func WithUpsertStyle(s UpsertStyle) ProfileOption {
	return func(p *Profile) {
		p.upsertStyle = s
	}
}

// WithNullFunction names the native null-coalescing function (IFNULL,
// COALESCE). It only takes effect together with CapNativeIfNull.
func WithNullFunction(name string) ProfileOption {
	return func(p *Profile) {
		p.nullFunction = &name
	}
}

// WithConcatFunction selects CONCAT(a, b) over the a || b operator.
func WithConcatFunction(enabled bool) ProfileOption {
	return func(p *Profile) {
		p.concatFunc = &enabled
	}
}

// WithParamLimit sets the maximum number of bind parameters per statement.
// Zero means unlimited.
func WithParamLimit(n int) ProfileOption {
	return func(p *Profile) {
		p.paramLimit = &n
	}
}

func WithLogger(l mboxdb.Logger) ProfileOption {
	return func(p *Profile) {
		p.logger = l
	}
}

// NewProfile builds a profile from the options. The returned profile has its
// code table resolved but is not validated; call Validate, or obtain it from
// a Registry which validates on construction.
func NewProfile(name string, opts ...ProfileOption) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("dialect name is required: %w", mboxdb.ErrInvalidConfig)
	}

	p := &Profile{
		name:         strings.ToLower(name),
		capabilities: make(map[Capability]bool),
		codes:        make(map[ErrorCategory][]string),
		unsupported:  make(map[ErrorCategory]bool),
		patterns:     make(map[ErrorCategory][]string),
		indexHints:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		if p.base != nil {
			p.logger = p.base.logger
		} else {
			p.logger = logging.Discard
		}
	}

	p.buildCodeIndex()
	return p, nil
}

// MustProfile is like NewProfile but panics on error.
func MustProfile(name string, opts ...ProfileOption) *Profile {
	p, err := NewProfile(name, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Profile) buildCodeIndex() {
	p.codeIndex = make(map[string]ErrorCategory)
	p.sharedCodes = make(map[string][]ErrorCategory)
	for _, cat := range RequiredCategories {
		codes, state := p.resolveCodes(cat)
		if state != codesMapped {
			continue
		}
		for _, code := range codes {
			prev, dup := p.codeIndex[code]
			if !dup {
				p.codeIndex[code] = cat
				continue
			}
			if prev == cat {
				continue
			}
			if len(p.sharedCodes[code]) == 0 {
				p.sharedCodes[code] = []ErrorCategory{prev}
			}
			p.sharedCodes[code] = append(p.sharedCodes[code], cat)
		}
	}

	// A shared code is only usable when every category behind it has
	// message patterns to decide between them.
	for code, cats := range p.sharedCodes {
		for _, cat := range cats {
			if len(p.resolvePatterns(cat)) == 0 {
				p.conflicts = append(p.conflicts,
					fmt.Sprintf("code %s maps to both %s and %s", code, cats[0], cats[1]))
				break
			}
		}
	}
	sort.Strings(p.conflicts)
}

type codeState int

const (
	codesMissing codeState = iota
	codesUnsupported
	codesMapped
)

// resolveCodes walks the derivation chain; the nearest entry wins.
func (p *Profile) resolveCodes(cat ErrorCategory) ([]string, codeState) {
	for cur := p; cur != nil; cur = cur.base {
		if cur.unsupported[cat] {
			return nil, codesUnsupported
		}
		if codes, ok := cur.codes[cat]; ok {
			return codes, codesMapped
		}
	}
	return nil, codesMissing
}

func (p *Profile) resolvePatterns(cat ErrorCategory) []string {
	for cur := p; cur != nil; cur = cur.base {
		if pats, ok := cur.patterns[cat]; ok {
			return pats
		}
	}
	return nil
}

// Name returns the backend name the profile was registered under.
func (p *Profile) Name() string {
	return p.name
}

// Base returns the profile this one derives from, or nil.
func (p *Profile) Base() *Profile {
	return p.base
}

// Logger returns the logger used for degraded classification and hint diagnostics.
func (p *Profile) Logger() mboxdb.Logger {
	return p.logger
}

// Supports reports whether the backend has the capability. The derived entry
// wins if present, else the base answers; absent everywhere means false.
func (p *Profile) Supports(c Capability) bool {
	for cur := p; cur != nil; cur = cur.base {
		if v, ok := cur.capabilities[c]; ok {
			return v
		}
	}
	return false
}

// Capabilities returns the supported capabilities in display order.
func (p *Profile) Capabilities() []Capability {
	var caps []Capability
	for _, c := range AllCapabilities {
		if p.Supports(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// Classify maps a native error code to its category. Codes are compared after
// trimming and upper-casing, so "40xl1" and "40XL1" are the same code.
// Unmapped codes yield Unknown, and so do shared codes such as the
// PostgreSQL 23503, which only ClassifyError can resolve from the message.
func (p *Profile) Classify(code string) ErrorCategory {
	code = normalizeCode(code)
	if _, shared := p.sharedCodes[code]; shared {
		return Unknown
	}
	if cat, ok := p.codeIndex[code]; ok {
		return cat
	}
	return Unknown
}

// SharedCategories returns the categories behind a code declared by more
// than one category, or nil.
func (p *Profile) SharedCategories(code string) []ErrorCategory {
	return append([]ErrorCategory(nil), p.sharedCodes[normalizeCode(code)]...)
}

// Codes returns the native codes of a category. ok is false when the
// category is unsupported or has no entry.
func (p *Profile) Codes(cat ErrorCategory) (codes []string, ok bool) {
	resolved, state := p.resolveCodes(cat)
	if state != codesMapped {
		return nil, false
	}
	return append([]string(nil), resolved...), true
}

// Unsupported reports whether the category is explicitly marked unsupported.
func (p *Profile) Unsupported(cat ErrorCategory) bool {
	_, state := p.resolveCodes(cat)
	return state == codesUnsupported
}

// MessagePatterns returns the fallback patterns of a category.
func (p *Profile) MessagePatterns(cat ErrorCategory) []string {
	return append([]string(nil), p.resolvePatterns(cat)...)
}

// IndexHints returns the resolved logical -> physical index map.
func (p *Profile) IndexHints() map[string]string {
	hints := make(map[string]string)
	var chain []*Profile
	for cur := p; cur != nil; cur = cur.base {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].indexHints {
			hints[k] = v
		}
	}
	return hints
}

func (p *Profile) physicalIndex(logical string) (string, bool) {
	for cur := p; cur != nil; cur = cur.base {
		if v, ok := cur.indexHints[logical]; ok {
			return v, true
		}
	}
	return "", false
}

// HintStyle returns the resolved index hint style.
func (p *Profile) HintStyle() IndexHintStyle {
	for cur := p; cur != nil; cur = cur.base {
		if cur.hintStyle != hintInherit {
			return cur.hintStyle
		}
	}
	return HintNone
}

// LimitStyle returns the resolved page clause style.
func (p *Profile) LimitStyle() LimitStyle {
	for cur := p; cur != nil; cur = cur.base {
		if cur.limitStyle != limitInherit {
			return cur.limitStyle
		}
	}
	return LimitNone
}

// UpsertStyle returns the resolved conflict clause style.
func (p *Profile) UpsertStyle() UpsertStyle {
	for cur := p; cur != nil; cur = cur.base {
		if cur.upsertStyle != upsertInherit {
			return cur.upsertStyle
		}
	}
	return UpsertOnConflict
}

func (p *Profile) nullFunctionName() string {
	for cur := p; cur != nil; cur = cur.base {
		if cur.nullFunction != nil {
			return *cur.nullFunction
		}
	}
	return "COALESCE"
}

func (p *Profile) usesConcatFunction() bool {
	for cur := p; cur != nil; cur = cur.base {
		if cur.concatFunc != nil {
			return *cur.concatFunc
		}
	}
	return false
}

// ParamLimit returns the maximum bind parameters per statement, 0 if unlimited.
func (p *Profile) ParamLimit() int {
	for cur := p; cur != nil; cur = cur.base {
		if cur.paramLimit != nil {
			return *cur.paramLimit
		}
	}
	return 0
}

// Validate checks that every required category resolves and that the index
// hints are plain identifiers. It returns a *ConfigurationError.
func (p *Profile) Validate() error {
	cfgErr := &ConfigurationError{Profile: p.name}

	for _, cat := range RequiredCategories {
		if _, state := p.resolveCodes(cat); state == codesMissing {
			cfgErr.Missing = append(cfgErr.Missing, cat)
		}
	}

	cfgErr.Problems = append(cfgErr.Problems, p.conflicts...)

	hints := p.IndexHints()
	logical := make([]string, 0, len(hints))
	for k := range hints {
		logical = append(logical, k)
	}
	sort.Strings(logical)
	for _, k := range logical {
		if !identifierPattern.MatchString(hints[k]) {
			cfgErr.Problems = append(cfgErr.Problems,
				fmt.Sprintf("index hint %s -> %q is not a valid identifier", k, hints[k]))
		}
	}

	if p.Supports(CapSQLParamLimit) && p.ParamLimit() <= 0 {
		cfgErr.Problems = append(cfgErr.Problems, "sql-param-limit declared without a positive parameter limit")
	}

	if len(cfgErr.Missing) == 0 && len(cfgErr.Problems) == 0 {
		return nil
	}
	return cfgErr
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

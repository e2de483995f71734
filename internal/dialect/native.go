package dialect

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// sqlStater is implemented by drivers that expose a SQLSTATE, such as
// pgconn.PgError and most JDBC-bridge or Derby network client errors.
type sqlStater interface {
	SQLState() string
}

// NativeCode extracts the backend-native error code from a driver error
// anywhere in err's chain: the MySQL error number, the PostgreSQL SQLSTATE,
// or the SQLite extended result code.
func NativeCode(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number)), true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code()), true
	}

	var stater sqlStater
	if errors.As(err, &stater) {
		if state := stater.SQLState(); state != "" {
			return state, true
		}
	}

	return "", false
}

// ClassifyError maps a driver error to its category. The structured code is
// used when the driver provides one and it is mapped. A code shared by
// several categories is narrowed to one of them by message. Otherwise the
// message is matched against the profile's patterns, which is logged because
// a driver upgrade can silently change message text.
func (p *Profile) ClassifyError(err error) ErrorCategory {
	if err == nil {
		return Unknown
	}

	code, hasCode := NativeCode(err)
	if hasCode {
		if cats := p.sharedCodes[normalizeCode(code)]; len(cats) > 0 {
			if cat := p.matchPatterns(err.Error(), cats); cat != Unknown {
				return cat
			}
			p.logger.Verbose("dialect %s: code %s is shared by %v and the message matches none", p.name, code, cats)
			return Unknown
		}
		if cat := p.Classify(code); cat != Unknown {
			return cat
		}
	}

	if cat := p.matchPatterns(err.Error(), RequiredCategories); cat != Unknown {
		if hasCode {
			p.logger.Verbose("dialect %s: code %s unmapped, classified by message as %s", p.name, code, cat)
		} else {
			p.logger.Verbose("dialect %s: no native code, classified by message as %s", p.name, cat)
		}
		return cat
	}
	return Unknown
}

func (p *Profile) matchPatterns(msg string, cats []ErrorCategory) ErrorCategory {
	msg = strings.ToLower(msg)
	for _, cat := range cats {
		for _, pattern := range p.resolvePatterns(cat) {
			if strings.Contains(msg, pattern) {
				return cat
			}
		}
	}
	return Unknown
}

// IsTransient reports whether err is a deadlock or lock timeout on this
// backend. It makes *Profile an mboxdb.ErrorClassifier, so a profile can be
// passed straight to retry.NewExecutor.
func (p *Profile) IsTransient(err error) bool {
	return p.ClassifyError(err).Transient()
}

// Matches reports whether err belongs to the category.
func (p *Profile) Matches(err error, cat ErrorCategory) bool {
	return cat != Unknown && p.ClassifyError(err) == cat
}

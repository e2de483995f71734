// Package dialect lets the same data-access code run against MySQL, MariaDB,
// Derby, SQLite and PostgreSQL.
//
// A Profile answers three questions about a backend:
//
//   - which optional SQL features it has (Supports),
//   - what a native error code means (Classify, ClassifyError, IsTransient),
//   - how to spell a dialect-specific fragment (ForceIndexClause, IfNull,
//     Limit, BitAND, Concat, Upsert).
//
// Profiles are obtained from a Registry:
//
//	reg := dialect.DefaultRegistry(logger)
//	profile, err := reg.Lookup("mariadb")
//	if err != nil {
//	    return err
//	}
//	sql := "SELECT id FROM mail_item" + profile.ForceIndexClause(dialect.IndexMailItemFolderDate) +
//	    " WHERE folder_id = ? ORDER BY date DESC " + profile.Limit(0, 50)
//
// A *Profile is an mboxdb.ErrorClassifier, so it plugs straight into the retry
// executor:
//
//	executor := retry.NewExecutor(profile, retry.DefaultPolicy())
//
// # Derived profiles
//
// A derived profile stores only its overrides and a pointer to its base.
// Every lookup asks the derived profile first and falls back to the base;
// nothing is copied, so the base is never affected by its derivations.
// MariaDB is derived from MySQL this way, and configuration-supplied index
// hints are layered over a built-in profile with Registry.Derive.
//
// # Classification
//
// ClassifyError prefers the structured code the driver reports. Only when
// there is none, or it is unmapped, are the profile's message patterns
// tried; that path is logged at verbose level because message text is not a
// stable interface. Anything still unrecognised is Unknown and is never
// retried.
package dialect

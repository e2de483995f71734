package dialect

// Built-in backend names.
const (
	MySQL    = "mysql"
	MariaDB  = "mariadb"
	Derby    = "derby"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Logical index names used by mail-store queries. Profiles map them to the
// physical index of their schema.
const (
	IndexMailItemParent     = "mail_item_parent"
	IndexMailItemIndexID    = "mail_item_index_id"
	IndexMailItemFolderDate = "mail_item_folder_date"
)

// mysqlOptions are the MySQL settings. Error numbers:
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
func mysqlOptions() []ProfileOption {
	return []ProfileOption{
		WithCapabilities(
			CapUpsert,
			CapReplaceInto,
			CapLimitClause,
			CapRowLevelLocking,
			CapBitwiseOperations,
			CapMultitableUpdate,
			CapUniqueNameIndex,
			CapDisableConstraintCheck,
			CapBooleanDatatype,
			CapNonBMPCharacters,
			CapSQLParamLimit,
			CapForceIndex,
			CapNativeIfNull,
		),
		WithErrorCodes(DeadlockDetected, "1213"),
		WithErrorCodes(LockTimeout, "1205"),
		WithErrorCodes(DuplicateRow, "1062"),
		WithErrorCodes(ForeignKeyNoParent, "1452", "1216"),
		WithErrorCodes(ForeignKeyChildExists, "1451", "1217"),
		WithErrorCodes(NoSuchDatabase, "1049"),
		WithErrorCodes(NoSuchTable, "1146"),
		WithErrorCodes(TooManyParams, "1390"),
		WithMessagePatterns(DeadlockDetected, "deadlock found when trying to get lock"),
		WithMessagePatterns(LockTimeout, "lock wait timeout exceeded"),
		WithMessagePatterns(DuplicateRow, "duplicate entry"),
		WithIndexHintStyle(HintForceIndex),
		WithIndexHint(IndexMailItemParent, "i_parent_id"),
		WithIndexHint(IndexMailItemIndexID, "i_index_id"),
		WithIndexHint(IndexMailItemFolderDate, "i_folder_id_date"),
		WithLimitStyle(LimitOffsetCount),
		WithUpsertStyle(UpsertOnDuplicateKey),
		WithNullFunction("IFNULL"),
		WithConcatFunction(true),
		WithParamLimit(65535),
	}
}

// NewMySQLProfile returns the MySQL profile. opts are applied after the
// built-in settings and override them.
func NewMySQLProfile(opts ...ProfileOption) *Profile {
	return MustProfile(MySQL, append(mysqlOptions(), opts...)...)
}

// NewMariaDBProfile derives MariaDB from a MySQL profile. MariaDB speaks the
// same protocol and error numbers; it adds INSERT ... RETURNING.
func NewMariaDBProfile(base *Profile, opts ...ProfileOption) *Profile {
	return MustProfile(MariaDB, append([]ProfileOption{
		WithBase(base),
		WithCapability(CapReturning, true),
		WithMessagePatterns(LockTimeout, "lock wait timeout exceeded", "max_statement_time exceeded"),
	}, opts...)...)
}

// NewDerbyProfile returns the Apache Derby profile. Derby reports SQLSTATEs.
// It has no bitwise operators, no LIMIT keyword and no upsert.
// See: https://db.apache.org/derby/docs/10.15/ref/rrefexcept71493.html
func NewDerbyProfile(opts ...ProfileOption) *Profile {
	return MustProfile(Derby, append([]ProfileOption{
		WithCapabilities(
			CapRowLevelLocking,
			CapCaseSensitiveComparison,
			CapUniqueNameIndex,
			CapNonBMPCharacters,
			CapForceIndex,
			CapBrokenInClause,
		),
		WithErrorCodes(DeadlockDetected, "40001"),
		WithErrorCodes(LockTimeout, "40XL1", "40XL2"),
		WithErrorCodes(DuplicateRow, "23505"),
		// 23503 covers both directions of a foreign key violation
		WithErrorCodes(ForeignKeyNoParent, "23503"),
		WithErrorCodes(ForeignKeyChildExists, "23503"),
		WithErrorCodes(NoSuchDatabase, "XJ004"),
		WithErrorCodes(NoSuchTable, "42X05"),
		WithUnsupported(TooManyParams),
		WithMessagePatterns(DeadlockDetected, "a lock could not be obtained due to a deadlock"),
		WithMessagePatterns(ForeignKeyNoParent, "insert on table"),
		WithMessagePatterns(ForeignKeyChildExists, "delete on table"),
		WithMessagePatterns(LockTimeout, "a lock could not be obtained within the time requested"),
		WithIndexHintStyle(HintDerbyProperties),
		WithIndexHint(IndexMailItemParent, "i_parent_id"),
		WithIndexHint(IndexMailItemIndexID, "i_index_id"),
		WithIndexHint(IndexMailItemFolderDate, "i_folder_id_date"),
		WithLimitStyle(LimitFetchNext),
		WithConcatFunction(false),
	}, opts...)...)
}

// NewSQLiteProfile returns the SQLite profile. Codes are extended result
// codes; SQLite reports a missing table or too many variables only through
// SQLITE_ERROR, so those categories rely on message patterns.
// See: https://www.sqlite.org/rescode.html
func NewSQLiteProfile(opts ...ProfileOption) *Profile {
	return MustProfile(SQLite, append([]ProfileOption{
		WithCapabilities(
			CapUpsert,
			CapReplaceInto,
			CapLimitClause,
			CapBitwiseOperations,
			CapCaseSensitiveComparison,
			CapBooleanDatatype,
			CapNonBMPCharacters,
			CapSQLParamLimit,
			CapForceIndex,
			CapForceIndexEvenIfNoSort,
			CapFilePerDatabase,
			CapAvoidOrInWhereClause,
			CapNativeIfNull,
			CapReturning,
		),
		// SQLITE_BUSY and its extended codes
		WithErrorCodes(LockTimeout, "5", "261", "517", "773"),
		// SQLITE_LOCKED and SQLITE_LOCKED_SHAREDCACHE
		WithErrorCodes(DeadlockDetected, "6", "262"),
		WithErrorCodes(DuplicateRow, "1555", "2067"),
		WithErrorCodes(ForeignKeyNoParent, "787"),
		WithErrorCodes(NoSuchDatabase, "14"),
		WithUnsupported(ForeignKeyChildExists, NoSuchTable, TooManyParams),
		WithMessagePatterns(LockTimeout, "database is locked", "sqlite_busy"),
		WithMessagePatterns(DeadlockDetected, "database table is locked"),
		WithMessagePatterns(DuplicateRow, "unique constraint failed"),
		WithMessagePatterns(NoSuchTable, "no such table"),
		WithMessagePatterns(TooManyParams, "too many sql variables"),
		WithIndexHintStyle(HintIndexedBy),
		WithIndexHint(IndexMailItemParent, "i_parent_id"),
		WithIndexHint(IndexMailItemIndexID, "i_index_id"),
		WithIndexHint(IndexMailItemFolderDate, "i_folder_id_date"),
		WithLimitStyle(LimitCountOffset),
		WithUpsertStyle(UpsertOnConflict),
		WithNullFunction("IFNULL"),
		WithConcatFunction(false),
		WithParamLimit(999),
	}, opts...)...)
}

// NewPostgresProfile returns the PostgreSQL profile. The planner takes no
// index hints, so ForceIndexClause always renders nothing.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
func NewPostgresProfile(opts ...ProfileOption) *Profile {
	return MustProfile(Postgres, append([]ProfileOption{
		WithCapabilities(
			CapUpsert,
			CapLimitClause,
			CapRowLevelLocking,
			CapBitwiseOperations,
			CapCaseSensitiveComparison,
			CapUniqueNameIndex,
			CapBooleanDatatype,
			CapNonBMPCharacters,
			CapSQLParamLimit,
			CapNativeIfNull,
			CapReturning,
		),
		// deadlock_detected, serialization_failure
		WithErrorCodes(DeadlockDetected, "40P01", "40001"),
		// lock_not_available
		WithErrorCodes(LockTimeout, "55P03"),
		WithErrorCodes(DuplicateRow, "23505"),
		// foreign_key_violation, raised for both directions
		WithErrorCodes(ForeignKeyNoParent, "23503"),
		WithErrorCodes(ForeignKeyChildExists, "23503"),
		WithErrorCodes(NoSuchDatabase, "3D000"),
		WithErrorCodes(NoSuchTable, "42P01"),
		WithErrorCodes(TooManyParams, "54000"),
		WithMessagePatterns(DeadlockDetected, "deadlock detected"),
		WithMessagePatterns(ForeignKeyNoParent, "insert or update on table"),
		WithMessagePatterns(ForeignKeyChildExists, "update or delete on table"),
		WithMessagePatterns(LockTimeout, "canceling statement due to lock timeout", "could not obtain lock"),
		WithMessagePatterns(TooManyParams, "extended protocol limited to"),
		WithIndexHintStyle(HintNone),
		WithLimitStyle(LimitCountOffset),
		WithUpsertStyle(UpsertOnConflict),
		WithNullFunction("COALESCE"),
		WithConcatFunction(false),
		WithParamLimit(65535),
	}, opts...)...)
}

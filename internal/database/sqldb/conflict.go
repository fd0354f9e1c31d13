package sqldb

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	lib "modernc.org/sqlite/lib"
)

// mysqlDeadlock is ER_LOCK_DEADLOCK.
const mysqlDeadlock = 1213

// isLockConflict reports whether err is a driver-specific lock conflict
// that may succeed when the transaction is replayed.
func isLockConflict(dialect string, err error) bool {
	switch dialect {
	case DialectSQLite:
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) {
			code := sqlErr.Code() & 0xff
			return code == lib.SQLITE_BUSY || code == lib.SQLITE_LOCKED
		}
	case DialectMySQL:
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) {
			return myErr.Number == mysqlDeadlock
		}
	case DialectDuckDB:
		return strings.Contains(strings.ToLower(err.Error()), "conflict")
	}
	return false
}

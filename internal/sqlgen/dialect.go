package sqlgen

import (
	"strings"

	"gorm.io/gorm"
)

type Dialect string

const (
	MySQL      Dialect = "mysql"
	MariaDB    Dialect = "mariadb"
	PostgreSQL Dialect = "pgsql"
	SQLite     Dialect = "sqlite"
)

// ParseDialect accepts driver names as gorm and database/sql spell them.
// Anything unknown is treated as MySQL.
func ParseDialect(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pgsql", "postgres", "postgresql", "pgx":
		return PostgreSQL
	case "sqlite", "sqlite3":
		return SQLite
	case "mariadb":
		return MariaDB
	default:
		return MySQL
	}
}

// DialectOf reads the dialect from an open gorm handle.
func DialectOf(db *gorm.DB) Dialect {
	if db == nil || db.Dialector == nil {
		return MySQL
	}
	return ParseDialect(db.Dialector.Name())
}

func (d Dialect) SupportsNativeInet() bool {
	return d == PostgreSQL
}

func (d Dialect) SupportsInetAton() bool {
	return d == MySQL || d == MariaDB
}

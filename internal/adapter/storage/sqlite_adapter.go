package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name:       "sqlite",
	schemaFile: "schema/sqlite.sql",
	isDuplicate: func(err error) bool {
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	},
}

func NewSQLiteAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: sqliteDialect}
}

// OpenSQLite opens (or creates) a database file and applies the schema. SQLite
// allows a single writer, so the pool is pinned to one connection.
func OpenSQLite(ctx context.Context, path string) (*SQLAdapter, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	adapter := NewSQLiteAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return adapter, nil
}

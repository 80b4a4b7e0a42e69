package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout bounds how long a writer waits for the store's write lock.
const DefaultBusyTimeout = 20 * time.Second

// TimestampLayout is the layout of every *_at column.
const TimestampLayout = "2006-01-02 15:04:05"

//go:embed schema.sql
var schemaSQL string

// Open opens the SQLite store in WAL mode so readers are not blocked by a
// writer. BEGIN takes the write lock immediately (_txlock=immediate).
func Open(path string, busyTimeout time.Duration) (*sqlx.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		path, busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, WrapError("open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, WrapError("open", err)
	}
	return db, nil
}

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return WrapError("apply schema", err)
	}
	return nil
}

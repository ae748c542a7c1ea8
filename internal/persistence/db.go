// Package persistence stores recognized call events durably in SQLite,
// behind both a plain database/sql connection (for the connectivity check
// and pragmas) and GORM (for the call-event model and repository).
package persistence

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps sql.DB for connection setup and WAL tuning; call-event reads and
// writes go through CallEventRepository's GORM handle instead.
type DB struct {
	*sql.DB
}

// Open opens (and creates if needed) a SQLite database at path, tuned for
// write bursts of call events.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	return &DB{db}, nil
}

// CloseSafe closes ignoring a nil receiver, for defer-without-guard call
// sites.
func (db *DB) CloseSafe() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.Close()
}

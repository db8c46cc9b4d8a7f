package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (or creates) a single-file SQLite checkpoint store.
//
// The path parameter specifies the database file location:
//   - "./contentflow.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The database runs in WAL mode with a 5s busy timeout and a single open
// connection, since SQLite supports one writer at a time.
//
// Example:
//
//	st, err := store.NewSQLiteStore[pipeline.State]("./contentflow.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLStore[S], error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	st, err := NewSQLStore[S](context.Background(), db, SQLiteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// OpenSQLite opens path with the pragmas every SQLite-backed component uses.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

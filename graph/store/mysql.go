package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLStore opens a MySQL/MariaDB checkpoint store.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials; read the DSN from configuration or the
// environment (CONTENTFLOW_STORE_DSN).
//
// Example:
//
//	st, err := store.NewMySQLStore[pipeline.State]("user:pass@tcp(localhost:3306)/contentflow")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore[S any](dsn string) (*SQLStore[S], error) {
	db, err := OpenMySQL(dsn)
	if err != nil {
		return nil, err
	}
	st, err := NewSQLStore[S](context.Background(), db, MySQLDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// OpenMySQL opens and pings a pooled MySQL connection.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// Package catalog provides deduplicating persistence for certificates,
// distinguished names, chains and scan targets using SQLite.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite driver
)

// Catalog persists scan results. Find-or-insert races between concurrent
// probe transactions are resolved by unique constraints, not locking.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection
	// serializes probe transactions instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// WithTx runs fn inside one transaction. A probe's whole persistence
// sequence (target, chain, links, certificates) goes through here so it is
// atomic from the perspective of any reader.
func (c *Catalog) WithTx(fn func(*sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

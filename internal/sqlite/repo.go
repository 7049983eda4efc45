// Package sqlite is a single file [pulse.Store] for local runs, with full text
// search over articles through FTS5.
package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/pulse/internal/migrations"
	"github.com/jdholdren/pulse/internal/pulse"
)

// Ensure Repo implements the Store interface
var _ pulse.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// Open opens, or creates, the database at path and migrates it.
func Open(path string) (*Repo, error) {
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_time_format=sqlite&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Writers are serialized by sqlite anyway
	dbx.SetMaxOpenConns(1)

	if err := migrations.Run(dbx); err != nil {
		dbx.Close()
		return nil, err
	}

	return New(dbx), nil
}

// EnsureIndexes brings the schema, indexes included, up to date.
func (r *Repo) EnsureIndexes(context.Context) error {
	return migrations.Run(r.db)
}

func (r *Repo) Close(context.Context) error {
	return r.db.Close()
}

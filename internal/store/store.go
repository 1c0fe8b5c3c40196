// Package store is the durable system of record for content, approvals,
// publish tasks and notifications.
package store

import (
	"database/sql"
	"errors"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a guarded update finds the row in a
	// different status than the caller observed.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// Store wraps the relational database.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Package database owns the postgres connection and the embedded schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

var ErrNoRows = sql.ErrNoRows

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Config holds pool settings.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Connect opens the pool and verifies it with a ping, retrying a few times
// so the service survives postgres coming up after it in orchestration.
func Connect(cfg Config, logger logging.Logger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		if attempt >= connectAttempts {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres after %d attempts: %w", attempt, err)
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("Postgres not ready, retrying")
		time.Sleep(connectBackoff)
	}

	logger.WithField("max_open_conns", cfg.MaxOpenConns).Info("Postgres connected")
	return db, nil
}

// MustConnect exits the process when the database is unreachable.
func MustConnect(cfg Config, logger logging.Logger) *sql.DB {
	db, err := Connect(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	return db
}

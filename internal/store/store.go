package store

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to the workspace tables.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

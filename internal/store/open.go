package store

import (
	"context"
	"database/sql"
	"fmt"

	"case-distribution/internal/assignment"
	"case-distribution/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Open builds the store selected by cfg. The returned close func releases the
// underlying connection and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (assignment.DataStore, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), noop, nil

	case "sqlite":
		s, err := NewSQLiteStore(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case "postgres":
		conn, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("failed to reach postgres: %w", err)
		}
		s := NewPostgresStore(conn, logger)
		if err := s.Migrate(ctx); err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("failed to migrate schema: %w", err)
		}
		return s, conn.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

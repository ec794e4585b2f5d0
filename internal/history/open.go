package history

import (
	"context"
	"database/sql"
	"fmt"

	"magpie/internal/config"
)

// Open selects the recorder configured under [history]. The returned close
// function releases backend connections; it never closes db.
func Open(ctx context.Context, cfg *config.Config, db *sql.DB) (Recorder, func() error, error) {
	noop := func() error { return nil }
	switch cfg.History.Backend {
	case "", "sqlite":
		if db == nil {
			return nil, noop, fmt.Errorf("history: sqlite backend requires the catalog database")
		}
		return NewSQLRecorder(db, cfg.History.Limit), noop, nil
	case "redis":
		rec, err := NewRedisRecorder(ctx, cfg.History.RedisURL, cfg.History.RedisKey, cfg.History.Limit)
		if err != nil {
			return nil, noop, err
		}
		return rec, rec.Close, nil
	default:
		return nil, noop, fmt.Errorf("history: unsupported backend %q", cfg.History.Backend)
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"

	"jobpay/internal/config"
	"jobpay/internal/db"
	"jobpay/internal/engine"
	"jobpay/internal/migrate"
	"jobpay/internal/repo"
	"jobpay/internal/store"
	"jobpay/internal/store/postgres"
)

// OpenStore opens the configured backend and brings its schema up to date.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, postgres.Config{DSN: cfg.Database.DSN, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		slog.Debug("store opened", "driver", cfg.Database.Driver)
		return pg, nil
	case config.DriverSQLite, "":
		conn, err := db.Open(db.Config{Workspace: cfg.Database.Workspace, MaxOpenConns: int(cfg.Database.MaxConns)})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		slog.Debug("store opened", "driver", config.DriverSQLite, "path", db.Path(cfg.Database.Workspace))
		return repo.New(conn), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// OpenEngine is OpenStore plus the engine on top of it. Callers close the returned store.
func OpenEngine(ctx context.Context, cfg *config.Config) (engine.Engine, store.Backend, error) {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	return engine.New(st, cfg), st, nil
}

// SchemaVersion reports the schema version applied to an opened store.
func SchemaVersion(ctx context.Context, st store.Backend) (int, error) {
	switch s := st.(type) {
	case repo.Repo:
		return migrate.Version(ctx, s.DB)
	case *postgres.Store:
		return s.Version(ctx)
	default:
		return 0, fmt.Errorf("unsupported store %T", st)
	}
}

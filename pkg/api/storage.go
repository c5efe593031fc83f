package api

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/accessplane/pkg/config"
	"github.com/platinummonkey/accessplane/pkg/observability"
	"github.com/platinummonkey/accessplane/pkg/rbac"
)

// OpenRepository returns the repository selected by cfg. For SQL storage it
// also returns the migrated database handle, which the caller must close.
func OpenRepository(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (rbac.Repository, *sql.DB, error) {
	if !cfg.SQL() {
		logger.Info("Using in-memory storage; roles and assignments are lost on restart")
		return rbac.NewMemoryStore(), nil, nil
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Type == config.StorageSQLite {
		// sqlite allows a single writer
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	if err := rbac.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger.WithField("storage", cfg.Type).Info("Database storage ready")
	return rbac.NewSQLStore(db), db, nil
}

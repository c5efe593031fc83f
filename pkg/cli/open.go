package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/accessplane/pkg/api"
	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/config"
	"github.com/platinummonkey/accessplane/pkg/observability"
	"github.com/platinummonkey/accessplane/pkg/rbac"
)

// OpenService returns an Opener over SQL storage. Mutations made through the
// service are written to the audit trail like those made through the API.
func OpenService(logger *logrus.Logger) Opener {
	return func(ctx context.Context, storageType, databaseURL string) (*rbac.Service, func() error, error) {
		cfg := config.StorageConfig{Type: storageType, DatabaseURL: databaseURL}
		if !cfg.SQL() {
			return nil, nil, fmt.Errorf("storage must be postgres or sqlite, got %q", storageType)
		}
		if databaseURL == "" {
			return nil, nil, fmt.Errorf("a database URL is required (-db or ACCESSPLANE_DATABASE_URL)")
		}

		serviceLogger := observability.NewLogger(serviceLevel(logger), logger.Out)
		repo, db, err := api.OpenRepository(ctx, cfg, serviceLogger)
		if err != nil {
			return nil, nil, err
		}

		auditLog, err := audit.NewDBLogger(db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize audit store: %w", err)
		}

		svc := rbac.NewService(repo,
			rbac.WithLogger(serviceLogger),
			rbac.WithAuditLogger(auditLog),
		)
		logger.Debugf("Connected to %s storage", storageType)
		return svc, db.Close, nil
	}
}

// serviceLevel maps the CLI log level onto the service logger, which only
// speaks up for warnings unless the CLI runs at debug
func serviceLevel(logger *logrus.Logger) observability.LogLevel {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		return observability.DebugLevel
	}
	return observability.WarnLevel
}

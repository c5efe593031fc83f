package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations. The SQL is portable between
// Postgres and SQLite: TEXT ids, JSON stored as TEXT, no server-side defaults.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					role_type VARCHAR(64) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					responsibilities TEXT,
					permissions TEXT NOT NULL,
					restrictions TEXT,
					is_built_in BOOLEAN NOT NULL,
					is_active BOOLEAN NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_roles_role_type ON roles(role_type);
				CREATE INDEX IF NOT EXISTS idx_roles_is_active ON roles(is_active);
			`,
		},
		{
			Version:     2,
			Description: "Create user_role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_role_assignments (
					id TEXT PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					role_id TEXT NOT NULL REFERENCES roles(id),
					application_id VARCHAR(255) NOT NULL,
					workspace_id VARCHAR(255),
					is_active BOOLEAN NOT NULL,
					expires_at TIMESTAMP,
					custom_permissions TEXT,
					assigned_at TIMESTAMP NOT NULL,
					assigned_by VARCHAR(255)
				);

				CREATE INDEX IF NOT EXISTS idx_user_role_assignments_user_id ON user_role_assignments(user_id);
				CREATE INDEX IF NOT EXISTS idx_user_role_assignments_role_id ON user_role_assignments(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Enforce one active assignment per user and application",
			SQL: `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_user_role_assignments_active
					ON user_role_assignments(user_id, application_id)
					WHERE is_active;
			`,
		},
		{
			Version:     4,
			Description: "Enforce one active built-in role per role type",
			SQL: `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_built_in_type
					ON roles(role_type)
					WHERE is_built_in AND is_active;
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

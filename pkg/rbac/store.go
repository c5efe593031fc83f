package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SQLStore is a Repository backed by database/sql. Queries use $n placeholders
// and run unchanged on Postgres (lib/pq) and SQLite (go-sqlite3).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQL-backed store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const roleColumns = `id, role_type, name, description, responsibilities, permissions, restrictions, is_built_in, is_active, created_at, updated_at`

const assignmentColumns = `id, user_id, role_id, application_id, workspace_id, is_active, expires_at, custom_permissions, assigned_at, assigned_by`

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLStore) InsertRole(ctx context.Context, role *RoleDefinition) error {
	responsibilities, permissions, restrictions, err := marshalRoleJSON(role)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO roles (` + roleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		role.ID,
		string(role.RoleType),
		role.Name,
		role.Description,
		responsibilities,
		permissions,
		restrictions,
		role.IsBuiltIn,
		role.IsActive,
		role.CreatedAt.UTC(),
		role.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflictf("role %s conflicts with an existing role", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRole(ctx context.Context, id string) (*RoleDefinition, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("role not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func (s *SQLStore) ListRolesByType(ctx context.Context, roleType RoleType) ([]*RoleDefinition, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE role_type = $1 ORDER BY created_at ASC, id ASC`
	return s.queryRoles(ctx, query, string(roleType))
}

func (s *SQLStore) ListRoles(ctx context.Context) ([]*RoleDefinition, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY created_at ASC, id ASC`
	return s.queryRoles(ctx, query)
}

func (s *SQLStore) UpdateRole(ctx context.Context, role *RoleDefinition) error {
	responsibilities, permissions, restrictions, err := marshalRoleJSON(role)
	if err != nil {
		return err
	}

	query := `
		UPDATE roles
		SET name = $1, description = $2, responsibilities = $3, permissions = $4,
		    restrictions = $5, is_active = $6, updated_at = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		role.Name,
		role.Description,
		responsibilities,
		permissions,
		restrictions,
		role.IsActive,
		role.UpdatedAt.UTC(),
		role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return NotFoundf("role not found: %s", role.ID)
	}
	return nil
}

func (s *SQLStore) queryRoles(ctx context.Context, query string, args ...interface{}) ([]*RoleDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*RoleDefinition
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

func (s *SQLStore) InsertActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := activeInTx(ctx, tx, a.UserID, a.ApplicationID)
		if err != nil {
			return err
		}

		for _, existing := range current {
			if existing.ActiveAt(now) {
				return Conflictf("user %s already has an active role in application %s", a.UserID, a.ApplicationID)
			}
		}
		// everything left is expired
		if err := deactivateRows(ctx, tx, current); err != nil {
			return err
		}
		return insertAssignment(ctx, tx, a)
	})
}

func (s *SQLStore) ListActive(ctx context.Context, userID, applicationID string) ([]*UserRoleAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM user_role_assignments WHERE user_id = $1 AND is_active = TRUE`
	args := []interface{}{userID}
	if applicationID != "" {
		query += ` AND application_id = $2`
		args = append(args, applicationID)
	}
	query += ` ORDER BY assigned_at DESC, id DESC`

	assignments, err := queryAssignments(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	// timestamp text ordering differs between drivers
	sortNewestFirst(assignments)
	return assignments, nil
}

func (s *SQLStore) DeactivateActive(ctx context.Context, userID, applicationID string, now time.Time) (int, error) {
	live := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := activeInTx(ctx, tx, userID, applicationID)
		if err != nil {
			return err
		}
		for _, existing := range current {
			if existing.ActiveAt(now) {
				live++
			}
		}
		return deactivateRows(ctx, tx, current)
	})
	if err != nil {
		return 0, err
	}
	return live, nil
}

func (s *SQLStore) ReplaceActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := activeInTx(ctx, tx, a.UserID, a.ApplicationID)
		if err != nil {
			return err
		}

		live := 0
		for _, existing := range current {
			if existing.ActiveAt(now) {
				live++
			}
		}
		if live == 0 {
			return NotFoundf("no active role for user %s in application %s", a.UserID, a.ApplicationID)
		}

		if err := deactivateRows(ctx, tx, current); err != nil {
			return err
		}
		return insertAssignment(ctx, tx, a)
	})
}

// inTx runs fn in a transaction, rolling back on any error
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return Conflictf("concurrent assignment change detected")
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// activeInTx reads the active assignments of a pair inside tx. The rows are
// not locked: concurrent writers are serialized by the partial unique index on
// active assignments, which fails the loser's insert or commit.
func activeInTx(ctx context.Context, tx *sql.Tx, userID, applicationID string) ([]*UserRoleAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM user_role_assignments
		WHERE user_id = $1 AND application_id = $2 AND is_active = TRUE
	`
	return queryAssignments(ctx, tx, query, userID, applicationID)
}

func deactivateRows(ctx context.Context, tx *sql.Tx, rows []*UserRoleAssignment) error {
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_role_assignments SET is_active = FALSE WHERE id = $1`,
			row.ID,
		); err != nil {
			return fmt.Errorf("failed to deactivate assignment %s: %w", row.ID, err)
		}
	}
	return nil
}

func insertAssignment(ctx context.Context, q queryer, a *UserRoleAssignment) error {
	var custom sql.NullString
	if a.CustomPermissions != nil {
		data, err := json.Marshal(a.CustomPermissions)
		if err != nil {
			return fmt.Errorf("failed to marshal custom permissions: %w", err)
		}
		custom = sql.NullString{String: string(data), Valid: true}
	}

	var expiresAt sql.NullTime
	if a.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: a.ExpiresAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO user_role_assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.RoleID,
		a.ApplicationID,
		nullString(a.WorkspaceID),
		a.IsActive,
		expiresAt,
		custom,
		a.AssignedAt.UTC(),
		nullString(a.AssignedBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflictf("user %s already has an active role in application %s", a.UserID, a.ApplicationID)
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func queryAssignments(ctx context.Context, q queryer, query string, args ...interface{}) ([]*UserRoleAssignment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []*UserRoleAssignment
	for rows.Next() {
		var a UserRoleAssignment
		var workspaceID, assignedBy, custom sql.NullString
		var expiresAt sql.NullTime

		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.RoleID,
			&a.ApplicationID,
			&workspaceID,
			&a.IsActive,
			&expiresAt,
			&custom,
			&a.AssignedAt,
			&assignedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		if workspaceID.Valid {
			v := workspaceID.String
			a.WorkspaceID = &v
		}
		if assignedBy.Valid {
			v := assignedBy.String
			a.AssignedBy = &v
		}
		if expiresAt.Valid {
			v := expiresAt.Time
			a.ExpiresAt = &v
		}
		if custom.Valid && custom.String != "" {
			if err := json.Unmarshal([]byte(custom.String), &a.CustomPermissions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal custom permissions: %w", err)
			}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*RoleDefinition, error) {
	var role RoleDefinition
	var roleType string
	var description, responsibilities, restrictions sql.NullString
	var permissions string

	if err := row.Scan(
		&role.ID,
		&roleType,
		&role.Name,
		&description,
		&responsibilities,
		&permissions,
		&restrictions,
		&role.IsBuiltIn,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, err
	}

	role.RoleType = RoleType(roleType)
	role.Description = description.String

	if err := json.Unmarshal([]byte(permissions), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	if responsibilities.Valid && responsibilities.String != "" {
		if err := json.Unmarshal([]byte(responsibilities.String), &role.Responsibilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal responsibilities: %w", err)
		}
	}
	if restrictions.Valid && restrictions.String != "" {
		if err := json.Unmarshal([]byte(restrictions.String), &role.Restrictions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal restrictions: %w", err)
		}
	}
	return &role, nil
}

func marshalRoleJSON(role *RoleDefinition) (responsibilities, permissions, restrictions string, err error) {
	perms := role.Permissions
	if perms == nil {
		perms = PermissionSet{}
	}
	resp := role.Responsibilities
	if resp == nil {
		resp = []string{}
	}
	restr := role.Restrictions
	if restr == nil {
		restr = map[string]interface{}{}
	}

	respJSON, err := json.Marshal(resp)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal responsibilities: %w", err)
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	restrJSON, err := json.Marshal(restr)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal restrictions: %w", err)
	}
	return string(respJSON), string(permsJSON), string(restrJSON), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation recognizes unique-index failures from Postgres and SQLite
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

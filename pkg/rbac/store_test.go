package rbac

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

var storeNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testRole(id string, roleType RoleType, builtIn bool) *RoleDefinition {
	return &RoleDefinition{
		ID:               id,
		RoleType:         roleType,
		Name:             "role " + id,
		Description:      "test role",
		Responsibilities: []string{"testing"},
		Permissions:      PermissionSet{PermMarketingDashboard: LevelRead},
		IsBuiltIn:        builtIn,
		IsActive:         true,
		CreatedAt:        storeNow,
		UpdatedAt:        storeNow,
	}
}

func testAssignment(id, userID, roleID, applicationID string, assignedAt time.Time) *UserRoleAssignment {
	return &UserRoleAssignment{
		ID:            id,
		UserID:        userID,
		RoleID:        roleID,
		ApplicationID: applicationID,
		IsActive:      true,
		AssignedAt:    assignedAt,
	}
}

func TestRepository_RoleCRUD(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			role := testRole("r1", RoleTypeCustomerManager, false)
			role.Restrictions = map[string]interface{}{"max_campaigns": float64(5)}
			require.NoError(t, repo.InsertRole(ctx, role))

			got, err := repo.GetRole(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, role.Name, got.Name)
			assert.Equal(t, RoleTypeCustomerManager, got.RoleType)
			assert.Equal(t, LevelRead, got.Permissions[PermMarketingDashboard])
			assert.Equal(t, []string{"testing"}, got.Responsibilities)
			assert.Equal(t, float64(5), got.Restrictions["max_campaigns"])
			assert.True(t, got.CreatedAt.Equal(storeNow))

			got.Name = "renamed"
			got.Permissions[PermABTesting] = LevelWrite
			got.IsActive = false
			require.NoError(t, repo.UpdateRole(ctx, got))

			updated, err := repo.GetRole(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "renamed", updated.Name)
			assert.Equal(t, LevelWrite, updated.Permissions[PermABTesting])
			assert.False(t, updated.IsActive)

			_, err = repo.GetRole(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			err = repo.UpdateRole(ctx, testRole("missing", RoleTypeCustomerAdmin, false))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepository_ListRoles(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older := testRole("b", RoleTypeCustomerAdmin, false)
			newer := testRole("a", RoleTypeCustomerAdmin, false)
			newer.CreatedAt = storeNow.Add(time.Minute)
			other := testRole("c", RoleTypeCustomerDeveloper, false)

			for _, r := range []*RoleDefinition{newer, other, older} {
				require.NoError(t, repo.InsertRole(ctx, r))
			}

			byType, err := repo.ListRolesByType(ctx, RoleTypeCustomerAdmin)
			require.NoError(t, err)
			require.Len(t, byType, 2)
			assert.Equal(t, "b", byType[0].ID)
			assert.Equal(t, "a", byType[1].ID)

			all, err := repo.ListRoles(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestRepository_BuiltInRoleUniqueness(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, repo.InsertRole(ctx, testRole("b1", RoleTypeCustomerAdmin, true)))

			err := repo.InsertRole(ctx, testRole("b2", RoleTypeCustomerAdmin, true))
			assert.ErrorIs(t, err, ErrConflict)

			// custom roles may share the type
			assert.NoError(t, repo.InsertRole(ctx, testRole("c1", RoleTypeCustomerAdmin, false)))
		})
	}
}

func TestRepository_InsertActive(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))

			first := testAssignment("a1", "u1", "r1", "app", storeNow)
			first.CustomPermissions = PermissionSet{PermABTesting: LevelAdmin}
			first.WorkspaceID = strPtr("ws")
			first.AssignedBy = strPtr("admin")
			require.NoError(t, repo.InsertActive(ctx, first, storeNow))

			err := repo.InsertActive(ctx, testAssignment("a2", "u1", "r1", "app", storeNow), storeNow)
			assert.ErrorIs(t, err, ErrConflict)

			// other applications are independent
			require.NoError(t, repo.InsertActive(ctx, testAssignment("a3", "u1", "r1", "other", storeNow), storeNow))

			active, err := repo.ListActive(ctx, "u1", "app")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "a1", active[0].ID)
			assert.Equal(t, LevelAdmin, active[0].CustomPermissions[PermABTesting])
			assert.Equal(t, "ws", *active[0].WorkspaceID)
			assert.Equal(t, "admin", *active[0].AssignedBy)
			assert.Nil(t, active[0].ExpiresAt)

			all, err := repo.ListActive(ctx, "u1", "")
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestRepository_InsertActiveReplacesExpired(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))

			expired := testAssignment("a1", "u1", "r1", "app", storeNow.Add(-2*time.Hour))
			expiresAt := storeNow.Add(-time.Hour)
			expired.ExpiresAt = &expiresAt
			require.NoError(t, repo.InsertActive(ctx, expired, storeNow.Add(-2*time.Hour)))

			require.NoError(t, repo.InsertActive(ctx, testAssignment("a2", "u1", "r1", "app", storeNow), storeNow))

			active, err := repo.ListActive(ctx, "u1", "app")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "a2", active[0].ID)
		})
	}
}

func TestRepository_DeactivateActive(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))
			require.NoError(t, repo.InsertActive(ctx, testAssignment("a1", "u1", "r1", "app", storeNow), storeNow))

			live, err := repo.DeactivateActive(ctx, "u1", "app", storeNow)
			require.NoError(t, err)
			assert.Equal(t, 1, live)

			live, err = repo.DeactivateActive(ctx, "u1", "app", storeNow)
			require.NoError(t, err)
			assert.Equal(t, 0, live)

			active, err := repo.ListActive(ctx, "u1", "app")
			require.NoError(t, err)
			assert.Empty(t, active)
		})
	}
}

func TestRepository_ReplaceActive(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))
			require.NoError(t, repo.InsertRole(ctx, testRole("r2", RoleTypeCustomerManager, false)))

			err := repo.ReplaceActive(ctx, testAssignment("a0", "u1", "r2", "app", storeNow), storeNow)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, repo.InsertActive(ctx, testAssignment("a1", "u1", "r1", "app", storeNow), storeNow))
			require.NoError(t, repo.ReplaceActive(ctx, testAssignment("a2", "u1", "r2", "app", storeNow.Add(time.Second)), storeNow.Add(time.Second)))

			active, err := repo.ListActive(ctx, "u1", "app")
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "a2", active[0].ID)
			assert.Equal(t, "r2", active[0].RoleID)
		})
	}
}

func TestRepository_ConcurrentInsertActive(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))

			const workers = 10
			var wg sync.WaitGroup
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					a := testAssignment(fmt.Sprintf("a%d", i), "u1", "r1", "app", storeNow)
					errs[i] = repo.InsertActive(ctx, a, storeNow)
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
				} else {
					assert.ErrorIs(t, err, ErrConflict)
				}
			}
			assert.Equal(t, 1, succeeded)

			active, err := repo.ListActive(ctx, "u1", "app")
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}

func TestRepository_ListActiveTieBreak(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertRole(ctx, testRole("r1", RoleTypeCustomerAdmin, false)))

			require.NoError(t, repo.InsertActive(ctx, testAssignment("a1", "u1", "r1", "app1", storeNow), storeNow))
			require.NoError(t, repo.InsertActive(ctx, testAssignment("a3", "u1", "r1", "app2", storeNow), storeNow))
			require.NoError(t, repo.InsertActive(ctx, testAssignment("a2", "u1", "r1", "app3", storeNow.Add(-time.Minute)), storeNow))

			active, err := repo.ListActive(ctx, "u1", "")
			require.NoError(t, err)
			require.Len(t, active, 3)
			assert.Equal(t, []string{"a3", "a1", "a2"}, []string{active[0].ID, active[1].ID, active[2].ID})
		})
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, RunMigrations(context.Background(), db, observability.NewNopLogger()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM rbac_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestSQLStore_GetRoleQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + roleColumns + " FROM roles WHERE id = $1")).
		WithArgs("r1").
		WillReturnError(errors.New("connection reset"))

	_, err = NewSQLStore(db).GetRole(context.Background(), "r1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InsertActiveRollsBackOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expiresAt := storeNow.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "role_id", "application_id", "workspace_id",
		"is_active", "expires_at", "custom_permissions", "assigned_at", "assigned_by",
	}).AddRow("a1", "u1", "r1", "app", nil, true, expiresAt, nil, storeNow, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM user_role_assignments").WithArgs("u1", "app").WillReturnRows(rows)
	mock.ExpectRollback()

	err = NewSQLStore(db).InsertActive(context.Background(), testAssignment("a2", "u1", "r1", "app", storeNow), storeNow)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InsertActiveTranslatesUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM user_role_assignments").WithArgs("u1", "app").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO user_role_assignments").
		WillReturnError(errors.New("UNIQUE constraint failed: user_role_assignments.user_id, user_role_assignments.application_id"))
	mock.ExpectRollback()

	err = NewSQLStore(db).InsertActive(context.Background(), testAssignment("a2", "u1", "r1", "app", storeNow), storeNow)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeactivateActiveBeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err = NewSQLStore(db).DeactivateActive(context.Background(), "u1", "app", storeNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: roles.role_type")))
	assert.False(t, isUniqueViolation(errors.New("syntax error")))
}

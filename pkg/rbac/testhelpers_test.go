package rbac

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingAudit keeps every event it is given
type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) ofType(eventType audit.EventType) []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.Event
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// setupTestDB opens a migrated in-memory SQLite database
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db, observability.NewNopLogger()))
	return db
}

// repositories returns every Repository implementation, freshly created
func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLStore(setupTestDB(t)),
	}
}

// testEnv is a seeded Service over one repository with a fake clock
type testEnv struct {
	svc   *Service
	repo  Repository
	clock *fakeClock
	audit *recordingAudit
}

func newTestEnv(t *testing.T, repo Repository, opts ...Option) *testEnv {
	t.Helper()

	clock := newFakeClock()
	rec := &recordingAudit{}
	opts = append([]Option{
		WithClock(clock.Now),
		WithAuditLogger(rec),
	}, opts...)

	svc := NewService(repo, opts...)
	_, err := svc.EnsureDefaultRoles(context.Background())
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, clock: clock, audit: rec}
}

func (e *testEnv) role(t *testing.T, roleType RoleType) *RoleDefinition {
	t.Helper()
	role, err := e.svc.Roles.GetRoleByType(context.Background(), roleType)
	require.NoError(t, err)
	return role
}

func (e *testEnv) assign(t *testing.T, userID string, roleType RoleType, applicationID string) *UserRoleAssignment {
	t.Helper()
	a, err := e.svc.AssignUserRole(context.Background(), AssignRequest{
		UserID:        userID,
		RoleID:        e.role(t, roleType).ID,
		ApplicationID: applicationID,
	})
	require.NoError(t, err)
	return a
}

func strPtr(s string) *string { return &s }

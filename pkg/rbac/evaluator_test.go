package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/accessplane/pkg/cache"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// countingRepo counts ListActive calls and can hold them until released
type countingRepo struct {
	Repository
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func newCountingRepo(repo Repository) *countingRepo {
	return &countingRepo{Repository: repo, entered: make(chan struct{}, 100)}
}

func (r *countingRepo) hold() {
	r.gate = make(chan struct{})
}

func (r *countingRepo) ListActive(ctx context.Context, userID, applicationID string) ([]*UserRoleAssignment, error) {
	r.calls.Add(1)
	if r.gate != nil {
		r.entered <- struct{}{}
		<-r.gate
	}
	return r.Repository.ListActive(ctx, userID, applicationID)
}

// failingCache fails every read and write
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (PermissionSet, error) {
	return nil, errors.New("redis down")
}

func (failingCache) Set(ctx context.Context, key string, value PermissionSet, ttl time.Duration) error {
	return errors.New("redis down")
}

func (failingCache) Delete(ctx context.Context, keys ...string) error { return errors.New("redis down") }
func (failingCache) Clear(ctx context.Context) error                  { return errors.New("redis down") }

// flakyCache is a memory cache whose deletes and clears can be made to fail
type flakyCache struct {
	*cache.MemoryCache[PermissionSet]
	failDelete atomic.Bool
	failClear  atomic.Bool
}

func newFlakyCache() *flakyCache {
	return &flakyCache{MemoryCache: cache.NewMemoryCache[PermissionSet](nil)}
}

func (c *flakyCache) Delete(ctx context.Context, keys ...string) error {
	if c.failDelete.Load() {
		return errors.New("redis: connection reset")
	}
	return c.MemoryCache.Delete(ctx, keys...)
}

func (c *flakyCache) Clear(ctx context.Context) error {
	if c.failClear.Load() {
		return errors.New("redis: connection reset")
	}
	return c.MemoryCache.Clear(ctx)
}

func TestCheckPermission_TotalOrder(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()

	for _, granted := range AccessLevels() {
		role, err := env.svc.Roles.CreateCustomRole(ctx, RoleDefinition{
			RoleType:    RoleTypeCustomerManager,
			Name:        "granted " + string(granted),
			Permissions: PermissionSet{PermMarketingDashboard: granted},
		})
		require.NoError(t, err)

		user := "user-" + string(granted)
		_, err = env.svc.AssignUserRole(ctx, AssignRequest{UserID: user, RoleID: role.ID, ApplicationID: "a1"})
		require.NoError(t, err)

		for _, required := range AccessLevels() {
			allowed, err := env.svc.CheckUserPermission(ctx, user, "a1", PermMarketingDashboard, required)
			require.NoError(t, err)
			assert.Equal(t, granted.Rank() >= required.Rank(), allowed, "granted %s, required %s", granted, required)
		}
	}
}

func TestCheckPermission_AdminOnMarketing(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypePlatformAdmin, "a1")

	for level, want := range map[AccessLevel]bool{
		LevelRead:        true,
		LevelWrite:       true,
		LevelAdmin:       true,
		LevelFullControl: false,
	} {
		allowed, err := env.svc.CheckUserPermission(ctx, "u1", "a1", PermMarketingDashboard, level)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, level)
	}
}

func TestGetUserPermissions_DefaultDeny(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypePlatformAdmin, "a1")

	perms, err := env.svc.GetUserPermissions(ctx, "u1", "other")
	require.NoError(t, err)
	assert.Empty(t, perms)

	for _, name := range DefaultPermissions().Names() {
		allowed, err := env.svc.CheckUserPermission(ctx, "u1", "other", name, LevelRead)
		require.NoError(t, err)
		assert.False(t, allowed, name)
	}

	allowed, err := env.svc.CheckUserPermission(ctx, "u1", "a1", "notAPermission", LevelRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGetUserPermissions_CustomOverride(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()

	developer := env.role(t, RoleTypeCustomerDeveloper)
	require.Equal(t, LevelWrite, developer.Permissions[PermTechnicalConfiguration])

	_, err := env.svc.AssignUserRole(ctx, AssignRequest{
		UserID:            "u1",
		RoleID:            developer.ID,
		ApplicationID:     "a1",
		CustomPermissions: PermissionSet{PermTechnicalConfiguration: LevelAdmin, PermReportExport: LevelRead},
	})
	require.NoError(t, err)

	perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, LevelAdmin, perms[PermTechnicalConfiguration])
	assert.Equal(t, LevelRead, perms[PermReportExport])
	assert.Equal(t, LevelFullControl, perms[PermAPIDocumentation])

	allowed, err := env.svc.CheckUserPermission(ctx, "u1", "a1", PermTechnicalConfiguration, LevelAdmin)
	require.NoError(t, err)
	assert.True(t, allowed)

	// the role itself is unchanged
	role, err := env.svc.Roles.GetRoleByID(ctx, developer.ID)
	require.NoError(t, err)
	assert.Equal(t, LevelWrite, role.Permissions[PermTechnicalConfiguration])
}

func TestNamedCapabilities_Developer(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerDeveloper, "a1")

	ok, err := env.svc.Evaluator.CanAccessMarketingDashboard(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.CheckUserPermission(ctx, "u1", "a1", PermMarketingDashboard, LevelWrite)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.svc.Evaluator.CanAccessAPIDocumentation(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	caps, err := env.svc.Evaluator.Capabilities(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"marketingDashboard": true,
		"abTesting":          false,
		"apiDocumentation":   true,
		"teamManagement":     false,
	}, caps)
}

func TestNamedCapabilities_CustomerAdmin(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")

	ok, err := env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_CacheCoherency(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, repo)
			ctx := context.Background()

			perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
			require.NoError(t, err)
			assert.Empty(t, perms)

			env.assign(t, "u1", RoleTypeCustomerDeveloper, "a1")
			ok, err := env.svc.Evaluator.CanAccessAPIDocumentation(ctx, "u1", "a1")
			require.NoError(t, err)
			assert.True(t, ok, "assign must invalidate the cached empty set")

			env.clock.Advance(time.Second)
			_, err = env.svc.UpdateUserRole(ctx, "u1", "a1", env.role(t, RoleTypeCustomerManager).ID)
			require.NoError(t, err)
			ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
			require.NoError(t, err)
			assert.True(t, ok, "update must invalidate the cached developer set")

			require.NoError(t, env.svc.RevokeUserRole(ctx, "u1", "a1"))
			perms, err = env.svc.GetUserPermissions(ctx, "u1", "a1")
			require.NoError(t, err)
			assert.Empty(t, perms, "revoke must invalidate the cached manager set")
		})
	}
}

func TestEvaluator_CachesWithinTTL(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	env := newTestEnv(t, repo, WithMetrics(metrics))
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")

	for i := 0; i < 3; i++ {
		_, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), repo.calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(cacheName)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(cacheName)))

	env.clock.Advance(DefaultPermissionTTL)
	_, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestEvaluator_ReturnsCopies(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerDeveloper, "a1")

	perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	perms[PermSystemConfiguration] = LevelFullControl

	again, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	_, ok := again[PermSystemConfiguration]
	assert.False(t, ok)
}

func TestEvaluator_ExpiryBoundsCacheTTL(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()

	expires := env.clock.Now().Add(5 * time.Minute)
	_, err := env.svc.AssignUserRole(ctx, AssignRequest{
		UserID:        "u1",
		RoleID:        env.role(t, RoleTypeCustomerAdmin).ID,
		ApplicationID: "a1",
		ExpiresAt:     &expires,
	})
	require.NoError(t, err)

	ok, err := env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	env.clock.Advance(5 * time.Minute)
	ok, err = env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok, "the cached set must not outlive the assignment")
}

func TestEvaluator_InactiveRoleYieldsEmptySet(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	a := env.assign(t, "u1", RoleTypeCustomerManager, "a1")

	perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.NotEmpty(t, perms)

	_, err = env.svc.Roles.DeactivateRole(ctx, a.RoleID)
	require.NoError(t, err)

	perms, err = env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestEvaluator_RoleUpdateInvalidatesSets(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	a := env.assign(t, "u1", RoleTypeCustomerManager, "a1")
	env.assign(t, "u2", RoleTypeCustomerManager, "a2")

	ok, err := env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.Roles.UpdateRole(ctx, a.RoleID, RoleUpdate{
		Permissions: PermissionSet{PermABTesting: LevelRead},
	})
	require.NoError(t, err)

	for _, pair := range [][2]string{{"u1", "a1"}, {"u2", "a2"}} {
		ok, err := env.svc.Evaluator.CanConfigureABTests(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, ok, pair)
	}
}

func TestEvaluator_CacheFailureFallsBackToStore(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	env := newTestEnv(t, NewMemoryStore(), WithCache(failingCache{}, 0), WithMetrics(metrics))
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")

	ok, err := env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.svc.RevokeUserRole(ctx, "u1", "a1"))
	ok, err = env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Greater(t, testutil.ToFloat64(metrics.CacheErrorsTotal.WithLabelValues(cacheName, "get")), float64(0))
}

func TestEvaluator_FailedInvalidationBypassesCachedSet(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	c := newFlakyCache()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	env := newTestEnv(t, repo, WithCache(c, 0), WithMetrics(metrics))
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")

	ok, err := env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, ok)

	c.failDelete.Store(true)
	require.NoError(t, env.svc.RevokeUserRole(ctx, "u1", "a1"))

	ok, err = env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheErrorsTotal.WithLabelValues(cacheName, "delete")))

	// the recomputed set replaced the stale entry, so the cache serves it again
	calls := repo.calls.Load()
	ok, err = env.svc.Evaluator.CanManageTeam(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, repo.calls.Load())
}

func TestEvaluator_FailedClearBypassesCacheUntilRetried(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	c := newFlakyCache()
	env := newTestEnv(t, repo, WithCache(c, 0))
	ctx := context.Background()
	a := env.assign(t, "u1", RoleTypeCustomerManager, "a1")

	ok, err := env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, ok)

	c.failClear.Store(true)
	_, err = env.svc.Roles.UpdateRole(ctx, a.RoleID, RoleUpdate{
		Permissions: PermissionSet{PermABTesting: LevelRead},
	})
	require.NoError(t, err)

	// nothing is read from or written to the cache while the clear is owed
	for i := 0; i < 2; i++ {
		calls := repo.calls.Load()
		ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, calls+1, repo.calls.Load())
	}

	c.failClear.Store(false)
	ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	calls := repo.calls.Load()
	ok, err = env.svc.Evaluator.CanConfigureABTests(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, calls, repo.calls.Load())
}

func TestEvaluator_ConcurrentMissesShareOneLoad(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	env := newTestEnv(t, repo)
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")
	repo.hold()

	const workers = 8
	var started, wg sync.WaitGroup
	results := make([]PermissionSet, workers)
	for i := 0; i < workers; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
			assert.NoError(t, err)
			results[i] = perms
		}(i)
	}

	<-repo.entered
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.calls.Load())
	for _, perms := range results {
		assert.Equal(t, LevelFullControl, perms[PermTeamManagement])
	}
}

func TestEvaluator_InvalidationDuringLoadIsNotCached(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	env := newTestEnv(t, repo)
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")
	repo.hold()

	done := make(chan PermissionSet)
	go func() {
		perms, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
		assert.NoError(t, err)
		done <- perms
	}()

	<-repo.entered
	env.svc.Evaluator.Invalidate(ctx, "u1", "a1")
	close(repo.gate)
	<-done

	_, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load(), "a load overtaken by an invalidation must not be cached")
}

func TestEvaluator_CallerCancellation(t *testing.T) {
	repo := newCountingRepo(NewMemoryStore())
	env := newTestEnv(t, repo)
	env.assign(t, "u1", RoleTypeCustomerAdmin, "a1")
	repo.hold()
	defer close(repo.gate)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := env.svc.GetUserPermissions(ctx, "u1", "a1")
		errs <- err
	}()

	<-repo.entered
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestEvaluator_Validation(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()

	_, err := env.svc.GetUserPermissions(ctx, "", "a1")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CheckUserPermission(ctx, "u1", "a1", "", LevelRead)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CheckUserPermission(ctx, "u1", "a1", PermABTesting, "SUPER")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Evaluator.GetUserRoleTypes(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEvaluator_Check(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerDeveloper, "a1")

	result, err := env.svc.Evaluator.Check(ctx, PermissionCheck{
		UserID: "u1", ApplicationID: "a1", Permission: PermMarketingDashboard, Level: LevelWrite,
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, LevelRead, result.Granted)
	assert.Contains(t, result.Reason, "WRITE required")

	result, err = env.svc.Evaluator.Check(ctx, PermissionCheck{
		UserID: "u1", ApplicationID: "a1", Permission: PermBillingManagement, Level: LevelRead,
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Empty(t, result.Granted)

	result, err = env.svc.Evaluator.Check(ctx, PermissionCheck{
		UserID: "u1", ApplicationID: "a1", Permission: PermSandboxAccess, Level: LevelFullControl,
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
}

func TestEvaluator_GetUserRoleTypes(t *testing.T) {
	env := newTestEnv(t, NewMemoryStore())
	ctx := context.Background()
	env.assign(t, "u1", RoleTypeCustomerManager, "a1")

	types, err := env.svc.Evaluator.GetUserRoleTypes(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, []RoleType{RoleTypeCustomerManager}, types)

	types, err = env.svc.Evaluator.GetUserRoleTypes(ctx, "u1", "a2")
	require.NoError(t, err)
	assert.Empty(t, types)
}

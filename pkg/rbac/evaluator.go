package rbac

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/accessplane/pkg/cache"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

const cacheName = "permissions"

// generationStripes bounds the memory used to detect invalidations that race
// with a load. Keys hashing to the same stripe share a counter.
const generationStripes = 256

// Evaluator computes effective permission sets and answers permission checks.
// A user with no live assignment in an application has an empty set, so every
// check for that pair is denied.
type Evaluator struct {
	repo    Repository
	cache   cache.Cache[PermissionSet]
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	loads       singleflight.Group
	generations [generationStripes]atomic.Uint64

	// entries that could not be dropped from the cache. Reads bypass them
	// until a later write or delete of the key succeeds.
	staleMu   sync.Mutex
	stale     map[string]uint64
	clearOwed atomic.Uint64
	clearSeq  atomic.Uint64
}

// NewEvaluator creates an evaluator reading assignments and roles from repo
func NewEvaluator(repo Repository, opts ...Option) *Evaluator {
	o := buildOptions(opts)
	return &Evaluator{
		repo:    repo,
		cache:   o.cache,
		ttl:     o.cacheTTL,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		now:     o.now,
		stale:   make(map[string]uint64),
	}
}

// loadResult is what a shared load hands to every waiting caller
type loadResult struct {
	perms PermissionSet
	ttl   time.Duration
}

// GetUserPermissions returns the effective permission set of userID in
// applicationID: the permissions of the most recently assigned live role with
// the assignment's custom permissions laid over them.
func (e *Evaluator) GetUserPermissions(ctx context.Context, userID, applicationID string) (PermissionSet, error) {
	if userID == "" || applicationID == "" {
		return nil, Validationf("user id and application id are required")
	}

	ctx, span := e.tracer.Start(ctx, "rbac.GetUserPermissions", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("application.id", applicationID),
	))
	defer span.End()

	key := cache.PermissionKey(userID, applicationID)

	if e.isStale(key) {
		// the cached entry may predate a write whose invalidation failed
		e.countCache(false)
		span.SetAttributes(attribute.Bool("cache.stale", true))
	} else {
		cached, err := e.cache.Get(ctx, key)
		switch {
		case err == nil:
			e.countCache(true)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached.Clone(), nil
		case errors.Is(err, cache.ErrCacheMiss):
			e.countCache(false)
		default:
			// backend failure: recompute from the store, never fail open
			e.countCacheError("get")
			e.logger.WithError(err).WithField("key", key).Warn("Permission cache read failed")
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// callers arriving after an invalidation must not join a load that began before it
	generation := e.generation(key)
	flight := key + "#" + strconv.FormatUint(generation, 10)
	ch := e.loads.DoChan(flight, func() (interface{}, error) {
		// detached so one caller giving up does not fail the others
		loadCtx := context.WithoutCancel(ctx)

		start := time.Now()
		perms, ttl, err := e.compute(loadCtx, userID, applicationID)
		if e.metrics != nil {
			e.metrics.PermissionEvalDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return nil, err
		}

		e.store(loadCtx, key, generation, perms, ttl)
		return loadResult{perms: perms, ttl: ttl}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return nil, res.Err
		}
		return res.Val.(loadResult).perms.Clone(), nil
	}
}

// store caches perms unless the key was invalidated since generation was read.
// The generation is checked again after the write, since an invalidation may
// land between the first check and the write. A successful write replaces a
// stale entry, so the key is readable from the cache again.
func (e *Evaluator) store(ctx context.Context, key string, generation uint64, perms PermissionSet, ttl time.Duration) {
	if ttl <= 0 || e.generation(key) != generation {
		return
	}
	if !e.settleClear(ctx) {
		return
	}
	if err := e.cache.Set(ctx, key, perms, ttl); err != nil {
		e.countCacheError("set")
		e.logger.WithError(err).WithField("key", key).Warn("Permission cache write failed")
		return
	}
	if e.generation(key) != generation {
		if err := e.cache.Delete(ctx, key); err != nil {
			e.countCacheError("delete")
			e.markStale(key)
		}
		return
	}
	e.unmarkStale(key, generation)
}

// compute loads the effective set from the store, together with how long it
// may be cached
func (e *Evaluator) compute(ctx context.Context, userID, applicationID string) (PermissionSet, time.Duration, error) {
	now := e.now()

	current, err := e.currentAssignment(ctx, userID, applicationID, now)
	if err != nil {
		return nil, 0, err
	}
	if current == nil {
		e.logger.WithFields(map[string]interface{}{
			"user_id":        userID,
			"application_id": applicationID,
		}).Debug("No live assignment, permission set is empty")
		return PermissionSet{}, e.ttl, nil
	}

	role, err := e.repo.GetRole(ctx, current.RoleID)
	if errors.Is(err, ErrNotFound) {
		e.logger.WithField("role_id", current.RoleID).Warn("Assignment references a missing role")
		return PermissionSet{}, e.ttl, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load role %s: %w", current.RoleID, err)
	}
	if !role.IsActive {
		return PermissionSet{}, e.ttl, nil
	}

	ttl := e.ttl
	if current.ExpiresAt != nil {
		if untilExpiry := current.ExpiresAt.Sub(now); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}

	return role.Permissions.Overlay(current.CustomPermissions), ttl, nil
}

// currentAssignment returns the most recently assigned live assignment, or nil
func (e *Evaluator) currentAssignment(ctx context.Context, userID, applicationID string, now time.Time) (*UserRoleAssignment, error) {
	assignments, err := e.repo.ListActive(ctx, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	sortNewestFirst(assignments)

	for _, a := range assignments {
		if a.ActiveAt(now) {
			return a, nil
		}
	}
	return nil, nil
}

// CheckPermission reports whether userID holds at least level on permission
// in applicationID. An absent permission is denied.
func (e *Evaluator) CheckPermission(ctx context.Context, userID, applicationID, permission string, level AccessLevel) (bool, error) {
	result, err := e.Check(ctx, PermissionCheck{
		UserID:        userID,
		ApplicationID: applicationID,
		Permission:    permission,
		Level:         level,
	})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// Check answers a PermissionCheck with the level actually granted
func (e *Evaluator) Check(ctx context.Context, check PermissionCheck) (*PermissionCheckResult, error) {
	if check.Permission == "" {
		return nil, Validationf("permission name is required")
	}
	if !check.Level.Valid() {
		return nil, Validationf("invalid access level %q", check.Level)
	}

	perms, err := e.GetUserPermissions(ctx, check.UserID, check.ApplicationID)
	if err != nil {
		return nil, err
	}

	result := &PermissionCheckResult{CheckedAt: e.now().UTC()}
	granted, ok := perms[check.Permission]
	switch {
	case !ok:
		result.Reason = fmt.Sprintf("permission %s not granted", check.Permission)
	case !granted.AtLeast(check.Level):
		result.Granted = granted
		result.Reason = fmt.Sprintf("permission %s granted at %s, %s required", check.Permission, granted, check.Level)
	default:
		result.Allowed = true
		result.Granted = granted
	}

	if e.metrics != nil {
		outcome := "denied"
		if result.Allowed {
			outcome = "allowed"
		}
		e.metrics.PermissionChecksTotal.WithLabelValues(check.Permission, string(check.Level), outcome).Inc()
	}
	return result, nil
}

// GetUserRoleTypes returns the role types of userID's live assignments in
// applicationID. Assignments to inactive roles contribute nothing.
func (e *Evaluator) GetUserRoleTypes(ctx context.Context, userID, applicationID string) ([]RoleType, error) {
	if userID == "" || applicationID == "" {
		return nil, Validationf("user id and application id are required")
	}

	assignments, err := e.repo.ListActive(ctx, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	now := e.now()
	seen := make(map[RoleType]bool)
	var types []RoleType
	for _, a := range assignments {
		if !a.ActiveAt(now) {
			continue
		}
		role, err := e.repo.GetRole(ctx, a.RoleID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load role %s: %w", a.RoleID, err)
		}
		if role.IsActive && !seen[role.RoleType] {
			seen[role.RoleType] = true
			types = append(types, role.RoleType)
		}
	}
	return types, nil
}

// Invalidate drops the cached set of (userID, applicationID). Loads already
// in flight for the pair will not write their result back.
func (e *Evaluator) Invalidate(ctx context.Context, userID, applicationID string) {
	key := cache.PermissionKey(userID, applicationID)
	generation := e.generations[stripe(key)].Add(1)

	if err := e.cache.Delete(ctx, key); err != nil {
		e.countCacheError("delete")
		e.markStale(key)
		e.logger.WithError(err).WithField("key", key).Error("Permission cache invalidation failed, bypassing cached entry")
		return
	}
	e.unmarkStale(key, generation)
	if e.metrics != nil {
		e.metrics.CacheInvalidationsTotal.WithLabelValues(cacheName).Inc()
	}
}

// InvalidateAll drops every cached set. Role changes call it, since any
// number of assignments may point at the changed role.
func (e *Evaluator) InvalidateAll(ctx context.Context) {
	for i := range e.generations {
		e.generations[i].Add(1)
	}

	owed := e.clearOwed.Load()
	if err := e.cache.Clear(ctx); err != nil {
		e.countCacheError("clear")
		e.clearOwed.Store(e.clearSeq.Add(1))
		e.logger.WithError(err).Error("Permission cache clear failed, bypassing cache until it succeeds")
		return
	}
	e.clearOwed.CompareAndSwap(owed, 0)
	if e.metrics != nil {
		e.metrics.CacheInvalidationsTotal.WithLabelValues(cacheName).Inc()
	}
}

// markStale records that key may hold an entry older than the last write
func (e *Evaluator) markStale(key string) {
	e.staleMu.Lock()
	e.stale[key] = e.generation(key)
	e.staleMu.Unlock()
}

// unmarkStale forgets key unless it was marked after generation was read
func (e *Evaluator) unmarkStale(key string, generation uint64) {
	e.staleMu.Lock()
	defer e.staleMu.Unlock()
	if marked, ok := e.stale[key]; ok && marked <= generation {
		delete(e.stale, key)
	}
}

func (e *Evaluator) isStale(key string) bool {
	if e.clearOwed.Load() != 0 {
		return true
	}
	e.staleMu.Lock()
	_, ok := e.stale[key]
	e.staleMu.Unlock()
	return ok
}

// settleClear retries a clear that failed earlier. It reports whether the
// cache may be written.
func (e *Evaluator) settleClear(ctx context.Context) bool {
	owed := e.clearOwed.Load()
	if owed == 0 {
		return true
	}
	if err := e.cache.Clear(ctx); err != nil {
		e.countCacheError("clear")
		return false
	}
	e.clearOwed.CompareAndSwap(owed, 0)
	return true
}

func (e *Evaluator) generation(key string) uint64 {
	return e.generations[stripe(key)].Load()
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % generationStripes
}

func (e *Evaluator) countCache(hit bool) {
	if e.metrics == nil {
		return
	}
	if hit {
		e.metrics.CacheHitsTotal.WithLabelValues(cacheName).Inc()
	} else {
		e.metrics.CacheMissesTotal.WithLabelValues(cacheName).Inc()
	}
}

func (e *Evaluator) countCacheError(operation string) {
	if e.metrics != nil {
		e.metrics.CacheErrorsTotal.WithLabelValues(cacheName, operation).Inc()
	}
}

// Minimum levels of the named capabilities
const (
	MarketingDashboardLevel = LevelRead
	ABTestingLevel          = LevelWrite
	APIDocumentationLevel   = LevelRead
	TeamManagementLevel     = LevelAdmin
)

// CanAccessMarketingDashboard requires READ on marketingDashboard
func (e *Evaluator) CanAccessMarketingDashboard(ctx context.Context, userID, applicationID string) (bool, error) {
	return e.CheckPermission(ctx, userID, applicationID, PermMarketingDashboard, MarketingDashboardLevel)
}

// CanConfigureABTests requires WRITE on abTesting
func (e *Evaluator) CanConfigureABTests(ctx context.Context, userID, applicationID string) (bool, error) {
	return e.CheckPermission(ctx, userID, applicationID, PermABTesting, ABTestingLevel)
}

// CanAccessAPIDocumentation requires READ on apiDocumentation
func (e *Evaluator) CanAccessAPIDocumentation(ctx context.Context, userID, applicationID string) (bool, error) {
	return e.CheckPermission(ctx, userID, applicationID, PermAPIDocumentation, APIDocumentationLevel)
}

// CanManageTeam requires ADMIN on teamManagement
func (e *Evaluator) CanManageTeam(ctx context.Context, userID, applicationID string) (bool, error) {
	return e.CheckPermission(ctx, userID, applicationID, PermTeamManagement, TeamManagementLevel)
}

// Capabilities evaluates every named capability from a single permission set
func (e *Evaluator) Capabilities(ctx context.Context, userID, applicationID string) (map[string]bool, error) {
	perms, err := e.GetUserPermissions(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}
	return map[string]bool{
		"marketingDashboard": perms.Allows(PermMarketingDashboard, MarketingDashboardLevel),
		"abTesting":          perms.Allows(PermABTesting, ABTestingLevel),
		"apiDocumentation":   perms.Allows(PermAPIDocumentation, APIDocumentationLevel),
		"teamManagement":     perms.Allows(PermTeamManagement, TeamManagementLevel),
	}, nil
}

// Package rbac provides the multi-tenant role-based access control core of accessplane.
//
// # Overview
//
// Users are bound to roles within an application (tenant). A role carries a
// map of permission names to access levels; the effective permission set of a
// user in an application is the role's map with the assignment's custom
// permissions laid over it. Permission checks compare the granted level with
// the required one using the total order READ < WRITE < ADMIN < FULL_CONTROL.
//
// # Components
//
//   1. RoleRegistry: role definitions, built-in seeding, custom roles
//   2. AssignmentService: at most one live assignment per (user, application)
//   3. Evaluator: cached effective permission sets and permission checks
//   4. Gate: authorization of operations against a declared Requirement
//
// Service wires all four over one Repository.
//
// # Role Types
//
//	PLATFORM_ADMIN      - provider-side administrator
//	PLATFORM_MANAGER    - provider-side manager
//	CUSTOMER_ADMIN      - tenant administrator
//	CUSTOMER_MANAGER    - tenant business manager
//	CUSTOMER_DEVELOPER  - tenant developer
//
// EnsureDefaultRoles creates one built-in role per type. It is idempotent and
// is meant to be called once by the composition root at startup:
//
//	svc := rbac.NewService(store, rbac.WithLogger(logger))
//	if _, err := svc.EnsureDefaultRoles(ctx); err != nil {
//		return err
//	}
//
// # Assignments
//
//	assignment, err := svc.AssignUserRole(ctx, rbac.AssignRequest{
//		UserID:        "u1",
//		RoleID:        role.ID,
//		ApplicationID: "a1",
//	})
//	if errors.Is(err, rbac.ErrConflict) {
//		// the user already holds a live role in a1; use UpdateUserRole
//	}
//
// An assignment is live while it is active and its ExpiresAt, if any, is in
// the future. Update replaces the live assignment in one atomic step.
//
// # Permission Checks
//
//	allowed, err := svc.CheckUserPermission(ctx, "u1", "a1", rbac.PermMarketingDashboard, rbac.LevelRead)
//
// A user without a live assignment has an empty permission set and every
// check is denied. Permission sets are cached for DefaultPermissionTTL and
// invalidated on every assignment change.
//
// # Authorization Gate
//
// HTTP routes declare a Requirement through Gate.Require:
//
//	router.Handle("/v1/applications/{app}/campaigns",
//		gate.Require(rbac.RequirePermission(rbac.PermCampaignManagement, rbac.LevelWrite))(handler))
//
// Unauthenticated callers get 401, failed role or permission checks get 403.
// Requirements naming an unregistered permission panic at registration.
//
// # Storage
//
// SQLStore persists to PostgreSQL or SQLite; a partial unique index enforces
// the single live assignment per pair. MemoryStore provides the same
// guarantees in process. Apply migrations with RunMigrations.
package rbac

// Package middleware provides HTTP authentication and rate limiting middleware.
//
// AuthMiddleware validates "Authorization: Bearer <jwt>" headers and stores
// the resolved *auth.AuthContext on the request context:
//
//	router.Use(middleware.NewAuthMiddleware(tokenManager, true).Handler)
//	authCtx := middleware.GetAuthContext(r) // nil when unauthenticated
//
// In optional mode unauthenticated requests pass through so that public
// routes stay reachable; the rbac gate then rejects protected routes with 401.
//
// RateLimitMiddleware runs after authentication and limits each user, or each
// client IP for anonymous requests. RateLimiter keeps token buckets in memory;
// DistributedRateLimiter counts fixed windows in Redis so every instance
// shares one limit.
package middleware

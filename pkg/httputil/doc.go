// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteKindError(w, "not_found", "role not found: 42")
//
// Error bodies always carry a stable machine-readable kind plus a message:
//
//	{"error": "forbidden", "message": "permission marketingDashboard requires WRITE"}
//
// StatusForKind maps a kind to its HTTP status.
//
// # Request Parsing
//
//	var req AssignRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	appID, ok := httputil.ParsePathStringOrError(w, r, "app")
//	limit, err := httputil.ParseQueryInt(r, "limit", 100)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil

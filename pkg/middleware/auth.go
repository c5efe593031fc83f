package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/accessplane/pkg/auth"
	"github.com/platinummonkey/accessplane/pkg/contextkeys"
	"github.com/platinummonkey/accessplane/pkg/httputil"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// TokenValidator resolves a bearer token into an identity
type TokenValidator interface {
	ValidateToken(token string) (*auth.AuthContext, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. In optional mode
// requests without an Authorization header pass through unauthenticated; a
// header that is present must still be valid.
func NewAuthMiddleware(validator TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		optional:  optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		authCtx, err := m.validator.ValidateToken(parts[1])
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("Bearer token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
	})
}

// WithAuthContext attaches an identity to ctx, also tagging request logs with the user id
func WithAuthContext(ctx context.Context, authCtx *auth.AuthContext) context.Context {
	ctx = contextkeys.WithAuth(ctx, authCtx)
	return observability.WithUserID(ctx, authCtx.UserID)
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return AuthContextFrom(r.Context())
}

// AuthContextFrom extracts auth context from ctx; nil when unauthenticated
func AuthContextFrom(ctx context.Context) *auth.AuthContext {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

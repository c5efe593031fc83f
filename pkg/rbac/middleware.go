package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/accessplane/pkg/httputil"
	"github.com/platinummonkey/accessplane/pkg/middleware"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// ApplicationVar is the route variable holding the application id
const ApplicationVar = "app"

// Require returns middleware that authorizes each request against req in the
// application named by the {app} route variable. It panics if req is invalid,
// so a typo in a permission name fails at route registration.
func (g *Gate) Require(req Requirement) func(http.Handler) http.Handler {
	return g.require(req, func(r *http.Request) string {
		return mux.Vars(r)[ApplicationVar]
	})
}

// RequireIn is Require for routes outside any application: checks run in the
// fixed applicationID
func (g *Gate) RequireIn(applicationID string, req Requirement) func(http.Handler) http.Handler {
	return g.require(req, func(*http.Request) string {
		return applicationID
	})
}

func (g *Gate) require(req Requirement, application func(*http.Request) string) func(http.Handler) http.Handler {
	if err := req.Validate(g.permissions); err != nil {
		panic("rbac: invalid requirement " + req.String() + ": " + err.Error())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if authCtx := middleware.GetAuthContext(r); authCtx.Authenticated() {
				userID = authCtx.UserID
			}

			applicationID := application(r)
			ctx := r.Context()
			if applicationID != "" {
				ctx = observability.WithApplicationID(ctx, applicationID)
			}

			if err := g.Authorize(ctx, userID, applicationID, req); err != nil {
				writeError(w, r.WithContext(ctx), err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError maps a typed error to its status code. Anything else is logged
// and reported as an internal error without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if errors.As(err, &e) {
		httputil.WriteKindError(w, string(e.Kind), e.Message)
		return
	}
	observability.FromContext(r.Context()).WithError(err).Error("Request failed")
	httputil.WriteInternalError(w)
}

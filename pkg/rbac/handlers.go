package rbac

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/accessplane/pkg/httputil"
	"github.com/platinummonkey/accessplane/pkg/middleware"
)

// DefaultPlatformApplication is the application in which role management is
// authorized, since roles themselves belong to no application
const DefaultPlatformApplication = "platform"

// Handlers provides HTTP handlers for role, assignment and permission operations
type Handlers struct {
	svc         *Service
	platformApp string
}

// NewHandlers creates handlers over svc. Role mutations require
// systemConfiguration at ADMIN in platformApp.
func NewHandlers(svc *Service, platformApp string) *Handlers {
	if platformApp == "" {
		platformApp = DefaultPlatformApplication
	}
	return &Handlers{
		svc:         svc,
		platformApp: platformApp,
	}
}

// RegisterRoutes registers all routes on router. The router must already run
// the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	gate := h.svc.Gate
	authenticated := gate.Require(Authenticated())
	manageRoles := gate.RequireIn(h.platformApp, RequirePermission(PermSystemConfiguration, LevelAdmin))
	manageTeam := gate.Require(RequirePermission(PermTeamManagement, LevelAdmin))
	viewTeam := gate.Require(RequirePermission(PermTeamManagement, LevelRead))

	// Roles
	router.Handle("/v1/roles", authenticated(http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/v1/roles", manageRoles(http.HandlerFunc(h.CreateRole))).Methods("POST")
	router.Handle("/v1/roles/{id}", authenticated(http.HandlerFunc(h.GetRole))).Methods("GET")
	router.Handle("/v1/roles/{id}", manageRoles(http.HandlerFunc(h.UpdateRole))).Methods("PATCH")
	router.Handle("/v1/roles/{id}/deactivate", manageRoles(http.HandlerFunc(h.DeactivateRole))).Methods("POST")

	// Assignments
	router.Handle("/v1/applications/{app}/assignments", manageTeam(http.HandlerFunc(h.AssignRole))).Methods("POST")
	router.Handle("/v1/applications/{app}/users/{user}/roles", viewTeam(http.HandlerFunc(h.GetUserRoles))).Methods("GET")
	router.Handle("/v1/applications/{app}/users/{user}/role", manageTeam(http.HandlerFunc(h.UpdateUserRole))).Methods("PUT")
	router.Handle("/v1/applications/{app}/users/{user}/role", manageTeam(http.HandlerFunc(h.RevokeUserRole))).Methods("DELETE")

	// Permissions
	router.Handle("/v1/applications/{app}/users/{user}/permissions", viewTeam(http.HandlerFunc(h.GetUserPermissions))).Methods("GET")
	router.Handle("/v1/applications/{app}/check", authenticated(http.HandlerFunc(h.CheckPermission))).Methods("POST")
	router.Handle("/v1/applications/{app}/me/capabilities", authenticated(http.HandlerFunc(h.GetCapabilities))).Methods("GET")
}

// ListRoles lists every active role
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.GetAllRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// CreateRole creates a custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var def RoleDefinition
	if !httputil.ParseJSONOrError(w, r, &def) {
		return
	}

	role, err := h.svc.Roles.CreateCustomRole(r.Context(), def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole returns one active role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.svc.Roles.GetRoleByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole merges a partial update into a role
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var update RoleUpdate
	if !httputil.ParseJSONOrError(w, r, &update) {
		return
	}

	role, err := h.svc.Roles.UpdateRole(r.Context(), id, update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeactivateRole soft-deletes a role
func (h *Handlers) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.svc.Roles.DeactivateRole(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// assignRequest is the body of the assignment routes. The application comes
// from the path and the assigner from the caller's identity.
type assignRequest struct {
	UserID            string        `json:"user_id"`
	RoleID            string        `json:"role_id"`
	WorkspaceID       *string       `json:"workspace_id,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	CustomPermissions PermissionSet `json:"custom_permissions,omitempty"`
}

func (req assignRequest) options(r *http.Request) AssignOptions {
	opts := AssignOptions{
		WorkspaceID:       req.WorkspaceID,
		ExpiresAt:         req.ExpiresAt,
		CustomPermissions: req.CustomPermissions,
	}
	if authCtx := middleware.GetAuthContext(r); authCtx.Authenticated() {
		assignedBy := authCtx.UserID
		opts.AssignedBy = &assignedBy
	}
	return opts
}

// authorizeGrant checks the requested role and overrides against the caller's
// own permissions in the application
func (h *Handlers) authorizeGrant(r *http.Request, app string, req assignRequest) error {
	if req.RoleID == "" {
		return Validationf("role id is required")
	}
	grantor := ""
	if authCtx := middleware.GetAuthContext(r); authCtx.Authenticated() {
		grantor = authCtx.UserID
	}
	return h.svc.AuthorizeGrant(r.Context(), grantor, app, req.RoleID, req.CustomPermissions)
}

// AssignRole assigns a role to a user in the application
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	app, ok := httputil.ParsePathStringOrError(w, r, ApplicationVar)
	if !ok {
		return
	}

	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.authorizeGrant(r, app, req); err != nil {
		writeError(w, r, err)
		return
	}

	assignment, err := h.svc.Assignments.AssignUserRole(r.Context(), req.UserID, req.RoleID, app, req.options(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

// GetUserRoles lists a user's live assignments in the application
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	app, user, ok := parseAppUser(w, r)
	if !ok {
		return
	}

	roles, err := h.svc.Assignments.GetUserRoles(r.Context(), user, app)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assignments": roles})
}

// UpdateUserRole replaces a user's live role in the application
func (h *Handlers) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	app, user, ok := parseAppUser(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID != "" && req.UserID != user {
		httputil.WriteBadRequest(w, "user_id does not match path")
		return
	}

	if err := h.authorizeGrant(r, app, req); err != nil {
		writeError(w, r, err)
		return
	}

	assignment, err := h.svc.Assignments.Update(r.Context(), user, app, req.RoleID, req.options(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, assignment)
}

// RevokeUserRole removes a user's live role in the application
func (h *Handlers) RevokeUserRole(w http.ResponseWriter, r *http.Request) {
	app, user, ok := parseAppUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.RevokeUserRole(r.Context(), user, app); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetUserPermissions returns a user's effective permission set in the application
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	app, user, ok := parseAppUser(w, r)
	if !ok {
		return
	}

	perms, err := h.svc.GetUserPermissions(r.Context(), user, app)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":        user,
		"application_id": app,
		"permissions":    perms,
	})
}

// CheckPermission answers a permission check. Checking anyone but the caller
// requires teamManagement at READ.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	app, ok := httputil.ParsePathStringOrError(w, r, ApplicationVar)
	if !ok {
		return
	}

	var check PermissionCheck
	if !httputil.ParseJSONOrError(w, r, &check) {
		return
	}

	caller := middleware.GetAuthContext(r).UserID
	if check.UserID == "" {
		check.UserID = caller
	}
	if check.UserID != caller {
		if err := h.svc.Gate.Authorize(r.Context(), caller, app, RequirePermission(PermTeamManagement, LevelRead)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	check.ApplicationID = app

	result, err := h.svc.Evaluator.Check(r.Context(), check)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// GetCapabilities evaluates the named capabilities for the caller
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	app, ok := httputil.ParsePathStringOrError(w, r, ApplicationVar)
	if !ok {
		return
	}

	caps, err := h.svc.Evaluator.Capabilities(r.Context(), middleware.GetAuthContext(r).UserID, app)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"application_id": app,
		"capabilities":   caps,
	})
}

func parseAppUser(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	app, ok := httputil.ParsePathStringOrError(w, r, ApplicationVar)
	if !ok {
		return "", "", false
	}
	user, ok := httputil.ParsePathStringOrError(w, r, "user")
	if !ok {
		return "", "", false
	}
	return app, user, true
}

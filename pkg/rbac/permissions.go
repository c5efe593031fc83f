package rbac

import (
	"sort"
	"sync"
)

// Permission names recognized out of the box, grouped by feature area
const (
	// system
	PermSystemConfiguration = "systemConfiguration"
	PermUserManagement      = "userManagement"
	PermBillingManagement   = "billingManagement"

	// technical
	PermTechnicalConfiguration = "technicalConfiguration"
	PermAPIDocumentation       = "apiDocumentation"
	PermAPIAccess              = "apiAccess"
	PermSandboxAccess          = "sandboxAccess"
	PermDebugging              = "debugging"
	PermWebhookManagement      = "webhookManagement"

	// security
	PermSecuritySettings = "securitySettings"
	PermAuditLogs        = "auditLogs"

	// team
	PermTeamManagement = "teamManagement"

	// marketing
	PermMarketingDashboard = "marketingDashboard"
	PermABTesting          = "abTesting"
	PermCampaignManagement = "campaignManagement"

	// analytics
	PermAnalyticsAccess = "analyticsAccess"
	PermReportExport    = "reportExport"

	// plans
	PermPlanConfiguration = "planConfiguration"
	PermWidgetBuilder     = "widgetBuilder"
)

// Feature areas
const (
	AreaSystem    = "system"
	AreaTechnical = "technical"
	AreaSecurity  = "security"
	AreaTeam      = "team"
	AreaMarketing = "marketing"
	AreaAnalytics = "analytics"
	AreaPlans     = "plans"
)

// PermissionRegistry tracks which permission names are recognized and the
// feature area each belongs to. Permission names stay open strings; the
// registry only lets boundaries reject typos early.
type PermissionRegistry struct {
	mu    sync.RWMutex
	areas map[string]string
}

// NewPermissionRegistry creates a registry preloaded with the built-in names
func NewPermissionRegistry() *PermissionRegistry {
	r := &PermissionRegistry{areas: make(map[string]string)}
	for area, names := range builtInPermissions {
		for _, name := range names {
			r.areas[name] = area
		}
	}
	return r
}

var builtInPermissions = map[string][]string{
	AreaSystem:    {PermSystemConfiguration, PermUserManagement, PermBillingManagement},
	AreaTechnical: {PermTechnicalConfiguration, PermAPIDocumentation, PermAPIAccess, PermSandboxAccess, PermDebugging, PermWebhookManagement},
	AreaSecurity:  {PermSecuritySettings, PermAuditLogs},
	AreaTeam:      {PermTeamManagement},
	AreaMarketing: {PermMarketingDashboard, PermABTesting, PermCampaignManagement},
	AreaAnalytics: {PermAnalyticsAccess, PermReportExport},
	AreaPlans:     {PermPlanConfiguration, PermWidgetBuilder},
}

// Register adds a permission name under area. Re-registering a name moves it.
func (r *PermissionRegistry) Register(area, name string) error {
	if area == "" || name == "" {
		return Validationf("permission area and name are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.areas[name] = area
	return nil
}

// IsKnown reports whether name has been registered
func (r *PermissionRegistry) IsKnown(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.areas[name]
	return ok
}

// Area returns the feature area of name
func (r *PermissionRegistry) Area(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	area, ok := r.areas[name]
	return area, ok
}

// Validate returns a validation error if name is not registered
func (r *PermissionRegistry) Validate(name string) error {
	if !r.IsKnown(name) {
		return Validationf("unknown permission %q", name)
	}
	return nil
}

// Names returns all registered names in sorted order
func (r *PermissionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.areas))
	for name := range r.areas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByArea returns registered names grouped by area, each group sorted
func (r *PermissionRegistry) ByArea() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string)
	for name, area := range r.areas {
		out[area] = append(out[area], name)
	}
	for area := range out {
		sort.Strings(out[area])
	}
	return out
}

var defaultPermissions = NewPermissionRegistry()

// DefaultPermissions returns the process-wide permission registry
func DefaultPermissions() *PermissionRegistry {
	return defaultPermissions
}

// RegisterPermission adds a name to the process-wide registry
func RegisterPermission(area, name string) error {
	return defaultPermissions.Register(area, name)
}

// IsKnownPermission reports whether name is in the process-wide registry
func IsKnownPermission(name string) bool {
	return defaultPermissions.IsKnown(name)
}

package rbac

// BuiltInRoles returns the five canonical role definitions, one per role type.
// A fresh slice is built on every call so callers may mutate the result.
func BuiltInRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			RoleType:    RoleTypePlatformAdmin,
			Name:        "Platform Administrator",
			Description: "Full control over the platform, its configuration and every tenant",
			Responsibilities: []string{
				"Manage platform configuration and billing",
				"Onboard and manage customer tenants",
				"Oversee technical and marketing tooling",
			},
			Permissions: PermissionSet{
				PermSystemConfiguration:    LevelFullControl,
				PermUserManagement:         LevelFullControl,
				PermBillingManagement:      LevelFullControl,
				PermTechnicalConfiguration: LevelFullControl,
				PermAPIDocumentation:       LevelFullControl,
				PermAPIAccess:              LevelFullControl,
				PermSandboxAccess:          LevelAdmin,
				PermDebugging:              LevelAdmin,
				PermWebhookManagement:      LevelAdmin,
				PermSecuritySettings:       LevelFullControl,
				PermAuditLogs:              LevelAdmin,
				PermTeamManagement:         LevelFullControl,
				PermMarketingDashboard:     LevelAdmin,
				PermABTesting:              LevelAdmin,
				PermCampaignManagement:     LevelAdmin,
				PermAnalyticsAccess:        LevelAdmin,
				PermReportExport:           LevelAdmin,
				PermPlanConfiguration:      LevelFullControl,
				PermWidgetBuilder:          LevelAdmin,
			},
			Restrictions: map[string]interface{}{},
		},
		{
			RoleType:    RoleTypePlatformManager,
			Name:        "Platform Manager",
			Description: "Operates plans, marketing and customer success for the platform",
			Responsibilities: []string{
				"Configure plans and pricing widgets",
				"Run platform-wide marketing campaigns",
				"Support customer tenants",
			},
			Permissions: PermissionSet{
				PermSystemConfiguration:    LevelRead,
				PermUserManagement:         LevelWrite,
				PermBillingManagement:      LevelRead,
				PermTechnicalConfiguration: LevelRead,
				PermAPIDocumentation:       LevelRead,
				PermAuditLogs:              LevelRead,
				PermTeamManagement:         LevelWrite,
				PermMarketingDashboard:     LevelAdmin,
				PermABTesting:              LevelAdmin,
				PermCampaignManagement:     LevelAdmin,
				PermAnalyticsAccess:        LevelAdmin,
				PermReportExport:           LevelWrite,
				PermPlanConfiguration:      LevelAdmin,
				PermWidgetBuilder:          LevelAdmin,
			},
			Restrictions: map[string]interface{}{},
		},
		{
			RoleType:    RoleTypeCustomerAdmin,
			Name:        "Customer Administrator",
			Description: "Administers a customer application: technical setup, security and team",
			Responsibilities: []string{
				"Manage application technical configuration",
				"Manage security settings and audit logs",
				"Invite and manage team members",
			},
			Permissions: PermissionSet{
				PermUserManagement:         LevelAdmin,
				PermTechnicalConfiguration: LevelAdmin,
				PermAPIDocumentation:       LevelAdmin,
				PermAPIAccess:              LevelAdmin,
				PermSandboxAccess:          LevelAdmin,
				PermWebhookManagement:      LevelAdmin,
				PermSecuritySettings:       LevelFullControl,
				PermAuditLogs:              LevelAdmin,
				PermTeamManagement:         LevelFullControl,
				PermMarketingDashboard:     LevelRead,
				PermABTesting:              LevelRead,
				PermCampaignManagement:     LevelRead,
				PermAnalyticsAccess:        LevelRead,
				PermPlanConfiguration:      LevelRead,
			},
			Restrictions: map[string]interface{}{
				"maxApplications": 5,
				"maxTeamMembers":  50,
			},
		},
		{
			RoleType:    RoleTypeCustomerManager,
			Name:        "Customer Manager",
			Description: "Runs marketing and analytics for a customer application",
			Responsibilities: []string{
				"Plan and run campaigns",
				"Configure A/B tests",
				"Review analytics and export reports",
			},
			Permissions: PermissionSet{
				PermTechnicalConfiguration: LevelRead,
				PermAPIDocumentation:       LevelRead,
				PermTeamManagement:         LevelRead,
				PermMarketingDashboard:     LevelFullControl,
				PermABTesting:              LevelAdmin,
				PermCampaignManagement:     LevelFullControl,
				PermAnalyticsAccess:        LevelAdmin,
				PermReportExport:           LevelAdmin,
				PermPlanConfiguration:      LevelWrite,
				PermWidgetBuilder:          LevelWrite,
			},
			Restrictions: map[string]interface{}{
				"maxCampaigns": 20,
			},
		},
		{
			RoleType:    RoleTypeCustomerDeveloper,
			Name:        "Customer Developer",
			Description: "Integrates a customer application through the API",
			Responsibilities: []string{
				"Integrate with the API",
				"Test in the sandbox",
				"Debug webhooks and integrations",
			},
			Permissions: PermissionSet{
				PermTechnicalConfiguration: LevelWrite,
				PermAPIDocumentation:       LevelFullControl,
				PermAPIAccess:              LevelAdmin,
				PermSandboxAccess:          LevelFullControl,
				PermDebugging:              LevelAdmin,
				PermWebhookManagement:      LevelWrite,
				PermMarketingDashboard:     LevelRead,
				PermABTesting:              LevelRead,
				PermAnalyticsAccess:        LevelRead,
			},
			Restrictions: map[string]interface{}{
				"maxApiKeys": 10,
			},
		},
	}
}

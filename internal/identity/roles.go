package identity

// Permission keys used across the platform.
const (
	PermDashboardView    = "dashboard.view"
	PermPortfolioView    = "portfolio.view"
	PermPortfolioManage  = "portfolio.manage"
	PermReportsView      = "reports.view"
	PermReportsExport    = "reports.export"
	PermDataClassify     = "data.classify"
	PermDataProtect      = "data.protect"
	PermAuditView        = "audit.view"
	PermAuditSearch      = "audit.search"
	PermComplianceView   = "compliance.view"
	PermComplianceManage = "compliance.manage"
	PermUsersManage      = "users.manage"
)

// DefaultRoles returns the fixed role set loaded at startup.
func DefaultRoles() map[string]Role {
	return map[string]Role{
		"admin": {
			Name:  "admin",
			Level: 100,
			Permissions: []string{
				PermDashboardView, PermPortfolioView, PermPortfolioManage,
				PermReportsView, PermReportsExport,
				PermDataClassify, PermDataProtect,
				PermAuditView, PermAuditSearch,
				PermComplianceView, PermComplianceManage,
				PermUsersManage,
			},
		},
		"analyst": {
			Name:  "analyst",
			Level: 50,
			Permissions: []string{
				PermDashboardView, PermPortfolioView, PermPortfolioManage,
				PermReportsView, PermReportsExport,
				PermDataClassify,
			},
		},
		"viewer": {
			Name:  "viewer",
			Level: 10,
			Permissions: []string{
				PermDashboardView, PermPortfolioView, PermReportsView,
			},
		},
	}
}

package constants

// Static route constants
const (
	PublicRoute     = "/"
	DashboardRoute  = "/dashboard"
	OnboardingRoute = "/onboarding"
	MembershipRoute = "/user/settings/membership"
	LoginRoute      = "/login"
)

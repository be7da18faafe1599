package checks

// Check names, as they appear in reports.
const (
	BaaSConnection      = "BaaS REST Connection"
	RESTSchemaTables    = "REST Schema Tables"
	UserAuthentication  = "User Authentication"
	SessionManagement   = "Session Management"
	UserProfile         = "User Profile Retrieval"
	UserProfileUpdate   = "User Profile Update"
	UserSettings        = "User Settings Persistence"
	DeviceManagement    = "Device Management"
	SubscriptionLookup  = "Subscription Lookup"
	PasswordChange      = "Password Change"
	APIHealth           = "API Health Endpoint"
	APIPing             = "API Ping Endpoint"
	SettingsPage        = "Settings Page"
	PaymentEndpoints    = "Payment Endpoints"
	WorkflowWebhook     = "Workflow Webhook"
	ServiceRole         = "Service Role Configuration"
	SchemaValidation    = "Database Schema Validation"
	CompanyCreation     = "Company Creation"
	ManagerCreation     = "Manager User Creation"
	InviteRPC           = "Invite Enterprise User RPC"
	UserLimitEnforced   = "User Limit Enforcement"
	DataLinking         = "Data Linking"
	ErrorHandling       = "Error Handling"
	RoleLimitDefaults   = "Role Limit Defaults"
	StaticPatternPrefix = "Static Pattern: "
)

// Env keys shared between checks.
const (
	KeyAuthToken   = "auth.token"
	KeyAuthUserID  = "auth.user_id"
	KeyTempUserID  = "auth.temporary_user_id"
	KeyCompanyID   = "enterprise.company_id"
	KeyCompanyName = "enterprise.company_name"
	KeyManagerID   = "enterprise.manager_id"
)

// DefaultSchemaTables are probed over REST when no tables are configured.
var DefaultSchemaTables = []string{"users", "user_settings", "user_devices", "companies"}

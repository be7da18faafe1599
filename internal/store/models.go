package store

import "errors"

var ErrNotFound = errors.New("not found")

// Roles known to the user_role enum.
const (
	RoleFree              = "free"
	RolePro               = "pro"
	RoleProPlus           = "pro_plus"
	RoleEnterpriseUser    = "enterprise_user"
	RoleEnterpriseManager = "enterprise_manager"
	RoleSuperuser         = "superuser"
)

// Unlimited is the limit value meaning "no limit".
const Unlimited = -1

// Roles lists the user_role enum labels in declaration order.
var Roles = []string{
	RoleFree,
	RolePro,
	RoleProPlus,
	RoleEnterpriseUser,
	RoleEnterpriseManager,
	RoleSuperuser,
}

// DefaultLimits are the usage limits the database assigns to a new user of
// each role.
var DefaultLimits = map[string]Limits{
	RoleFree:              {Daily: 3, Monthly: 30, Devices: 1},
	RolePro:               {Daily: Unlimited, Monthly: 100, Devices: 1},
	RoleProPlus:           {Daily: Unlimited, Monthly: Unlimited, Devices: 2},
	RoleEnterpriseUser:    {Daily: Unlimited, Monthly: Unlimited, Devices: 1},
	RoleEnterpriseManager: {Daily: Unlimited, Monthly: Unlimited, Devices: 1},
	RoleSuperuser:         {Daily: Unlimited, Monthly: Unlimited, Devices: Unlimited},
}

type Company struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Plan         string `json:"plan"`
	MaxUsers     int    `json:"max_users"`
	CurrentUsers int    `json:"current_users"`
	Status       string `json:"status"`
}

type Limits struct {
	Daily   int `json:"daily_limit"`
	Monthly int `json:"monthly_limit"`
	Devices int `json:"device_limit"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
	Status    string `json:"status"`

	// Limits is nil when the database should assign its defaults.
	Limits *Limits `json:"limits,omitempty"`
}

type Invitation struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	Status    string `json:"status"`
}

// InviteResult is the JSON document returned by invite_enterprise_user.
type InviteResult struct {
	Success      bool   `json:"success"`
	InvitationID string `json:"invitation_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Membership is one row of the company to users join.
type Membership struct {
	CompanyName string `json:"company_name" db:"company_name"`
	UserName    string `json:"user_name" db:"user_name"`
	Email       string `json:"email" db:"email"`
	Role        string `json:"role" db:"role"`
}

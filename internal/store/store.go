package store

import "context"

// Schema exposes the catalog lookups used to validate the database layout.
type Schema interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
	EnumHasLabel(ctx context.Context, enum, label string) (bool, error)
	FunctionExists(ctx context.Context, name string) (bool, error)
}

// Store is the tenancy data access used by the enterprise checks. Get
// methods return ErrNotFound for missing rows; Delete methods succeed when
// the row is already gone.
type Store interface {
	Schema

	CreateCompany(ctx context.Context, c *Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)
	DeleteCompany(ctx context.Context, id string) error

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	InviteUser(ctx context.Context, email, name, role, managerID string) (*InviteResult, error)
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	DeleteInvitation(ctx context.Context, id string) error

	CompanyMembers(ctx context.Context, companyID string) ([]Membership, error)
}

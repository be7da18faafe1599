// Package storetest provides an in-memory store.Store that mimics the
// constraint errors and procedures of the real database.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
	"github.com/mailoreply/smoketest/internal/store"
)

var _ store.Store = (*Memory)(nil)

// roleOrder is the declaration order of the user_role enum.
var roleOrder = func() map[string]int {
	order := make(map[string]int, len(store.Roles))
	for i, role := range store.Roles {
		order[role] = i
	}
	return order
}()

type Memory struct {
	mu sync.Mutex

	companies   map[string]store.Company
	users       map[string]store.User
	invitations map[string]store.Invitation

	// Columns, Enums and Functions describe the catalog.
	Columns   map[string][]string
	Enums     map[string][]string
	Functions []string

	// Limits are assigned to users created without explicit limits.
	Limits map[string]store.Limits

	// InviteErr, when set, is returned by every InviteUser call.
	InviteErr error
}

func NewMemory() *Memory {
	return &Memory{
		companies:   make(map[string]store.Company),
		users:       make(map[string]store.User),
		invitations: make(map[string]store.Invitation),
		Columns: map[string][]string{
			"companies": {"id", "name", "plan", "max_users", "current_users", "domain", "status", "created_at", "updated_at"},
			"users":     {"id", "email", "name", "role", "company_id", "status", "daily_limit", "monthly_limit", "device_limit", "created_at", "updated_at"},
		},
		Enums:     map[string][]string{"user_role": store.Roles},
		Functions: []string{"invite_enterprise_user"},
		Limits:    store.DefaultLimits,
	}
}

// Counts returns the number of stored companies, users and invitations.
func (m *Memory) Counts() (companies, users, invitations int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.companies), len(m.users), len(m.invitations)
}

func (m *Memory) TableColumns(ctx context.Context, table string) ([]string, error) {
	return m.Columns[table], nil
}

func (m *Memory) EnumHasLabel(ctx context.Context, enum, label string) (bool, error) {
	for _, l := range m.Enums[enum] {
		if l == label {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) FunctionExists(ctx context.Context, name string) (bool, error) {
	for _, f := range m.Functions {
		if f == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateCompany(ctx context.Context, c *store.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := m.companies[c.ID]; ok {
		return &pgconn.PgError{Code: postgres.UniqueViolation, Message: "duplicate key value violates unique constraint \"companies_pkey\""}
	}

	m.companies[c.ID] = *c
	return nil
}

func (m *Memory) GetCompany(ctx context.Context, id string) (*store.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.companies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) DeleteCompany(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.CompanyID == id {
			return &pgconn.PgError{Code: postgres.ForeignKeyViolation, Message: "update or delete on table \"companies\" violates foreign key constraint"}
		}
	}

	delete(m.companies, id)
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := roleOrder[u.Role]; !ok {
		return &pgconn.PgError{Code: postgres.InvalidTextRepresentation, Message: fmt.Sprintf("invalid input value for enum user_role: %q", u.Role)}
	}

	if u.CompanyID != "" {
		if _, ok := m.companies[u.CompanyID]; !ok {
			return &pgconn.PgError{Code: postgres.ForeignKeyViolation, Message: "insert or update on table \"users\" violates foreign key constraint \"users_company_id_fkey\""}
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	stored := *u
	if stored.Limits == nil {
		limits := m.Limits[u.Role]
		stored.Limits = &limits
	}

	m.users[u.ID] = stored
	return nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, id)
	return nil
}

// InviteUser follows the procedure: the manager must exist and manage a
// company that is below its user limit.
func (m *Memory) InviteUser(ctx context.Context, email, name, role, managerID string) (*store.InviteResult, error) {
	if m.InviteErr != nil {
		return nil, m.InviteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := roleOrder[role]; !ok {
		return nil, &pgconn.PgError{Code: postgres.InvalidTextRepresentation, Message: fmt.Sprintf("invalid input value for enum user_role: %q", role)}
	}

	manager, ok := m.users[managerID]
	if !ok || manager.Role != store.RoleEnterpriseManager {
		return &store.InviteResult{Success: false, Error: "Manager not found or not authorized"}, nil
	}

	company, ok := m.companies[manager.CompanyID]
	if !ok {
		return &store.InviteResult{Success: false, Error: "Manager has no company"}, nil
	}

	if company.CurrentUsers >= company.MaxUsers {
		return &store.InviteResult{Success: false, Error: "Company has reached maximum user limit"}, nil
	}

	inv := store.Invitation{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		CompanyID: company.ID,
		Status:    "pending",
	}
	m.invitations[inv.ID] = inv

	return &store.InviteResult{Success: true, InvitationID: inv.ID}, nil
}

func (m *Memory) GetInvitation(ctx context.Context, id string) (*store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invitations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) DeleteInvitation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.invitations, id)
	return nil
}

func (m *Memory) CompanyMembers(ctx context.Context, companyID string) ([]store.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	company, ok := m.companies[companyID]
	if !ok {
		return nil, nil
	}

	var members []store.Membership
	for _, u := range m.users {
		if u.CompanyID == companyID {
			members = append(members, store.Membership{
				CompanyName: company.Name,
				UserName:    u.Name,
				Email:       u.Email,
				Role:        u.Role,
			})
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return roleOrder[members[i].Role] > roleOrder[members[j].Role]
	})

	return members, nil
}

package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store with plain SQL over the shared pool.
type PGStore struct {
	*postgres.Client
}

func NewPGStore(client *postgres.Client) *PGStore {
	return &PGStore{Client: client}
}

func (s *PGStore) CreateCompany(ctx context.Context, c *Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	_, err := s.Pool().Exec(ctx, `
		INSERT INTO companies (id, name, plan, max_users, current_users, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		c.ID, c.Name, c.Plan, c.MaxUsers, c.CurrentUsers, c.Status)
	if err != nil {
		return errors.Wrap(err, "couldn't insert company")
	}

	return nil
}

func (s *PGStore) GetCompany(ctx context.Context, id string) (*Company, error) {
	var c Company

	err := s.Pool().QueryRow(ctx, `
		SELECT id::text, name, plan, max_users, current_users, status
		FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Plan, &c.MaxUsers, &c.CurrentUsers, &c.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't select company")
	}

	return &c, nil
}

func (s *PGStore) DeleteCompany(ctx context.Context, id string) error {
	if _, err := s.Pool().Exec(ctx, `DELETE FROM companies WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "couldn't delete company")
	}
	return nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	var companyID *string
	if u.CompanyID != "" {
		companyID = &u.CompanyID
	}

	var err error
	if u.Limits != nil {
		_, err = s.Pool().Exec(ctx, `
			INSERT INTO users (id, name, email, role, company_id, daily_limit, monthly_limit, device_limit, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
			u.ID, u.Name, u.Email, u.Role, companyID,
			u.Limits.Daily, u.Limits.Monthly, u.Limits.Devices, u.Status)
	} else {
		_, err = s.Pool().Exec(ctx, `
			INSERT INTO users (id, name, email, role, company_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
			u.ID, u.Name, u.Email, u.Role, companyID, u.Status)
	}
	if err != nil {
		return errors.Wrap(err, "couldn't insert user")
	}

	return nil
}

func (s *PGStore) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		u         User
		companyID *string
		limits    Limits
	)

	err := s.Pool().QueryRow(ctx, `
		SELECT id::text, name, email, role::text, company_id::text, status,
		       daily_limit, monthly_limit, device_limit
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &companyID, &u.Status,
			&limits.Daily, &limits.Monthly, &limits.Devices)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't select user")
	}

	if companyID != nil {
		u.CompanyID = *companyID
	}
	u.Limits = &limits

	return &u, nil
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.Pool().Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "couldn't delete user")
	}
	return nil
}

// InviteUser calls the invite_enterprise_user procedure. A refusal is
// reported in the result; an exception raised by the procedure is returned
// as an error.
func (s *PGStore) InviteUser(ctx context.Context, email, name, role, managerID string) (*InviteResult, error) {
	var raw []byte

	err := s.Pool().QueryRow(ctx, `
		SELECT invite_enterprise_user($1::TEXT, $2::TEXT, $3::user_role, $4::UUID)::text`,
		email, name, role, managerID).Scan(&raw)
	if err != nil {
		return nil, errors.Wrap(err, "invite_enterprise_user failed")
	}

	if len(raw) == 0 {
		return nil, errors.New("invite_enterprise_user returned null")
	}

	var result InviteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "couldn't decode invite_enterprise_user result")
	}

	return &result, nil
}

func (s *PGStore) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	var (
		inv       Invitation
		companyID *string
	)

	err := s.Pool().QueryRow(ctx, `
		SELECT id::text, email, name, role::text, company_id::text, status
		FROM user_invitations WHERE id = $1`, id).
		Scan(&inv.ID, &inv.Email, &inv.Name, &inv.Role, &companyID, &inv.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't select invitation")
	}

	if companyID != nil {
		inv.CompanyID = *companyID
	}

	return &inv, nil
}

func (s *PGStore) DeleteInvitation(ctx context.Context, id string) error {
	if _, err := s.Pool().Exec(ctx, `DELETE FROM user_invitations WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "couldn't delete invitation")
	}
	return nil
}

// CompanyMembers returns the users of a company, managers first.
func (s *PGStore) CompanyMembers(ctx context.Context, companyID string) ([]Membership, error) {
	rows, err := s.Pool().Query(ctx, `
		SELECT c.name AS company_name, u.name AS user_name, u.email, u.role::text AS role
		FROM companies c
		JOIN users u ON u.company_id = c.id
		WHERE c.id = $1
		ORDER BY u.role DESC`, companyID)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't select company members")
	}

	members, err := pgx.CollectRows(rows, pgx.RowToStructByName[Membership])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read company members")
	}

	return members, nil
}

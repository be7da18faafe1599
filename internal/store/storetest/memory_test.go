package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
	"github.com/mailoreply/smoketest/internal/store"
)

func TestMemoryConstraints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.CreateUser(ctx, &store.User{Role: store.RoleFree, CompanyID: "missing"})
	assert.True(t, postgres.IsForeignKeyViolation(err))

	err = m.CreateUser(ctx, &store.User{Role: "invalid_role"})
	assert.True(t, postgres.IsInvalidEnumValue(err))

	u := &store.User{Role: store.RolePro}
	require.NoError(t, m.CreateUser(ctx, u))

	got, err := m.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultLimits[store.RolePro], *got.Limits)
}

func TestMemoryInviteAtCapacity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c := &store.Company{Name: "Full", MaxUsers: 1, CurrentUsers: 1}
	require.NoError(t, m.CreateCompany(ctx, c))

	manager := &store.User{Role: store.RoleEnterpriseManager, CompanyID: c.ID}
	require.NoError(t, m.CreateUser(ctx, manager))

	res, err := m.InviteUser(ctx, "a@example.com", "A", store.RoleEnterpriseUser, manager.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "maximum")

	_, _, invitations := m.Counts()
	assert.Zero(t, invitations)
}

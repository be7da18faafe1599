package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	tables    []string
	functions []string
	err       error
}

func (f *fakeCatalog) Tables(ctx context.Context) ([]string, error) {
	return f.tables, f.err
}

func (f *fakeCatalog) Functions(ctx context.Context) ([]string, error) {
	return f.functions, f.err
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		catalog  *fakeCatalog
		wantErr  bool
		contains []string
	}{
		{
			name: "complete",
			catalog: &fakeCatalog{
				tables:    append([]string{"user_devices"}, expectedTables...),
				functions: expectedFunctions,
			},
			contains: []string{"Tables present: users, companies, user_settings, ai_generations, templates"},
		},
		{
			name: "missing function is reported only",
			catalog: &fakeCatalog{
				tables:    expectedTables,
				functions: []string{"can_user_generate"},
			},
			contains: []string{"Functions missing: increment_user_usage, reset_daily_usage, reset_monthly_usage"},
		},
		{
			name: "missing table fails",
			catalog: &fakeCatalog{
				tables:    []string{"users", "companies"},
				functions: expectedFunctions,
			},
			wantErr:  true,
			contains: []string{"Tables missing: user_settings, ai_generations, templates"},
		},
		{
			name:    "catalog error",
			catalog: &fakeCatalog{err: assert.AnError},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			err := verify(context.Background(), tt.catalog, &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestDeployRejectsUnsupportedSchema(t *testing.T) {
	dir := t.TempDir()

	err := deploy(context.Background(), nil, filepath.Join(dir, "missing.sql"))
	assert.Error(t, err)

	notSQL := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(notSQL, []byte("CREATE TABLE t ();"), 0o644))

	err = deploy(context.Background(), nil, notSQL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema file")
}

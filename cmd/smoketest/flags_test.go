package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailoreply/smoketest/internal/checks"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()

	fs := flag.NewFlagSet("smoketest", flag.ContinueOnError)
	fs.String("configPath", defaultConfigPath, "")
	defineConfigFlags(fs)
	require.NoError(t, fs.Parse(args))

	return fs
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "no flags",
		},
		{
			name: "secrets are masked",
			args: []string{
				"--baasAnonKey=anon-secret",
				"--baasServiceKey=service-secret",
				"--dbPassword=p#ss w0rd",
				"--testUserPassword=hunter2",
				"--addHeader=X-Token: abc",
			},
			want: []string{
				"--baasAnonKey=***",
				"--baasServiceKey=***",
				"--dbPassword=***",
				"--testUserPassword=***",
				"--addHeader=***",
			},
		},
		{
			name: "booleans",
			args: []string{"--tlsVerify", "--noProgress=false"},
			want: []string{"--tlsVerify", "--noProgress=false"},
		},
		{
			name: "numbers and durations",
			args: []string{"--workers=4", "--rateLimit=2.5", "--checkTimeout=45s", "--dbPort=6543", "--dbMaxConns=2"},
			want: []string{"--workers=4", "--rateLimit=2.5", "--checkTimeout=45s", "--dbPort=6543", "--dbMaxConns=2"},
		},
		{
			name: "slices and quoted strings",
			args: []string{"--skipChecks=Device Management,Subscription Lookup", "--reportName=smoke report"},
			want: []string{`--skipChecks=Device Management,Subscription Lookup`, `--reportName="smoke report"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := normalizeArgs(newFlagSet(t, tt.args...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestNormalizeArgsKeepsSecretsOut(t *testing.T) {
	args, err := normalizeArgs(newFlagSet(t, "--dbPassword=hunter2", "--appURL=https://app.example.com"))
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "hunter2")
	assert.Contains(t, joined, "--appURL=https://app.example.com")
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	t.Setenv("SMOKETEST_BAASURL", "https://project.example.co")
	t.Setenv("SMOKETEST_SKIPCHECKS", "Device Management,Subscription Lookup")
	t.Setenv("SMOKETEST_CHECKTIMEOUT", "45s")
	t.Setenv("SMOKETEST_WORKERS", "4")
	t.Setenv("SMOKETEST_DBPORT", "6543")

	fs := newFlagSet(t, "--appURL=https://app.example.com", "--workers=2")

	cfg, err := loadConfig(fs, viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://project.example.co", cfg.BaaSURL)
	assert.Equal(t, "https://app.example.com", cfg.AppURL)
	assert.Equal(t, []string{"Device Management", "Subscription Lookup"}, cfg.SkipChecks)
	assert.Equal(t, 45*time.Second, cfg.CheckTimeout)
	assert.Equal(t, uint16(6543), cfg.DBPort)

	// A flag set on the command line wins over the environment.
	assert.Equal(t, 2, cfg.Workers)

	// Flag defaults fill the rest.
	assert.Equal(t, checks.DefaultSchemaTables, cfg.SchemaTables)
	assert.Equal(t, defaultErrorHandlingGoal, cfg.ErrorHandlingThreshold)
	assert.Equal(t, defaultFunctionsPath, cfg.FunctionsPath)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
appURL: https://file.example.com
workers: 3
roleLimits:
  free:
    daily: 10
headers:
  X-Smoke: "1"
`), 0o644))

	t.Setenv("SMOKETEST_APPURL", "https://env.example.com")

	cfg, err := loadConfig(newFlagSet(t), viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.AppURL, "environment overrides the file")
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 10, cfg.RoleLimits["free"]["daily"])
	assert.Equal(t, "1", cfg.HTTPHeaders["x-smoke"])
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := loadConfig(newFlagSet(t, "--configPath="+path), viper.New(), path)
	assert.Error(t, err)

	_, err = loadConfig(newFlagSet(t), viper.New(), path)
	assert.NoError(t, err, "the default config file is optional")
}

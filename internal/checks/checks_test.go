package checks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas/baastest"
	"github.com/mailoreply/smoketest/internal/scanner/clients/gohttp"
	"github.com/mailoreply/smoketest/internal/store"
	"github.com/mailoreply/smoketest/internal/store/storetest"
)

var platformTables = []string{"users", "user_settings", "user_devices", "companies", "user_subscriptions"}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		Workers:        1,
		CheckTimeout:   5 * time.Second,
		RequestTimeout: 2 * time.Second,
		NoProgress:     true,
	}
}

func newDeps(t *testing.T, cfg *config.Config) *Deps {
	t.Helper()

	httpClient, err := gohttp.NewClient(cfg)
	require.NoError(t, err)

	return &Deps{
		Config: cfg,
		Logger: testLogger(),
		HTTP:   httpClient,
	}
}

func withPlatform(t *testing.T, d *Deps, anonKey string) *baastest.Server {
	t.Helper()

	srv := baastest.NewServer(t, platformTables...)
	srv.HandleRPC("get_user_subscription", func(args map[string]any) (int, any) {
		return http.StatusOK, []any{}
	})

	d.Config.BaaSURL = srv.URL
	d.Config.BaaSAnonKey = anonKey
	d.BaaS = baas.NewClient(d.HTTP, srv.URL, anonKey, baastest.ServiceKey)

	return srv
}

// appServer fakes the application: health document, ping, the settings
// page and the payment functions.
func appServer(t *testing.T, health map[string]any) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health)
	})
	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"pong"}`))
	})
	r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!doctype html><html><head><title>App</title></head><body><div id="root"></div></body></html>`))
	})
	r.Route("/.netlify/functions/stripe-api", func(r chi.Router) {
		reject := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"missing priceId"}`, http.StatusBadRequest)
		}
		r.Post("/create-checkout-session", reject)
		r.Post("/create-portal-session", reject)
	})
	r.Post("/hooks/workflow", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["event"] == nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return srv
}

func runSuite(t *testing.T, d *Deps) (map[string]*db.Result, *db.Statistics) {
	t.Helper()

	checks, err := Build(d)
	require.NoError(t, err)

	s := scanner.New(d.Logger, d.Config, nil)
	require.NoError(t, s.Register(checks...))

	results, err := s.Run(context.Background())
	require.NoError(t, err)

	stat := results.GetStatistics()
	byName := make(map[string]*db.Result, len(stat.Results))
	for _, r := range stat.Results {
		byName[r.Name] = r
	}

	return byName, stat
}

func TestBuildWithoutCollaborators(t *testing.T) {
	checks, err := Build(newDeps(t, testConfig()))
	require.NoError(t, err)
	assert.Empty(t, checks)

	_, err = Build(&Deps{})
	assert.Error(t, err)
}

func TestPlatformChecksPass(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)

	results, stat := runSuite(t, d)

	for _, r := range stat.Results {
		assert.True(t, r.Passed, "%s: %s %v", r.Name, r.Message, r.Details)
	}
	assert.Equal(t, 10, stat.Total)

	assert.Equal(t, "EXISTS", results[RESTSchemaTables].Details["users"])
	assert.Equal(t, http.StatusUnprocessableEntity, results[PasswordChange].Details["short_password_status"])

	// Teardown removed the rows the checks created and the temporary user.
	assert.Empty(t, srv.Rows("user_settings"))
	assert.Empty(t, srv.Rows("user_devices"))
	assert.Empty(t, srv.Rows("users"))
	assert.Zero(t, srv.Accounts())
}

func TestTemporaryUserNeedsServiceKey(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)
	d.BaaS = baas.NewClient(d.HTTP, srv.URL, baastest.AnonKey, "")

	results, _ := runSuite(t, d)

	auth := results[UserAuthentication]
	assert.False(t, auth.Passed)
	assert.Contains(t, auth.Message, "baasServiceKey")
	assert.Equal(t, scanner.SkippedMessage, results[SessionManagement].Message)

	assert.NotContains(t, srv.Requests(), "POST /auth/v1/signup")
	assert.Zero(t, srv.Accounts())
}

func TestConfiguredAccountIsRestored(t *testing.T) {
	cfg := testConfig()
	cfg.TestUserEmail = "smoke@example.com"
	cfg.TestUserPassword = "secret123"

	d := newDeps(t, cfg)
	srv := withPlatform(t, d, baastest.AnonKey)

	ctx := context.Background()
	user, err := d.BaaS.SignUp(ctx, cfg.TestUserEmail, cfg.TestUserPassword, map[string]any{"name": "Original Name"})
	require.NoError(t, err)

	_, stat := runSuite(t, d)
	for _, r := range stat.Results {
		assert.True(t, r.Passed, "%s: %s %v", r.Name, r.Message, r.Details)
	}

	// The account is kept with its password and profile name.
	assert.True(t, srv.HasAccount(user.ID))
	_, err = d.BaaS.SignIn(ctx, cfg.TestUserEmail, cfg.TestUserPassword)
	assert.NoError(t, err)

	users := srv.Rows("users")
	require.Len(t, users, 1)
	assert.Equal(t, "Original Name", users[0]["name"])
}

func TestPasswordChangeAcceptingShortPassword(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)
	srv.SetMinPasswordLength(0)

	results, _ := runSuite(t, d)

	r := results[PasswordChange]
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "short password accepted")
	assert.Zero(t, srv.Accounts())
}

func TestSessionRejectsForeignToken(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)
	s := &suite{Deps: d}

	ctx := context.Background()
	_, err := d.BaaS.SignUp(ctx, "other@example.com", "secret123", nil)
	require.NoError(t, err)
	other, err := d.BaaS.SignIn(ctx, "other@example.com", "secret123")
	require.NoError(t, err)

	env := scanner.NewEnv(testLogger())
	env.Set(KeyAuthToken, other.AccessToken)
	env.Set(KeyAuthUserID, "00000000-0000-0000-0000-000000000000")

	r := s.checkSession(ctx, env)
	assert.False(t, r.Passed)
	assert.Equal(t, "Token user ID mismatch", r.Message)

	forged, err := baastest.Token("00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	env.Set(KeyAuthToken, forged)

	r = s.checkSession(ctx, env)
	assert.False(t, r.Passed)
	assert.Equal(t, http.StatusUnauthorized, r.Details["status_code"])
	assert.NotEmpty(t, srv.Requests())
}

func TestSchemaTablesReportsMissingTable(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)
	srv.DropTable("user_devices")

	results, _ := runSuite(t, d)

	r := results[RESTSchemaTables]
	require.NotNil(t, r)
	assert.False(t, r.Passed)
	assert.Equal(t, "NOT_FOUND", r.Details["user_devices"])
	assert.Contains(t, r.Message, "user_devices")
}

func TestUnreachablePlatformSkipsDependents(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, "revoked-key")

	results, stat := runSuite(t, d)

	assert.Equal(t, 10, stat.Total)
	assert.Equal(t, 10, stat.Failed)

	conn := results[BaaSConnection]
	assert.Equal(t, http.StatusUnauthorized, conn.Details["status_code"])

	for _, name := range []string{
		RESTSchemaTables, UserAuthentication, SessionManagement, UserProfile, UserProfileUpdate,
		UserSettings, DeviceManagement, SubscriptionLookup, PasswordChange,
	} {
		assert.Equal(t, scanner.SkippedMessage, results[name].Message, name)
	}

	// Only the connection check reached the platform.
	assert.Equal(t, []string{"GET /rest/v1/"}, srv.Requests())
}

func TestMissingEnvValueFailsWithoutCalls(t *testing.T) {
	d := newDeps(t, testConfig())
	srv := withPlatform(t, d, baastest.AnonKey)
	s := &suite{Deps: d}

	env := scanner.NewEnv(testLogger())
	r := s.checkProfile(context.Background(), env)

	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, KeyAuthToken)
	assert.Empty(t, srv.Requests())
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		health  map[string]any
		passed  bool
		message string
	}{
		{
			name:   "ok",
			health: map[string]any{"status": "ok", "service": "api", "timestamp": "2024-01-01T00:00:00Z"},
			passed: true,
		},
		{
			name:    "degraded",
			health:  map[string]any{"status": "degraded", "service": "api", "timestamp": "2024-01-01T00:00:00Z"},
			message: "Health status not OK: degraded",
		},
		{
			name:    "missing fields",
			health:  map[string]any{"status": "ok"},
			message: "missing fields: service, timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AppURL = appServer(t, tt.health).URL

			s := &suite{Deps: newDeps(t, cfg)}
			r := s.checkHealth(context.Background(), scanner.NewEnv(testLogger()))

			assert.Equal(t, tt.passed, r.Passed, r.Message)
			if tt.message != "" {
				assert.Contains(t, r.Message, tt.message)
			}
		})
	}
}

func TestAppAndBillingChecks(t *testing.T) {
	cfg := testConfig()
	app := appServer(t, map[string]any{"status": "ok", "service": "api", "timestamp": "now"})
	cfg.AppURL = app.URL
	cfg.FunctionsPath = "/.netlify/functions"
	cfg.WorkflowWebhookURL = app.URL + "/hooks/workflow"

	results, stat := runSuite(t, newDeps(t, cfg))

	require.Equal(t, 5, stat.Total)
	for _, r := range stat.Results {
		assert.True(t, r.Passed, "%s: %s", r.Name, r.Message)
	}

	webhook, ok := results[PaymentEndpoints].Details["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, webhook["exists"])
}

func TestSettingsPageWithoutMountPoint(t *testing.T) {
	assert.False(t, mustHaveID(t, `<html><body><div id="app"></div></body></html>`))
	assert.True(t, mustHaveID(t, `<html><body><main><div class="x" id="root"></div></main></body></html>`))
}

func mustHaveID(t *testing.T, doc string) bool {
	found, err := hasElementWithID([]byte(doc), spaMountID)
	require.NoError(t, err)
	return found
}

func withStore(d *Deps) *storetest.Memory {
	m := storetest.NewMemory()
	d.Store = m
	return m
}

func TestEnterpriseChecksPassAndCleanUp(t *testing.T) {
	d := newDeps(t, testConfig())
	m := withStore(d)

	results, stat := runSuite(t, d)

	require.Equal(t, 8, stat.Total, "service role check needs the platform")
	for _, r := range stat.Results {
		assert.True(t, r.Passed, "%s: %s %v", r.Name, r.Message, r.Details)
	}

	assert.Equal(t, "4/4", results[ErrorHandling].Details["score"])

	companies, users, invitations := m.Counts()
	assert.Zero(t, companies)
	assert.Zero(t, users)
	assert.Zero(t, invitations)
}

func TestUserLimitEnforcement(t *testing.T) {
	d := newDeps(t, testConfig())
	withStore(d)

	s := &suite{Deps: d}
	env := scanner.NewEnv(testLogger())

	r := s.checkUserLimit(context.Background(), env)
	assert.True(t, r.Passed, r.Message)
	assert.Equal(t, false, r.Details["success"])
	assert.Contains(t, strings.ToLower(r.Details["error"].(string)), "maximum")

	require.NoError(t, env.Teardown(context.Background()))
}

func TestUserLimitNotEnforced(t *testing.T) {
	d := newDeps(t, testConfig())
	m := withStore(d)
	d.Store = &capacityBlind{Memory: m}

	s := &suite{Deps: d}
	env := scanner.NewEnv(testLogger())

	r := s.checkUserLimit(context.Background(), env)
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "at capacity")
	assert.Equal(t, true, r.Details["success"])

	require.NoError(t, env.Teardown(context.Background()))
	companies, users, _ := m.Counts()
	assert.Zero(t, companies)
	assert.Zero(t, users)
}

// capacityBlind accepts every invitation regardless of the company size.
type capacityBlind struct {
	*storetest.Memory
}

func (c *capacityBlind) InviteUser(ctx context.Context, email, name, role, managerID string) (*store.InviteResult, error) {
	return &store.InviteResult{Success: true, InvitationID: "accepted-invitation"}, nil
}

func TestErrorHandlingRaisedErrorCounts(t *testing.T) {
	cfg := testConfig()
	cfg.ErrorHandlingThreshold = 4

	d := newDeps(t, cfg)
	m := withStore(d)
	// An RPC that raises instead of answering still counts as handled.
	m.InviteErr = assert.AnError

	s := &suite{Deps: d}
	env := scanner.NewEnv(testLogger())

	r := s.checkErrorHandling(context.Background(), env)
	assert.True(t, r.Passed, r.Message)
	assert.Equal(t, 4, r.Details["required"])

	require.NoError(t, env.Teardown(context.Background()))
}

func TestErrorHandlingThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		required  int
		passed    bool
	}{
		{name: "zero requires every case", threshold: 0, required: 4, passed: false},
		{name: "three of four", threshold: 3, required: 3, passed: true},
		{name: "all four", threshold: 4, required: 4, passed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ErrorHandlingThreshold = tt.threshold

			d := newDeps(t, cfg)
			m := withStore(d)
			// The invitation without a manager is accepted, so one case fails.
			d.Store = &capacityBlind{Memory: m}

			s := &suite{Deps: d}
			env := scanner.NewEnv(testLogger())

			r := s.checkErrorHandling(context.Background(), env)
			assert.Equal(t, tt.passed, r.Passed, r.Message)
			assert.Equal(t, "3/4", r.Details["score"])
			assert.Equal(t, tt.required, r.Details["required"])
			assert.Equal(t, false, r.Details["conditions"].(map[string]any)["rpc_error_handling"])

			require.NoError(t, env.Teardown(context.Background()))
		})
	}
}

func TestRoleLimitMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.RoleLimits = map[string]map[string]int{"free": {"daily": 5}}

	d := newDeps(t, cfg)
	withStore(d)

	s := &suite{Deps: d}
	env := scanner.NewEnv(testLogger())

	r := s.checkRoleLimits(context.Background(), env)
	assert.False(t, r.Passed)
	assert.Contains(t, r.Message, "free")
	assert.Equal(t, "OK", r.Details["pro"])

	require.NoError(t, env.Teardown(context.Background()))
}

func TestStaticPatternChecks(t *testing.T) {
	root := t.TempDir()
	defs := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "client", "pages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "client", "pages", "Settings.tsx"),
		[]byte("const HandleSavePreferences = () => updateSettings(prefs)"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(defs, "settings.yml"), []byte(`
file: client/pages/Settings.tsx
patterns:
  - handleSavePreferences
  - updateSettings
  - deleteAccount
min_matches: 2
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defs, "missing.yaml"), []byte(`
name: Missing File
file: client/pages/Gone.tsx
patterns: [anything]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defs, "README.md"), []byte("ignored"), 0o644))

	cfg := testConfig()
	cfg.SourceRoot = root
	cfg.StaticChecksPath = defs

	results, stat := runSuite(t, newDeps(t, cfg))
	require.Equal(t, 2, stat.Total)

	settings := results[StaticPatternPrefix+"settings"]
	require.NotNil(t, settings)
	assert.True(t, settings.Passed, settings.Message)
	assert.Equal(t, "2/3", settings.Details["score"])

	missing := results[StaticPatternPrefix+"Missing File"]
	require.NotNil(t, missing)
	assert.False(t, missing.Passed)
	assert.Contains(t, missing.Message, "not found")
}

func TestLoadStaticChecksErrors(t *testing.T) {
	_, err := LoadStaticChecks("")
	assert.Error(t, err)

	dir := t.TempDir()
	_, err = LoadStaticChecks(dir)
	assert.Error(t, err, "an empty directory has no checks")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("file: a.ts\npatterns: ['(']\n"), 0o644))
	_, err = LoadStaticChecks(dir)
	assert.Error(t, err)
}

func TestDefaultStaticChecksLoad(t *testing.T) {
	checks, err := LoadStaticChecks(filepath.Join("..", "..", "testcases", "static"))
	require.NoError(t, err)
	assert.NotEmpty(t, checks)
}

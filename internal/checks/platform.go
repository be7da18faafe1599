package checks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/expect"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/clients/baas"
)

func (s *suite) platformChecks() []*scanner.Check {
	return []*scanner.Check{
		scanner.NewCheck(BaaSConnection, s.checkConnection),
		scanner.NewCheck(RESTSchemaTables, s.checkSchemaTables, BaaSConnection),
		scanner.NewCheck(UserAuthentication, s.checkAuthentication, BaaSConnection),
		scanner.NewCheck(SessionManagement, s.checkSession, UserAuthentication),
		scanner.NewCheck(UserProfile, s.checkProfile, UserAuthentication),
		scanner.NewCheck(UserProfileUpdate, s.checkProfileUpdate, UserAuthentication),
		scanner.NewCheck(UserSettings, s.checkSettings, UserAuthentication),
		scanner.NewCheck(DeviceManagement, s.checkDevices, UserAuthentication),
		scanner.NewCheck(SubscriptionLookup, s.checkSubscription, UserAuthentication),
		scanner.NewCheck(PasswordChange, s.checkPasswordChange, UserAuthentication),
	}
}

func (s *suite) checkConnection(ctx context.Context, env *scanner.Env) *db.Result {
	resp, err := s.BaaS.Ping(ctx)
	if err != nil {
		return db.Fail(BaaSConnection, fmt.Sprintf("BaaS REST API is not reachable: %v", err), expect.ErrorDetails(err))
	}

	return db.Pass(BaaSConnection, "BaaS REST API is reachable", map[string]any{
		"status_code": resp.GetStatusCode(),
	})
}

func (s *suite) checkSchemaTables(ctx context.Context, env *scanner.Env) *db.Result {
	tables := s.Config.SchemaTables
	if len(tables) == 0 {
		tables = DefaultSchemaTables
	}

	details := make(map[string]any, len(tables))
	var missing []string

	for _, table := range tables {
		status, err := s.BaaS.Probe(ctx, s.BaaS.Anon(), table)

		switch {
		case err != nil:
			details[table] = "ERROR_CONNECTION"
		case status >= 200 && status < 300:
			details[table] = "EXISTS"
			continue
		case status == http.StatusNotFound:
			details[table] = "NOT_FOUND"
		default:
			details[table] = fmt.Sprintf("ERROR_%d", status)
		}

		missing = append(missing, table)
	}

	if len(missing) > 0 {
		return db.Fail(RESTSchemaTables,
			fmt.Sprintf("Missing or inaccessible tables: %s", strings.Join(missing, ", ")), details)
	}

	return db.Pass(RESTSchemaTables, fmt.Sprintf("All %d tables are accessible", len(tables)), details)
}

// testCredentials returns the configured test account, or a temporary one
// for this run when temporary is set.
func (s *suite) testCredentials() (email, password string, temporary bool) {
	if s.Config.TestUserEmail != "" {
		return s.Config.TestUserEmail, s.Config.TestUserPassword, false
	}
	return fmt.Sprintf("smoketest+%s@example.com", uuid.NewString()[:8]), uuid.NewString(), true
}

func (s *suite) checkAuthentication(ctx context.Context, env *scanner.Env) *db.Result {
	email, password, temporary := s.testCredentials()

	if temporary {
		svc, ok := s.BaaS.Service()
		if !ok {
			return db.Fail(UserAuthentication,
				"testUserEmail is not set and a temporary test user cannot be removed without baasServiceKey", nil)
		}

		s.cleanup(env, "delete temporary test user", func(ctx context.Context) error {
			id, ok := env.String(KeyTempUserID)
			if !ok {
				return nil
			}
			var result error
			if err := s.BaaS.Delete(ctx, svc, "users", baas.Eq("id", id)); err != nil {
				result = multierror.Append(result, errors.Wrap(err, "couldn't delete profile row"))
			}
			if err := s.BaaS.DeleteUser(ctx, id); err != nil {
				result = multierror.Append(result, errors.Wrap(err, "couldn't delete auth user"))
			}
			return result
		})
	}

	created, err := s.BaaS.SignUp(ctx, email, password, map[string]any{"name": "Smoke Test User"})
	if err != nil {
		return db.Fail(UserAuthentication, fmt.Sprintf("Signup failed: %v", err), expect.ErrorDetails(err))
	}
	if temporary && created != nil && created.ID != "" {
		env.Set(KeyTempUserID, created.ID)
	}

	session, err := s.BaaS.SignIn(ctx, email, password)
	if err != nil {
		return db.Fail(UserAuthentication, fmt.Sprintf("Authentication failed: %v", err), expect.ErrorDetails(err))
	}

	if session.AccessToken == "" || session.User.ID == "" {
		return db.Fail(UserAuthentication, "Sign-in response has no access token or user id", map[string]any{
			"has_access_token": session.AccessToken != "",
			"has_user_id":      session.User.ID != "",
		})
	}

	sub, err := baas.TokenSubject(session.AccessToken)
	if err != nil {
		return db.Fail(UserAuthentication, fmt.Sprintf("Invalid access token: %v", err), expect.ErrorDetails(err))
	}

	if sub != session.User.ID {
		return db.Fail(UserAuthentication, "Access token subject does not match the user id", map[string]any{
			"user_id":       shortID(session.User.ID),
			"token_subject": shortID(sub),
		})
	}

	if temporary {
		env.Set(KeyTempUserID, session.User.ID)
	}
	env.Set(KeyAuthToken, session.AccessToken)
	env.Set(KeyAuthUserID, session.User.ID)

	return db.Pass(UserAuthentication, "Successfully authenticated test user", map[string]any{
		"user_id": shortID(session.User.ID),
	})
}

// session returns the credentials and user id published by the
// authentication check.
func session(env *scanner.Env, name string, client *baas.Client) (baas.Credentials, string, *db.Result) {
	token, res := requireString(env, name, KeyAuthToken)
	if res != nil {
		return baas.Credentials{}, "", res
	}

	userID, res := requireString(env, name, KeyAuthUserID)
	if res != nil {
		return baas.Credentials{}, "", res
	}

	return client.User(token), userID, nil
}

func (s *suite) checkProfile(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, UserProfile, s.BaaS)
	if res != nil {
		return res
	}

	rows, err := s.BaaS.Select(ctx, creds, "users", baas.Eq("id", userID))
	if err != nil {
		return db.Fail(UserProfile, fmt.Sprintf("Profile query failed: %v", err), expect.ErrorDetails(err))
	}

	if len(rows) != 1 {
		return db.Fail(UserProfile, fmt.Sprintf("Expected exactly one profile row, got %d", len(rows)), map[string]any{
			"rows": len(rows),
		})
	}

	return db.Pass(UserProfile, "User profile retrieved", map[string]any{
		"fields": len(rows[0]),
	})
}

func (s *suite) checkSession(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, SessionManagement, s.BaaS)
	if res != nil {
		return res
	}

	user, err := s.BaaS.CurrentUser(ctx, creds)
	if err != nil {
		return db.Fail(SessionManagement, fmt.Sprintf("Token validation failed: %v", err), expect.ErrorDetails(err))
	}

	if user.ID == "" {
		return db.Fail(SessionManagement, "User data missing ID field", nil)
	}

	if user.ID != userID {
		return db.Fail(SessionManagement, "Token user ID mismatch", map[string]any{
			"expected": shortID(userID),
			"actual":   shortID(user.ID),
		})
	}

	if _, err := s.BaaS.CurrentUser(ctx, s.BaaS.Anon()); err == nil {
		return db.Fail(SessionManagement, "Anonymous credentials were accepted as a user session", nil)
	}

	return db.Pass(SessionManagement, "Session token validated by the auth service", map[string]any{
		"user_id": shortID(user.ID),
	})
}

func (s *suite) checkProfileUpdate(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, UserProfileUpdate, s.BaaS)
	if res != nil {
		return res
	}

	byID := baas.Eq("id", userID)

	rows, err := s.BaaS.Select(ctx, creds, "users", byID)
	if err != nil {
		return db.Fail(UserProfileUpdate, fmt.Sprintf("Profile query failed: %v", err), expect.ErrorDetails(err))
	}
	if len(rows) != 1 {
		return db.Fail(UserProfileUpdate, fmt.Sprintf("Expected exactly one profile row, got %d", len(rows)), map[string]any{
			"rows": len(rows),
		})
	}

	previous := rows[0]["name"]
	s.cleanup(env, "restore profile name", func(ctx context.Context) error {
		_, err := s.BaaS.Update(ctx, creds, "users", byID, map[string]any{"name": previous})
		return err
	})

	name := "Updated Smoke Test User " + uuid.NewString()[:8]
	updated, err := s.BaaS.Update(ctx, creds, "users", byID, map[string]any{
		"name":       name,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return db.Fail(UserProfileUpdate, fmt.Sprintf("Profile update failed: %v", err), expect.ErrorDetails(err))
	}
	if len(updated) != 1 {
		return db.Fail(UserProfileUpdate, fmt.Sprintf("Profile update changed %d rows instead of one", len(updated)), map[string]any{
			"rows": len(updated),
		})
	}

	rows, err = s.BaaS.Select(ctx, creds, "users", byID)
	if err != nil {
		return db.Fail(UserProfileUpdate, fmt.Sprintf("Profile query after update failed: %v", err), expect.ErrorDetails(err))
	}
	if len(rows) != 1 {
		return db.Fail(UserProfileUpdate, "Profile row is missing after the update", nil)
	}
	if err := expect.Equal("name", fmt.Sprint(rows[0]["name"]), name); err != nil {
		return db.Fail(UserProfileUpdate, err.Error(), nil)
	}

	return db.Pass(UserProfileUpdate, "User profile update working", nil)
}

func (s *suite) checkSettings(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, UserSettings, s.BaaS)
	if res != nil {
		return res
	}

	s.cleanup(env, "delete user settings", func(ctx context.Context) error {
		return s.BaaS.Delete(ctx, creds, "user_settings", baas.Eq("user_id", userID))
	})

	written := map[string]any{
		"user_id":            userID,
		"default_language":   "Spanish",
		"default_tone":       "Friendly",
		"always_encrypt":     true,
		"encryption_enabled": true,
		"updated_at":         time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := s.BaaS.Insert(ctx, creds, "user_settings", written, true); err != nil {
		return db.Fail(UserSettings, fmt.Sprintf("Settings upsert failed: %v", err), expect.ErrorDetails(err))
	}

	rows, err := s.BaaS.Select(ctx, creds, "user_settings", baas.Eq("user_id", userID))
	if err != nil {
		return db.Fail(UserSettings, fmt.Sprintf("Settings query failed: %v", err), expect.ErrorDetails(err))
	}

	if len(rows) != 1 {
		return db.Fail(UserSettings, fmt.Sprintf("Expected one settings row, got %d", len(rows)), map[string]any{
			"rows": len(rows),
		})
	}

	for _, field := range []string{"default_language", "default_tone"} {
		if err := expect.Equal(field, fmt.Sprint(rows[0][field]), fmt.Sprint(written[field])); err != nil {
			return db.Fail(UserSettings, err.Error(), map[string]any{"field": field})
		}
	}

	return db.Pass(UserSettings, "User settings persisted and read back", nil)
}

func (s *suite) checkDevices(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, DeviceManagement, s.BaaS)
	if res != nil {
		return res
	}

	fingerprint := "smoketest-" + uuid.NewString()
	byFingerprint := baas.Eq("device_fingerprint", fingerprint)

	s.cleanup(env, "delete test device", func(ctx context.Context) error {
		return s.BaaS.Delete(ctx, creds, "user_devices", byFingerprint)
	})

	device := map[string]any{
		"user_id":            userID,
		"device_fingerprint": fingerprint,
		"device_name":        "Smoke Test Device",
		"last_active":        time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := s.BaaS.Insert(ctx, creds, "user_devices", device, false); err != nil {
		return db.Fail(DeviceManagement, fmt.Sprintf("Device registration failed: %v", err), expect.ErrorDetails(err))
	}

	devices, err := s.BaaS.Select(ctx, creds, "user_devices", baas.Eq("user_id", userID))
	if err != nil {
		return db.Fail(DeviceManagement, fmt.Sprintf("Device listing failed: %v", err), expect.ErrorDetails(err))
	}

	found := false
	for _, d := range devices {
		if d["device_fingerprint"] == fingerprint {
			found = true
			break
		}
	}
	if !found {
		return db.Fail(DeviceManagement, "Registered device is missing from the device list", map[string]any{
			"device_count": len(devices),
		})
	}

	if err := s.BaaS.Delete(ctx, creds, "user_devices", byFingerprint); err != nil {
		return db.Fail(DeviceManagement, fmt.Sprintf("Device removal failed: %v", err), expect.ErrorDetails(err))
	}

	remaining, err := s.BaaS.Select(ctx, creds, "user_devices", byFingerprint)
	if err != nil {
		return db.Fail(DeviceManagement, fmt.Sprintf("Device lookup after removal failed: %v", err), expect.ErrorDetails(err))
	}
	if len(remaining) != 0 {
		return db.Fail(DeviceManagement, "Device is still present after removal", nil)
	}

	return db.Pass(DeviceManagement, fmt.Sprintf("Device registration, listing and removal working (%d device(s) listed)", len(devices)), map[string]any{
		"device_count": len(devices),
	})
}

func (s *suite) checkSubscription(ctx context.Context, env *scanner.Env) *db.Result {
	creds, userID, res := session(env, SubscriptionLookup, s.BaaS)
	if res != nil {
		return res
	}

	score := expect.NewScore(1)

	_, err := s.BaaS.RPC(ctx, creds, "get_user_subscription", map[string]string{"user_uuid": userID})
	score.Mark("subscription_rpc", err == nil)

	_, err = s.BaaS.Select(ctx, creds, "user_subscriptions", baas.Eq("user_id", userID))
	score.Mark("subscription_table", err == nil)

	if !score.Passed() {
		return db.Fail(SubscriptionLookup, fmt.Sprintf("Subscription data is not reachable (%s)", score.Summary()), score.Details())
	}

	return db.Pass(SubscriptionLookup, fmt.Sprintf("Subscription lookup working (%s)", score.Summary()), score.Details())
}

// shortPassword is below the minimum length of the auth service.
const shortPassword = "123"

func (s *suite) checkPasswordChange(ctx context.Context, env *scanner.Env) *db.Result {
	creds, _, res := session(env, PasswordChange, s.BaaS)
	if res != nil {
		return res
	}

	original := s.Config.TestUserPassword
	if s.Config.TestUserEmail == "" {
		// A temporary user is removed at teardown, its password need not
		// be restored.
		original = ""
	}

	if _, err := s.BaaS.UpdateUser(ctx, creds, map[string]any{"password": "Smoke-" + uuid.NewString()}); err != nil {
		return db.Fail(PasswordChange, fmt.Sprintf("Password change failed: %v", err), expect.ErrorDetails(err))
	}

	if original != "" {
		s.cleanup(env, "restore test user password", func(ctx context.Context) error {
			_, err := s.BaaS.UpdateUser(ctx, creds, map[string]any{"password": original})
			return err
		})
	}

	_, err := s.BaaS.UpdateUser(ctx, creds, map[string]any{"password": shortPassword})
	if err == nil {
		return db.Fail(PasswordChange, "Password validation not working (short password accepted)", nil)
	}

	status := baas.StatusCode(err)
	if status == 0 {
		return db.Fail(PasswordChange, fmt.Sprintf("Short password request failed: %v", err), expect.ErrorDetails(err))
	}

	return db.Pass(PasswordChange, "Password change working, short password rejected", map[string]any{
		"short_password_status": status,
	})
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

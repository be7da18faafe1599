package checks

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mailoreply/smoketest/internal/db"
	"github.com/mailoreply/smoketest/internal/expect"
	"github.com/mailoreply/smoketest/internal/scanner"
	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
	"github.com/mailoreply/smoketest/internal/store"
)

const (
	companyPlan   = "enterprise"
	companyStatus = "active"
	userStatus    = "active"

	inviteFunction = "invite_enterprise_user"
)

var (
	requiredCompanyColumns = []string{
		"id", "name", "plan", "max_users", "current_users", "domain", "status", "created_at", "updated_at",
	}
	requiredUserColumns = []string{
		"id", "email", "name", "role", "company_id", "status", "daily_limit", "monthly_limit", "device_limit", "created_at",
	}
)

func (s *suite) enterpriseChecks() []*scanner.Check {
	var checks []*scanner.Check

	if s.BaaS != nil {
		checks = append(checks, scanner.NewCheck(ServiceRole, s.checkServiceRole))
	}

	return append(checks,
		scanner.NewCheck(SchemaValidation, s.checkSchemaValidation),
		scanner.NewCheck(CompanyCreation, s.checkCompanyCreation, SchemaValidation),
		scanner.NewCheck(ManagerCreation, s.checkManagerCreation, CompanyCreation),
		scanner.NewCheck(InviteRPC, s.checkInviteRPC, ManagerCreation),
		scanner.NewCheck(UserLimitEnforced, s.checkUserLimit, SchemaValidation),
		scanner.NewCheck(DataLinking, s.checkDataLinking, ManagerCreation),
		scanner.NewCheck(ErrorHandling, s.checkErrorHandling, CompanyCreation),
		scanner.NewCheck(RoleLimitDefaults, s.checkRoleLimits, SchemaValidation),
	)
}

func uniqueSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func testEmail(prefix string) string {
	return fmt.Sprintf("%s%s@smoketest.example.com", prefix, uniqueSuffix())
}

// createCompany registers the teardown before inserting, so a company is
// removed even when the check fails after the insert.
func (s *suite) createCompany(ctx context.Context, env *scanner.Env, c *store.Company) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	id := c.ID

	s.cleanup(env, "delete company "+id, func(ctx context.Context) error {
		return s.Store.DeleteCompany(ctx, id)
	})

	return s.Store.CreateCompany(ctx, c)
}

func (s *suite) createUser(ctx context.Context, env *scanner.Env, u *store.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	id := u.ID

	s.cleanup(env, "delete user "+id, func(ctx context.Context) error {
		return s.Store.DeleteUser(ctx, id)
	})

	return s.Store.CreateUser(ctx, u)
}

func (s *suite) checkServiceRole(ctx context.Context, env *scanner.Env) *db.Result {
	creds, ok := s.BaaS.Service()
	if !ok {
		return db.Fail(ServiceRole, "baasServiceKey is not configured", nil)
	}

	status, err := s.BaaS.Probe(ctx, creds, "companies")
	if err != nil {
		return db.Fail(ServiceRole, fmt.Sprintf("Service role request failed: %v", err), expect.ErrorDetails(err))
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return db.Fail(ServiceRole, fmt.Sprintf("Service role cannot read companies: status code %d", status), map[string]any{
			"status_code": status,
		})
	}

	return db.Pass(ServiceRole, "Service role key can access enterprise tables", map[string]any{
		"status_code": status,
	})
}

func (s *suite) checkSchemaValidation(ctx context.Context, env *scanner.Env) *db.Result {
	details := map[string]any{}
	var problems []string

	for table, required := range map[string][]string{
		"companies": requiredCompanyColumns,
		"users":     requiredUserColumns,
	} {
		columns, err := s.Store.TableColumns(ctx, table)
		if err != nil {
			return db.Fail(SchemaValidation, fmt.Sprintf("Schema lookup failed: %v", err), expect.ErrorDetails(err))
		}

		if missing := postgres.Missing(required, columns); len(missing) > 0 {
			details["missing_"+table+"_columns"] = missing
			problems = append(problems, fmt.Sprintf("%s is missing %s", table, strings.Join(missing, ", ")))
		}
	}

	hasRole, err := s.Store.EnumHasLabel(ctx, "user_role", store.RoleEnterpriseManager)
	if err != nil {
		return db.Fail(SchemaValidation, fmt.Sprintf("Enum lookup failed: %v", err), expect.ErrorDetails(err))
	}
	details["enterprise_manager_role"] = hasRole
	if !hasRole {
		problems = append(problems, "user_role has no enterprise_manager label")
	}

	hasFunction, err := s.Store.FunctionExists(ctx, inviteFunction)
	if err != nil {
		return db.Fail(SchemaValidation, fmt.Sprintf("Function lookup failed: %v", err), expect.ErrorDetails(err))
	}
	details[inviteFunction] = hasFunction
	if !hasFunction {
		problems = append(problems, inviteFunction+" function not found")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return db.Fail(SchemaValidation, "Schema is incomplete: "+strings.Join(problems, "; "), details)
	}

	return db.Pass(SchemaValidation, "Enterprise schema has all required columns, roles and functions", details)
}

func (s *suite) checkCompanyCreation(ctx context.Context, env *scanner.Env) *db.Result {
	company := &store.Company{
		Name:     "Smoke Test Corp " + uniqueSuffix(),
		Plan:     companyPlan,
		MaxUsers: 50,
		Status:   companyStatus,
	}

	if err := s.createCompany(ctx, env, company); err != nil {
		return db.Fail(CompanyCreation, fmt.Sprintf("Company creation failed: %v", err), expect.ErrorDetails(err))
	}

	created, err := s.Store.GetCompany(ctx, company.ID)
	if err != nil {
		return db.Fail(CompanyCreation, fmt.Sprintf("Created company could not be read back: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Equal("company name", created.Name, company.Name); err != nil {
		return db.Fail(CompanyCreation, err.Error(), nil)
	}

	env.Set(KeyCompanyID, company.ID)
	env.Set(KeyCompanyName, company.Name)

	return db.Pass(CompanyCreation, "Company created and read back", map[string]any{
		"company_id": shortID(company.ID),
		"max_users":  created.MaxUsers,
	})
}

func (s *suite) checkManagerCreation(ctx context.Context, env *scanner.Env) *db.Result {
	companyID, res := requireString(env, ManagerCreation, KeyCompanyID)
	if res != nil {
		return res
	}

	manager := &store.User{
		Name:      "Smoke Test Manager " + uniqueSuffix(),
		Email:     testEmail("manager"),
		Role:      store.RoleEnterpriseManager,
		CompanyID: companyID,
		Status:    userStatus,
		Limits:    &store.Limits{Daily: store.Unlimited, Monthly: store.Unlimited, Devices: store.Unlimited},
	}

	if err := s.createUser(ctx, env, manager); err != nil {
		return db.Fail(ManagerCreation, fmt.Sprintf("Manager creation failed: %v", err), expect.ErrorDetails(err))
	}

	created, err := s.Store.GetUser(ctx, manager.ID)
	if err != nil {
		return db.Fail(ManagerCreation, fmt.Sprintf("Created manager could not be read back: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Equal("role", created.Role, store.RoleEnterpriseManager); err != nil {
		return db.Fail(ManagerCreation, err.Error(), nil)
	}
	if err := expect.Equal("company", created.CompanyID, companyID); err != nil {
		return db.Fail(ManagerCreation, err.Error(), nil)
	}

	env.Set(KeyManagerID, manager.ID)

	return db.Pass(ManagerCreation, "Enterprise manager created and linked to the company", map[string]any{
		"manager_id": shortID(manager.ID),
	})
}

func (s *suite) checkInviteRPC(ctx context.Context, env *scanner.Env) *db.Result {
	managerID, res := requireString(env, InviteRPC, KeyManagerID)
	if res != nil {
		return res
	}

	email := testEmail("rpcuser")

	result, err := s.Store.InviteUser(ctx, email, "RPC Test User "+uniqueSuffix(), store.RoleEnterpriseUser, managerID)
	if err != nil {
		return db.Fail(InviteRPC, fmt.Sprintf("RPC call failed: %v", err), expect.ErrorDetails(err))
	}

	if result.InvitationID != "" {
		id := result.InvitationID
		s.cleanup(env, "delete invitation "+id, func(ctx context.Context) error {
			return s.Store.DeleteInvitation(ctx, id)
		})
	}

	if !result.Success {
		return db.Fail(InviteRPC, fmt.Sprintf("RPC function failed: %s", result.Error), map[string]any{
			"success": false,
			"error":   result.Error,
		})
	}

	if result.InvitationID == "" {
		return db.Fail(InviteRPC, "RPC succeeded without an invitation id", nil)
	}

	invitation, err := s.Store.GetInvitation(ctx, result.InvitationID)
	if errors.Is(err, store.ErrNotFound) {
		return db.Fail(InviteRPC, "Invitation record not found after RPC call", map[string]any{
			"invitation_id": result.InvitationID,
		})
	}
	if err != nil {
		return db.Fail(InviteRPC, fmt.Sprintf("Invitation lookup failed: %v", err), expect.ErrorDetails(err))
	}

	if err := expect.Equal("invitation email", invitation.Email, email); err != nil {
		return db.Fail(InviteRPC, err.Error(), nil)
	}

	return db.Pass(InviteRPC, "RPC function executed successfully and created invitation", map[string]any{
		"invitation_id": shortID(invitation.ID),
		"status":        invitation.Status,
	})
}

// mentionsLimit reports whether an error text names the capacity limit.
func mentionsLimit(text string) bool {
	text = strings.ToLower(text)
	return strings.Contains(text, "limit") || strings.Contains(text, "maximum")
}

func (s *suite) checkUserLimit(ctx context.Context, env *scanner.Env) *db.Result {
	company := &store.Company{
		Name:         "Smoke Test Full Corp " + uniqueSuffix(),
		Plan:         companyPlan,
		MaxUsers:     1,
		CurrentUsers: 1,
		Status:       companyStatus,
	}
	if err := s.createCompany(ctx, env, company); err != nil {
		return db.Fail(UserLimitEnforced, fmt.Sprintf("Company setup failed: %v", err), expect.ErrorDetails(err))
	}

	manager := &store.User{
		Name:      "Smoke Test Limit Manager",
		Email:     testEmail("limitmanager"),
		Role:      store.RoleEnterpriseManager,
		CompanyID: company.ID,
		Status:    userStatus,
		Limits:    &store.Limits{Daily: store.Unlimited, Monthly: store.Unlimited, Devices: store.Unlimited},
	}
	if err := s.createUser(ctx, env, manager); err != nil {
		return db.Fail(UserLimitEnforced, fmt.Sprintf("Manager setup failed: %v", err), expect.ErrorDetails(err))
	}

	result, err := s.Store.InviteUser(ctx, testEmail("overlimit"), "Over Limit User", store.RoleEnterpriseUser, manager.ID)
	if err != nil {
		if mentionsLimit(err.Error()) {
			return db.Pass(UserLimitEnforced, "User limit enforced: invitation rejected", map[string]any{
				"error":  err.Error(),
				"raised": true,
			})
		}
		return db.Fail(UserLimitEnforced, fmt.Sprintf("RPC call failed: %v", err), expect.ErrorDetails(err))
	}

	if result.InvitationID != "" {
		id := result.InvitationID
		s.cleanup(env, "delete invitation "+id, func(ctx context.Context) error {
			return s.Store.DeleteInvitation(ctx, id)
		})
	}

	details := map[string]any{
		"success":   result.Success,
		"error":     result.Error,
		"max_users": company.MaxUsers,
	}

	if result.Success {
		return db.Fail(UserLimitEnforced, "Invitation accepted although the company is at capacity", details)
	}

	if !mentionsLimit(result.Error) {
		return db.Fail(UserLimitEnforced, fmt.Sprintf("Invitation rejected for another reason: %s", result.Error), details)
	}

	return db.Pass(UserLimitEnforced, "User limit enforced: invitation rejected", details)
}

func (s *suite) checkDataLinking(ctx context.Context, env *scanner.Env) *db.Result {
	companyID, res := requireString(env, DataLinking, KeyCompanyID)
	if res != nil {
		return res
	}

	user := &store.User{
		Name:      "Smoke Test Member " + uniqueSuffix(),
		Email:     testEmail("member"),
		Role:      store.RoleEnterpriseUser,
		CompanyID: companyID,
		Status:    userStatus,
		Limits:    &store.Limits{Daily: 100, Monthly: 1000, Devices: 5},
	}
	if err := s.createUser(ctx, env, user); err != nil {
		return db.Fail(DataLinking, fmt.Sprintf("Enterprise user creation failed: %v", err), expect.ErrorDetails(err))
	}

	members, err := s.Store.CompanyMembers(ctx, companyID)
	if err != nil {
		return db.Fail(DataLinking, fmt.Sprintf("Company members query failed: %v", err), expect.ErrorDetails(err))
	}

	roles := make([]string, len(members))
	for i, m := range members {
		roles[i] = m.Role
	}
	details := map[string]any{"roles": roles}

	if len(members) != 2 {
		return db.Fail(DataLinking, fmt.Sprintf("Expected 2 users linked to company, found %d", len(members)), details)
	}

	if members[0].Role != store.RoleEnterpriseManager || members[1].Role != store.RoleEnterpriseUser {
		return db.Fail(DataLinking, "Company members have unexpected roles", details)
	}

	return db.Pass(DataLinking, "Company and users are linked with the right roles", details)
}

func (s *suite) checkErrorHandling(ctx context.Context, env *scanner.Env) *db.Result {
	// Zero requires every case.
	score := expect.NewScore(s.Config.ErrorHandlingThreshold)

	// Company names are not unique.
	name := "Smoke Test Duplicate " + uniqueSuffix()
	first := &store.Company{Name: name, Plan: companyPlan, MaxUsers: 50, Status: companyStatus}
	second := &store.Company{Name: name, Plan: companyPlan, MaxUsers: 50, Status: companyStatus}
	score.Mark("duplicate_name_allowed",
		s.createCompany(ctx, env, first) == nil && s.createCompany(ctx, env, second) == nil)

	orphan := &store.User{
		Name:      "Invalid Company User",
		Email:     testEmail("invalidcompany"),
		Role:      store.RoleEnterpriseUser,
		CompanyID: uuid.NewString(),
		Status:    userStatus,
	}
	err := s.createUser(ctx, env, orphan)
	score.Mark("foreign_key_violation", err != nil &&
		(postgres.IsForeignKeyViolation(err) || strings.Contains(strings.ToLower(err.Error()), "foreign key")))

	badRole := &store.User{
		Name:   "Invalid Role User",
		Email:  testEmail("invalidrole"),
		Role:   "invalid_role",
		Status: userStatus,
	}
	err = s.createUser(ctx, env, badRole)
	score.Mark("enum_violation", err != nil &&
		(postgres.IsInvalidEnumValue(err) || strings.Contains(strings.ToLower(err.Error()), "enum")))

	result, err := s.Store.InviteUser(ctx, testEmail("nomanager"), "No Manager User", store.RoleEnterpriseUser, uuid.NewString())
	if err == nil && result.InvitationID != "" {
		id := result.InvitationID
		s.cleanup(env, "delete invitation "+id, func(ctx context.Context) error {
			return s.Store.DeleteInvitation(ctx, id)
		})
	}
	score.Mark("rpc_error_handling", err != nil || !result.Success)

	message := fmt.Sprintf("Error handling working properly (%s cases handled)", score.Summary())
	if !score.Passed() {
		return db.Fail(ErrorHandling, fmt.Sprintf("Error handling incomplete (%s cases handled)", score.Summary()), score.Details())
	}

	return db.Pass(ErrorHandling, message, score.Details())
}

// expectedRoleLimits merges the configured role limits over the defaults.
func (s *suite) expectedRoleLimits() (map[string]store.Limits, []string) {
	expected := make(map[string]store.Limits, len(store.DefaultLimits))
	for role, limits := range store.DefaultLimits {
		expected[role] = limits
	}

	for role, values := range s.Config.RoleLimits {
		limits := expected[role]
		if v, ok := values["daily"]; ok {
			limits.Daily = v
		}
		if v, ok := values["monthly"]; ok {
			limits.Monthly = v
		}
		if v, ok := values["devices"]; ok {
			limits.Devices = v
		}
		expected[role] = limits
	}

	roles := make([]string, 0, len(expected))
	for _, role := range store.Roles {
		if _, ok := expected[role]; ok {
			roles = append(roles, role)
		}
	}

	var extra []string
	for role := range expected {
		if _, known := store.DefaultLimits[role]; !known {
			extra = append(extra, role)
		}
	}
	sort.Strings(extra)

	return expected, append(roles, extra...)
}

func (s *suite) checkRoleLimits(ctx context.Context, env *scanner.Env) *db.Result {
	expected, roles := s.expectedRoleLimits()

	details := make(map[string]any, len(roles))
	var mismatched []string

	for _, role := range roles {
		user := &store.User{
			Name:   "Smoke Test " + role,
			Email:  testEmail("limits" + strings.ReplaceAll(role, "_", "")),
			Role:   role,
			Status: userStatus,
		}

		if err := s.createUser(ctx, env, user); err != nil {
			details[role] = map[string]any{"error": err.Error()}
			mismatched = append(mismatched, role)
			continue
		}

		created, err := s.Store.GetUser(ctx, user.ID)
		if err != nil || created.Limits == nil {
			details[role] = map[string]any{"error": fmt.Sprintf("couldn't read back user: %v", err)}
			mismatched = append(mismatched, role)
			continue
		}

		want := expected[role]
		if *created.Limits != want {
			details[role] = map[string]any{"expected": want, "actual": *created.Limits}
			mismatched = append(mismatched, role)
			continue
		}

		details[role] = "OK"
	}

	if len(mismatched) > 0 {
		return db.Fail(RoleLimitDefaults, fmt.Sprintf("Unexpected limits for roles: %s", strings.Join(mismatched, ", ")), details)
	}

	return db.Pass(RoleLimitDefaults, fmt.Sprintf("Default limits correct for %d roles", len(roles)), details)
}

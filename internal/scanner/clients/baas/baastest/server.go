// Package baastest provides an in-memory platform server for tests: REST
// tables, password auth issuing signed tokens and stored procedures.
package baastest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	AnonKey    = "test-anon-key"
	ServiceKey = "test-service-key"
)

var signingKey = []byte("baastest-signing-key")

// RPCFunc answers a stored procedure call with a status code and a JSON
// document.
type RPCFunc func(args map[string]any) (int, any)

type account struct {
	id       string
	password string
}

type Server struct {
	*httptest.Server

	mu sync.Mutex

	tables   map[string][]map[string]any
	missing  map[string]bool
	accounts map[string]account
	rpcs     map[string]RPCFunc
	requests []string

	// ConflictKeys maps a table to the column used to merge upserts.
	// Tables not listed merge on "id".
	ConflictKeys map[string]string

	minPasswordLength int
}

// NewServer starts a server with the given tables present and empty. The
// server is closed when the test finishes.
func NewServer(t testing.TB, tables ...string) *Server {
	t.Helper()

	s := &Server{
		tables:       make(map[string][]map[string]any),
		missing:      make(map[string]bool),
		accounts:     make(map[string]account),
		rpcs:         make(map[string]RPCFunc),
		ConflictKeys: map[string]string{"user_settings": "user_id"},

		minPasswordLength: 6,
	}

	for _, table := range tables {
		s.tables[table] = nil
	}

	r := chi.NewRouter()
	r.Use(s.record, requireAPIKey)

	r.Route("/rest/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"swagger": "2.0"})
		})
		r.Post("/rpc/{function}", s.handleRPC)
		r.Get("/{table}", s.handleSelect)
		r.Post("/{table}", s.handleInsert)
		r.Patch("/{table}", s.handleUpdate)
		r.Delete("/{table}", s.handleDelete)
	})

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", s.handleSignUp)
		r.Post("/token", s.handleToken)
		r.Get("/user", s.handleGetUser)
		r.Put("/user", s.handleUpdateUser)
		r.Delete("/admin/users/{id}", s.handleDeleteUser)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)

	return s
}

// AddRows stores rows in table, creating it if needed.
func (s *Server) AddRows(table string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append(s.tables[table], rows...)
}

// Rows returns a copy of the rows of table.
func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]map[string]any, len(s.tables[table]))
	copy(rows, s.tables[table])
	return rows
}

// HasAccount reports whether an auth user with the given id exists.
func (s *Server) HasAccount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.accountByID(id)
	return ok
}

// Accounts returns the number of registered auth users.
func (s *Server) Accounts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.accounts)
}

// SetMinPasswordLength changes the length enforced on password changes.
// It defaults to the hosted auth service's 6.
func (s *Server) SetMinPasswordLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minPasswordLength = n
}

// DropTable makes table answer 404.
func (s *Server) DropTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, table)
	s.missing[table] = true
}

func (s *Server) HandleRPC(function string, fn RPCFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rpcs[function] = fn
}

// Requests returns the "METHOD /path" of every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]string, len(s.requests))
	copy(requests, s.requests)
	return requests
}

// Token issues an access token for the given user id.
func Token(userID string) (string, error) {
	token, err := jwt.NewBuilder().Subject(userID).Build()
	if err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), signingKey))
	if err != nil {
		return "", err
	}

	return string(signed), nil
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("apikey")
		if key != AnonKey && key != ServiceKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok || s.missing[table] {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("relation %q does not exist", table)})
		return
	}

	result := make([]map[string]any, 0)
	for _, row := range rows {
		if matches(row, r) {
			result = append(result, row)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	var row map[string]any
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; !ok || s.missing[table] {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("relation %q does not exist", table)})
		return
	}

	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}

	if strings.Contains(r.Header.Get("Prefer"), "merge-duplicates") {
		key := s.ConflictKeys[table]
		if key == "" {
			key = "id"
		}

		for i, existing := range s.tables[table] {
			if fmt.Sprint(existing[key]) == fmt.Sprint(row[key]) {
				merged := make(map[string]any, len(existing)+len(row))
				for k, v := range existing {
					merged[k] = v
				}
				for k, v := range row {
					if k != "id" {
						merged[k] = v
					}
				}

				s.tables[table][i] = merged
				writeJSON(w, http.StatusOK, []map[string]any{merged})
				return
			}
		}
	}

	s.tables[table] = append(s.tables[table], row)
	writeJSON(w, http.StatusCreated, []map[string]any{row})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; !ok || s.missing[table] {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("relation %q does not exist", table)})
		return
	}

	updated := make([]map[string]any, 0)
	for i, row := range s.tables[table] {
		if !matches(row, r) {
			continue
		}

		merged := make(map[string]any, len(row)+len(patch))
		for k, v := range row {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}

		s.tables[table][i] = merged
		updated = append(updated, merged)
	}

	if !strings.Contains(r.Header.Get("Prefer"), "return=representation") {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0:0]
	for _, row := range s.tables[table] {
		if !matches(row, r) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")

	var args map[string]any
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	fn, ok := s.rpcs[function]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": fmt.Sprintf("function %s does not exist", function)})
		return
	}

	status, body := fn(args)
	writeJSON(w, status, body)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[req.Email]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "User already registered"})
		return
	}

	id := uuid.NewString()
	s.accounts[req.Email] = account{id: id, password: req.Password}
	if _, ok := s.tables["users"]; ok {
		s.tables["users"] = append(s.tables["users"], map[string]any{"id": id, "email": req.Email, "name": req.Data["name"]})
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "email": req.Email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Email]
	s.mu.Unlock()

	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		return
	}

	token, err := Token(acc.id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  token,
		"refresh_token": uuid.NewString(),
		"token_type":    "bearer",
		"user":          map[string]any{"id": acc.id, "email": req.Email},
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, acc, ok := s.bearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": acc.id, "email": email})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, acc, ok := s.bearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "invalid JWT"})
		return
	}

	if req.Password != nil {
		if len(*req.Password) < s.minPasswordLength {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"msg": fmt.Sprintf("Password should be at least %d characters.", s.minPasswordLength),
			})
			return
		}

		acc.password = *req.Password
		s.accounts[email] = acc
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": acc.id, "email": email})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != ServiceKey || r.Header.Get("Authorization") != "Bearer "+ServiceKey {
		writeJSON(w, http.StatusForbidden, map[string]any{"msg": "User not allowed"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.accountByID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"msg": "User not found"})
		return
	}

	delete(s.accounts, email)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// bearer resolves the account of the access token in the Authorization
// header. The caller holds s.mu.
func (s *Server) bearer(r *http.Request) (string, account, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", account{}, false
	}

	token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256(), signingKey))
	if err != nil {
		return "", account{}, false
	}

	sub, ok := token.Subject()
	if !ok {
		return "", account{}, false
	}

	email, ok := s.accountByID(sub)
	if !ok {
		return "", account{}, false
	}

	return email, s.accounts[email], true
}

// accountByID returns the e-mail of the account with the given id. The
// caller holds s.mu.
func (s *Server) accountByID(id string) (string, bool) {
	for email, acc := range s.accounts {
		if acc.id == id {
			return email, true
		}
	}
	return "", false
}

// matches applies the "column=eq.value" filters of the request.
func matches(row map[string]any, r *http.Request) bool {
	for column, values := range r.URL.Query() {
		for _, v := range values {
			value, ok := strings.CutPrefix(v, "eq.")
			if !ok {
				continue
			}
			if fmt.Sprint(row[column]) != value {
				return false
			}
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

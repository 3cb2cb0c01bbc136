package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type memCredentials struct {
	byUsername map[string]*Credential
	err        error
}

func (m *memCredentials) CredentialByUsername(_ context.Context, username string) (*Credential, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byUsername[username]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return c, nil
}

func newLoginFixture(t *testing.T) *LoginHandler {
	t.Helper()
	hash, err := HashPassword("secret7")
	if err != nil {
		t.Fatal(err)
	}
	store := &memCredentials{byUsername: map[string]*Credential{
		"PAT-00012": {ID: 12, Username: "PAT-00012", FirstName: "Awa", LastName: "Diop", PasswordHash: hash},
		"STF-00001": {ID: 1, Username: "STF-00001", PasswordHash: hash, IsStaff: true},
	}}
	return NewLoginHandler(store, NewTokenIssuer(testSigningKey, "clinic", time.Hour))
}

func postLogin(t *testing.T, h *LoginHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h.Login(e.NewContext(req, rec))
}

func TestLogin_PatientSuccess(t *testing.T) {
	h := newLoginFixture(t)
	rec, err := postLogin(t, h, `{"username":"PAT-00012","password":"secret7"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 12 || resp.IsPersonnel || resp.FirstName != "Awa" {
		t.Errorf("unexpected response: %+v", resp)
	}

	actor, err := parseToken(resp.Token, JWTConfig{SigningKey: testSigningKey, Issuer: "clinic"})
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if actor != (Actor{ID: 12, Role: RolePatient}) {
		t.Errorf("expected patient:12, got %s", actor)
	}
}

func TestLogin_StaffRole(t *testing.T) {
	h := newLoginFixture(t)
	rec, err := postLogin(t, h, `{"username":"STF-00001","password":"secret7"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp loginResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	actor, err := parseToken(resp.Token, JWTConfig{SigningKey: testSigningKey})
	if err != nil || actor.Role != RoleStaff || !resp.IsPersonnel {
		t.Errorf("expected staff token, got %v (%v)", actor, err)
	}
}

func TestLogin_Failures(t *testing.T) {
	h := newLoginFixture(t)
	tests := []struct {
		name string
		body string
		code int
	}{
		{"wrong password", `{"username":"PAT-00012","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"PAT-99999","password":"secret7"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"PAT-00012"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := postLogin(t, h, tt.body)
			expectStatus(t, err, tt.code)
		})
	}
}

func TestLogin_UnknownUserStillComparesHash(t *testing.T) {
	h := newLoginFixture(t)
	var hashes []string
	h.check = func(hash, plain string) bool {
		hashes = append(hashes, hash)
		return CheckPassword(hash, plain)
	}

	_, err := postLogin(t, h, `{"username":"PAT-99999","password":"secret7"}`)
	expectStatus(t, err, http.StatusUnauthorized)
	if len(hashes) != 1 {
		t.Fatalf("expected one bcrypt comparison for an unknown user, got %d", len(hashes))
	}
	if !strings.HasPrefix(hashes[0], "$2") {
		t.Errorf("expected a bcrypt hash, got %q", hashes[0])
	}

	hashes = nil
	_, err = postLogin(t, h, `{"username":"PAT-00012","password":"nope"}`)
	expectStatus(t, err, http.StatusUnauthorized)
	if len(hashes) != 1 {
		t.Errorf("expected one comparison for a wrong password, got %d", len(hashes))
	}
}

func TestLogin_StoreError(t *testing.T) {
	h := NewLoginHandler(&memCredentials{err: errors.New("db down")}, NewTokenIssuer(testSigningKey, "", time.Hour))
	_, err := postLogin(t, h, `{"username":"PAT-00012","password":"secret7"}`)
	expectStatus(t, err, http.StatusInternalServerError)
}

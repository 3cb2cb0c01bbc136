package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrUnknownAccount is returned by a CredentialStore when no account matches.
var ErrUnknownAccount = errors.New("unknown account")

// Credential is the login view of an account.
type Credential struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	PasswordHash string
	IsStaff      bool
}

type CredentialStore interface {
	CredentialByUsername(ctx context.Context, username string) (*Credential, error)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	IsPersonnel bool      `json:"is_personnel"`
}

// LoginHandler exchanges a username/password pair for a bearer token.
type LoginHandler struct {
	store  CredentialStore
	tokens *TokenIssuer
	check  func(hash, plain string) bool
}

func NewLoginHandler(store CredentialStore, tokens *TokenIssuer) *LoginHandler {
	return &LoginHandler{store: store, tokens: tokens, check: CheckPassword}
}

func (h *LoginHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
}

func (h *LoginHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	cred, err := h.store.CredentialByUsername(c.Request().Context(), req.Username)
	switch {
	case errors.Is(err, ErrUnknownAccount):
		h.check(unknownAccountHash(), req.Password)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	case !h.check(cred.PasswordHash, req.Password):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	role := RolePatient
	if cred.IsStaff {
		role = RoleStaff
	}
	token, exp, err := h.tokens.Issue(Actor{ID: cred.ID, Role: role})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}

	return c.JSON(http.StatusOK, loginResponse{
		Token:       token,
		ExpiresAt:   exp,
		ID:          cred.ID,
		Username:    cred.Username,
		FirstName:   cred.FirstName,
		LastName:    cred.LastName,
		IsPersonnel: cred.IsStaff,
	})
}

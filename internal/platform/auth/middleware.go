package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims are the bearer token claims. Subject carries the account id.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	Skipper    func(c echo.Context) bool
}

// JWTMiddleware validates an HS256 bearer token and stores the resolved
// Actor on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			actor, err := parseToken(parts[1], cfg)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

func parseToken(tokenStr string, cfg JWTConfig) (Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Actor{}, errInvalidToken
	}
	if !claims.Role.Valid() {
		return Actor{}, errInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, errInvalidToken
	}
	return Actor{ID: id, Role: claims.Role}, nil
}

// DevActorHeader lets development clients pick an identity without a token,
// e.g. "patient:12" or "staff:1".
const DevActorHeader = "X-Dev-Actor"

// DevAuthMiddleware is a permissive middleware for development. Requests
// carrying a bearer token are validated normally; otherwise the actor comes
// from DevActorHeader, defaulting to staff account 1.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return validated(c)
			}

			actor := Actor{ID: 1, Role: RoleStaff}
			if raw := c.Request().Header.Get(DevActorHeader); raw != "" {
				parsed, ok := parseDevActor(raw)
				if !ok {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+DevActorHeader+" header")
				}
				actor = parsed
			}
			c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	}
}

func parseDevActor(raw string) (Actor, bool) {
	role, idStr, ok := strings.Cut(raw, ":")
	if !ok {
		return Actor{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 || !Role(role).Valid() {
		return Actor{}, false
	}
	return Actor{ID: id, Role: Role(role)}, true
}

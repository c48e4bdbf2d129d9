package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/api/response"
)

// UserRegistry records users the first time they are seen.
type UserRegistry interface {
	CreateUserIfNotExists(ctx context.Context, user string) (uuid.UUID, error)
}

// Auth verifies HS256 bearer tokens and puts the subject in the request
// context.
type Auth struct {
	users  UserRegistry
	secret []byte
	parser *jwt.Parser
}

// NewAuth creates a new Auth middleware. Empty issuer or audience disable
// the corresponding claim check.
func NewAuth(users UserRegistry, secret, issuer, audience string) *Auth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Auth{users: users, secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Authenticate validates the Bearer token, registers its subject as a user
// and sets it in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid token", nil)
			return
		}
		if claims.Subject == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Token has no subject", nil)
			return
		}

		if _, err := a.users.CreateUserIfNotExists(r.Context(), claims.Subject); err != nil {
			slog.Error("register user", "user", claims.Subject, "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), claims.Subject)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"strato/internal/rbac"
	"strato/internal/store"
)

type AuthConfig struct {
	JWTSecret string
}

type identityKey struct{}

func withIdentity(ctx context.Context, id rbac.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// identityFrom returns the authenticated caller, or nil when the request
// carried no resolvable credentials.
func identityFrom(ctx context.Context) *rbac.Identity {
	id, ok := ctx.Value(identityKey{}).(rbac.Identity)
	if !ok {
		return nil
	}
	return &id
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Group       string   `json:"group,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func authenticateJWT(token, secret string) (rbac.Identity, error) {
	if strings.TrimSpace(secret) == "" {
		return rbac.Identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return rbac.Identity{}, err
	}
	if !parsed.Valid {
		return rbac.Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return rbac.Identity{}, errors.New("subject claim required")
	}
	return rbac.Identity{
		Name:        claims.Subject,
		Group:       claims.Group,
		Permissions: claims.Permissions,
	}, nil
}

func authenticateAPIKey(ctx context.Context, s store.Store, key string) (rbac.Identity, error) {
	if strings.TrimSpace(key) == "" {
		return rbac.Identity{}, errors.New("api key required")
	}
	apiKey, err := s.GetAPIKeyByHash(ctx, store.HashAPIKey(key))
	if err != nil {
		return rbac.Identity{}, err
	}
	name := apiKey.Name
	if name == "" {
		name = apiKey.ID
	}
	return rbac.Identity{Name: name, Permissions: apiKey.Permissions}, nil
}

// MintToken issues an HS256 bearer token carrying a permission set; the CLI
// uses it to bootstrap API access.
func MintToken(secret, subject, group string, permissions []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Group:       group,
		Permissions: permissions,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, s store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for the API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials"))
					return
				}
				identity, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials"))
					return
				}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), identity)))
				return
			}

			if apiKeyHeader != "" {
				identity, err := authenticateAPIKey(req.Context(), s, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid credentials"))
					return
				}
				next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), identity)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, rbac.ErrUnauthenticated.Error()))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

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
	"go.uber.org/zap"

	"guildboard/internal/repo"
)

// Credential sources.
const (
	sourceJWT    = "jwt"
	sourceAPIKey = "api_key"
)

// OpenAPI security scheme names and the scheduler key header.
const (
	schemeBearer = "bearerAuth"
	schemeAPIKey = "apiKeyAuth"
	apiKeyHeader = "X-Api-Key"
)

type AuthConfig struct {
	JWTSecret string
	// AllowUnauthenticatedScheduler opens the all-tenant trigger to callers
	// without an API key.
	AllowUnauthenticatedScheduler bool
}

type Principal struct {
	ActorID string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// requireUser returns the bearer-authenticated user id.
func requireUser(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Source == sourceJWT && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "bearer token required", nil)
}

// requireScheduler admits API-key callers, or anyone when the scheduler is
// configured as unauthenticated.
func requireScheduler(ctx context.Context, cfg AuthConfig) huma.StatusError {
	if cfg.AllowUnauthenticatedScheduler {
		return nil
	}
	if p, ok := principalFromContext(ctx); ok && p.Source == sourceAPIKey {
		return nil
	}
	return newAPIError(http.StatusUnauthorized, "unauthorized", "api key required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: claims.Subject, Source: sourceJWT}, nil
}

// SignToken mints an HS256 bearer token for userID. A zero ttl means no expiry.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := time.Now()
	claims := jwtClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return Principal{}, err
	}
	if apiKey.ActorID == "" {
		return Principal{}, errors.New("api key missing actor")
	}
	return Principal{ActorID: apiKey.ActorID, Source: sourceAPIKey}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves whichever credential the request carries.
// Invalid credentials are rejected here; missing credentials are left for
// each operation to enforce.
func newAuthMiddleware(cfg AuthConfig, r repo.Repo, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			key := strings.TrimSpace(req.Header.Get(apiKeyHeader))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					log.Debug("bearer token rejected", zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if key != "" {
				principal, err := authenticateAPIKey(req.Context(), r, key)
				if err != nil {
					if !errors.Is(err, repo.ErrNotFound) {
						log.Error("api key lookup failed", zap.Error(err))
					}
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			next.ServeHTTP(w, req)
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

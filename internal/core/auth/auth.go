// Package auth provides HMAC-based API key authentication for the gRPC admin API.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// apiKeyKey is the context key for the authenticated key.
const apiKeyKey = contextKey("api_key")

// healthPrefix marks the unauthenticated gRPC health service.
const healthPrefix = "/grpc.health.v1.Health/"

// Queries interface defines database operations needed for authentication.
// Implemented by *db.Queries.
type Queries interface {
	Get(name string, dest interface{}, args ...interface{}) error
	Exec(name string, args ...interface{}) (sql.Result, error)
}

// Key identifies an authenticated API key.
type Key struct {
	ID   string `db:"api_key_id"`
	Name string `db:"name"`
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and queries for key verification.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and query interface.
func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		now:     time.Now,
	}
}

// Authenticate validates an API key and returns its identity.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Key, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Key{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Key{}, ErrUnknownKey
	}

	computedHash := ComputeHMAC(secret, apiKey)

	var result struct {
		Key
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}

	err = a.queries.Get("get-api-key-by-hash", &result, computedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, ErrInvalidKey
	}
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if result.RevokedAt.Valid {
		return Key{}, ErrKeyRevoked
	}

	// last_used_at is written at most once a minute per key.
	if a.shouldUpdateLastUsed(result.LastUsedAt) {
		_, _ = a.queries.Exec("update-last-used", a.now().UTC(), result.ID)
	}

	return result.Key, nil
}

func (a *Authenticator) shouldUpdateLastUsed(lastUsed sql.NullTime) bool {
	if !lastUsed.Valid {
		return true
	}
	return a.now().Sub(lastUsed.Time) > time.Minute
}

// Issue creates a new API key signed with the given secret and stores its hash.
// The plaintext key is returned once and never stored.
func Issue(queries Queries, secretID string, secret []byte, name string) (Key, string, error) {
	apiKey, err := GenerateAPIKey(secretID)
	if err != nil {
		return Key{}, "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Key{}, "", fmt.Errorf("generate key id: %w", err)
	}
	key := Key{ID: id.String(), Name: name}
	if _, err := queries.Exec("insert-api-key", key.ID, key.Name, ComputeHMAC(secret, apiKey), time.Now().UTC()); err != nil {
		return Key{}, "", fmt.Errorf("store api key: %w", err)
	}
	return key, apiKey, nil
}

// Revoke marks a key revoked. Revoking an unknown or already revoked key
// returns ErrInvalidKey.
func Revoke(queries Queries, keyID string) error {
	res, err := queries.Exec("revoke-api-key", time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidKey
	}
	return nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		key, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case errors.Is(err, ErrDatabase):
				return nil, status.Error(codes.Unavailable, err.Error())
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		return handler(context.WithValue(ctx, apiKeyKey, key), req)
	}
}

// KeyFromContext extracts the authenticated key from context.
func KeyFromContext(ctx context.Context) (Key, bool) {
	key, ok := ctx.Value(apiKeyKey).(Key)
	return key, ok
}

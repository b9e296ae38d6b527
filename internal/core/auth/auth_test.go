package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/db"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("testsecret1234567890abcdefghijklmnop")

var selectKey = regexp.QuoteMeta("SELECT api_key_id, name, revoked_at, last_used_at")

func newMockQueries(t *testing.T) (*db.Queries, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	q, err := db.LoadQueries(sqlx.NewDb(conn, "sqlmock"))
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	return q, mock
}

func newTestKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	return key
}

func keyRows(revoked, lastUsed any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"api_key_id", "name", "revoked_at", "last_used_at"}).
		AddRow("key-1", "overlay", revoked, lastUsed)
}

func TestParseAPIKey(t *testing.T) {
	valid := FormatAPIKey(testSecretID, strings.Repeat("ab", 32))

	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{"valid", valid, true},
		{"wrong prefix", strings.Replace(valid, "sb-", "tk-", 1), false},
		{"wrong version", strings.Replace(valid, "-v1-", "-v2-", 1), false},
		{"short random", FormatAPIKey(testSecretID, "abcd"), false},
		{"uppercase hex", FormatAPIKey(strings.ToUpper(testSecretID), strings.Repeat("ab", 32)), false},
		{"too many parts", valid + "-x", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, _, err := ParseAPIKey(tt.key)
			if tt.ok {
				if err != nil {
					t.Fatalf("ParseAPIKey() error = %v, want nil", err)
				}
				if secretID != testSecretID {
					t.Errorf("secretID = %q, want %q", secretID, testSecretID)
				}
				return
			}
			if !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("ParseAPIKey() error = %v, want ErrInvalidKeyFormat", err)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a := newTestKey(t)
	b := newTestKey(t)
	if a == b {
		t.Fatal("GenerateAPIKey() returned the same key twice")
	}
	want := len(keyPrefix+"-"+keyVersion+"-") + len(testSecretID) + len("-") + 64
	if len(a) != want {
		t.Errorf("len(key) = %d, want %d", len(a), want)
	}
	if id, _, err := ParseAPIKey(a); err != nil || id != testSecretID {
		t.Errorf("ParseAPIKey(%q) = %q, %v, want %q, nil", a, id, err, testSecretID)
	}
	if !VerifyHMAC(ComputeHMAC(testSecret, a), ComputeHMAC(testSecret, a)) {
		t.Error("VerifyHMAC() = false for identical hashes")
	}
	if VerifyHMAC(ComputeHMAC(testSecret, a), ComputeHMAC(testSecret, b)) {
		t.Error("VerifyHMAC() = true for different keys")
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid key updates last used", func(t *testing.T) {
		q, mock := newMockQueries(t)
		key := newTestKey(t)
		mock.ExpectQuery(selectKey).WithArgs(ComputeHMAC(testSecret, key)).WillReturnRows(keyRows(nil, nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET last_used_at")).
			WithArgs(sqlmock.AnyArg(), "key-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
		got, err := a.Authenticate(ctx, key)
		if err != nil {
			t.Fatalf("Authenticate() error = %v, want nil", err)
		}
		if got.ID != "key-1" || got.Name != "overlay" {
			t.Errorf("Authenticate() = %+v", got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("recently used key skips update", func(t *testing.T) {
		q, mock := newMockQueries(t)
		key := newTestKey(t)
		mock.ExpectQuery(selectKey).WillReturnRows(keyRows(nil, time.Now().UTC()))

		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
		if _, err := a.Authenticate(ctx, key); err != nil {
			t.Fatalf("Authenticate() error = %v, want nil", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("unknown secret", func(t *testing.T) {
		q, _ := newMockQueries(t)
		a := NewAuthenticator(map[string][]byte{}, q)
		if _, err := a.Authenticate(ctx, newTestKey(t)); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("Authenticate() error = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("no such key", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(selectKey).WillReturnRows(sqlmock.NewRows([]string{"api_key_id", "name", "revoked_at", "last_used_at"}))

		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
		if _, err := a.Authenticate(ctx, newTestKey(t)); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Authenticate() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(selectKey).WillReturnRows(keyRows(time.Now().UTC(), nil))

		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
		if _, err := a.Authenticate(ctx, newTestKey(t)); !errors.Is(err, ErrKeyRevoked) {
			t.Errorf("Authenticate() error = %v, want ErrKeyRevoked", err)
		}
	})

	t.Run("database error", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(selectKey).WillReturnError(errors.New("connection reset"))

		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)
		if _, err := a.Authenticate(ctx, newTestKey(t)); !errors.Is(err, ErrDatabase) {
			t.Errorf("Authenticate() error = %v, want ErrDatabase", err)
		}
	})
}

func TestIssueAndRevoke(t *testing.T) {
	q, mock := newMockQueries(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO api_keys")).
		WithArgs(sqlmock.AnyArg(), "overlay", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET revoked_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET revoked_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	key, plaintext, err := Issue(q, testSecretID, testSecret, "overlay")
	if err != nil {
		t.Fatalf("Issue() error = %v, want nil", err)
	}
	if _, _, err := ParseAPIKey(plaintext); err != nil {
		t.Errorf("issued key does not parse: %v", err)
	}
	if err := Revoke(q, key.ID); err != nil {
		t.Fatalf("Revoke() error = %v, want nil", err)
	}
	if err := Revoke(q, key.ID); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("second Revoke() error = %v, want ErrInvalidKey", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUnaryInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/sogebot.events.v1.Admin/Fire"}

	t.Run("missing metadata", func(t *testing.T) {
		q, _ := newMockQueries(t)
		a := NewAuthenticator(nil, q)
		_, err := a.UnaryInterceptor()(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler called without metadata")
			return nil, nil
		})
		if status.Code(err) != codes.Unauthenticated {
			t.Errorf("code = %v, want Unauthenticated", status.Code(err))
		}
	})

	t.Run("revoked key is permission denied", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(selectKey).WillReturnRows(keyRows(time.Now().UTC(), nil))
		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)

		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", newTestKey(t)))
		_, err := a.UnaryInterceptor()(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, nil
		})
		if status.Code(err) != codes.PermissionDenied {
			t.Errorf("code = %v, want PermissionDenied", status.Code(err))
		}
	})

	t.Run("valid key reaches handler", func(t *testing.T) {
		q, mock := newMockQueries(t)
		mock.ExpectQuery(selectKey).WillReturnRows(keyRows(nil, time.Now().UTC()))
		a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q)

		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", newTestKey(t)))
		resp, err := a.UnaryInterceptor()(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
			key, ok := KeyFromContext(ctx)
			if !ok || key.ID != "key-1" {
				t.Errorf("KeyFromContext() = %+v, %v", key, ok)
			}
			return "ok", nil
		})
		if err != nil || resp != "ok" {
			t.Errorf("interceptor = %v, %v", resp, err)
		}
	})
}

func TestUnaryInterceptor_HealthIsPublic(t *testing.T) {
	a := NewAuthenticator(nil, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := a.UnaryInterceptor()(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "serving", nil
	})
	if err != nil || resp != "serving" {
		t.Errorf("interceptor = %v, %v, want serving", resp, err)
	}
}

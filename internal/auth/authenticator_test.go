package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T, keys ...string) *Authenticator {
	t.Helper()
	var hashes []string
	for _, k := range keys {
		h, err := bcrypt.GenerateFromPassword([]byte(k), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("GenerateFromPassword() error = %v", err)
		}
		hashes = append(hashes, string(h))
	}
	a, err := NewAuthenticator(Config{JWTSecret: "test-secret", TokenTTL: time.Hour, APIKeyHashes: hashes}, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	return a
}

func TestIssueAndValidateToken(t *testing.T) {
	a := newTestAuthenticator(t)

	token, expiresAt, err := a.IssueToken("user-42")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if got := time.Until(expiresAt); got <= 59*time.Minute || got > time.Hour {
		t.Errorf("expiry in %v, want about 1h", got)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-42")
	}
	if claims.Issuer != DefaultIssuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, DefaultIssuer)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	a := newTestAuthenticator(t)
	good, _, err := a.IssueToken("user-1")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	other, err := NewAuthenticator(Config{JWTSecret: "other-secret"}, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	forged, _, _ := other.IssueToken("user-1")

	expired := newTestAuthenticator(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, _ := expired.IssueToken("user-1")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-1", Issuer: DefaultIssuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"expired", stale},
		{"alg none", unsigned},
		{"tampered", good + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	const key = "0123456789abcdef-key"
	a := newTestAuthenticator(t, key)
	token, _, err := a.IssueToken("user-7")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
		wantErr error
	}{
		{"bearer", "/", map[string]string{"Authorization": "Bearer " + token}, "user-7", nil},
		{"basic scheme", "/", map[string]string{"Authorization": "Basic abc"}, "", ErrInvalidToken},
		{"api key", "/", map[string]string{APIKeyHeader: key, UserIDHeader: "user-9"}, "user-9", nil},
		{"api key without user", "/", map[string]string{APIKeyHeader: key}, "", ErrMissingCredentials},
		{"wrong api key", "/", map[string]string{APIKeyHeader: "nope", UserIDHeader: "u"}, "", ErrInvalidAPIKey},
		{"query token", "/?access_token=" + token, nil, "user-7", nil},
		{"nothing", "/", nil, "", ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := a.Authenticate(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Authenticate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHashAPIKey(t *testing.T) {
	if _, err := HashAPIKey("short"); err == nil {
		t.Error("HashAPIKey() accepted a short key")
	}
	h, err := HashAPIKey("a-long-enough-api-key")
	if err != nil {
		t.Fatalf("HashAPIKey() error = %v", err)
	}
	a, err := NewAuthenticator(Config{JWTSecret: "s", APIKeyHashes: []string{h}}, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	if err := a.ValidateAPIKey("a-long-enough-api-key"); err != nil {
		t.Errorf("ValidateAPIKey() error = %v", err)
	}
}

func TestNewAuthenticator_BadHash(t *testing.T) {
	if _, err := NewAuthenticator(Config{APIKeyHashes: []string{"plaintext"}}, nil); err == nil {
		t.Error("NewAuthenticator() accepted a non-bcrypt hash")
	}
}

func TestUserIDContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetUserIDFromRequest(r); got != "" {
		t.Errorf("GetUserIDFromRequest() = %q, want empty", got)
	}
	r = r.WithContext(WithUserID(r.Context(), "u-1"))
	if got := GetUserIDFromRequest(r); got != "u-1" {
		t.Errorf("GetUserIDFromRequest() = %q, want %q", got, "u-1")
	}
}

// Package auth authenticates API callers with signed bearer tokens or
// hashed API keys and carries the caller's user ID in the request context.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTokenTTL is the lifetime of issued tokens.
	DefaultTokenTTL = 24 * time.Hour
	// DefaultIssuer is the iss claim of issued tokens.
	DefaultIssuer = "code-dojo"

	// APIKeyHeader carries an API key. Requests authenticated this way name
	// the learner in UserIDHeader.
	APIKeyHeader = "X-API-Key"
	// UserIDHeader names the learner for API-key and unauthenticated requests.
	UserIDHeader = "X-User-ID"
)

var (
	// ErrMissingCredentials is returned when a request carries no token or key.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidToken is returned for a malformed, expired or forged token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidAPIKey is returned when no configured key hash matches.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Claims are the JWT claims of an issued token. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// Config configures an Authenticator.
type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
	// APIKeyHashes are bcrypt hashes of accepted API keys.
	APIKeyHashes []string
}

// Authenticator issues and verifies credentials.
type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	apiKeys [][]byte
	now     func() time.Time
}

// NewAuthenticator creates an Authenticator. Without a secret a random one is
// generated, so tokens do not survive a restart.
func NewAuthenticator(cfg Config, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	secret := cfg.JWTSecret
	if secret == "" {
		generated, err := randomSecret(32)
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("generated random JWT secret; issued tokens will not survive a restart")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}

	a := &Authenticator{
		secret: []byte(secret),
		ttl:    cfg.TokenTTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, h := range cfg.APIKeyHashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("invalid API key hash: %w", err)
		}
		a.apiKeys = append(a.apiKeys, []byte(h))
	}
	return a, nil
}

// IssueToken signs a token for userID and returns it with its expiry.
func (a *Authenticator) IssueToken(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies a token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// ValidateAPIKey reports whether key matches one of the configured hashes.
func (a *Authenticator) ValidateAPIKey(key string) error {
	if key == "" {
		return ErrMissingCredentials
	}
	for _, h := range a.apiKeys {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return nil
		}
	}
	return ErrInvalidAPIKey
}

// Authenticate resolves the caller of r. A bearer token names the user in
// its subject; an API key trusts the user named in UserIDHeader.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", fmt.Errorf("%w: expected a bearer token", ErrInvalidToken)
		}
		claims, err := a.ValidateToken(strings.TrimSpace(raw))
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}

	if key := r.Header.Get(APIKeyHeader); key != "" {
		if err := a.ValidateAPIKey(key); err != nil {
			return "", err
		}
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			return "", fmt.Errorf("%w: %s header is required with an API key", ErrMissingCredentials, UserIDHeader)
		}
		return userID, nil
	}

	// Browsers cannot set headers on a WebSocket handshake.
	if token := r.URL.Query().Get("access_token"); token != "" {
		claims, err := a.ValidateToken(token)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
	return "", ErrMissingCredentials
}

// HashAPIKey returns the bcrypt hash to put in configuration for key.
func HashAPIKey(key string) (string, error) {
	if len(key) < 16 {
		return "", errors.New("API keys must be at least 16 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

type userIDKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the user ID stored in ctx, if any.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// GetUserIDFromRequest returns the authenticated user of r.
func GetUserIDFromRequest(r *http.Request) string {
	return UserID(r.Context())
}

func randomSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

// Package token signs and verifies the session token carried in the auth cookie.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure.
// Callers never learn whether the signature, the expiry or the payload was wrong.
var ErrInvalidToken = errors.New("invalid token")

// Config configures a Manager.
type Config struct {
	Secret []byte
	Issuer string
	// TTL is the token lifetime; it should match the absolute session lifetime.
	TTL    time.Duration
	Leeway time.Duration
}

// Claims is the token payload.
// TenantID is carried for older clients only and must not be used for authorization.
type Claims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid token TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// Issue signs claims. Registered claims are filled in by the manager.
func (m *Manager) Issue(claims Claims) (string, error) {
	if claims.UserID == "" {
		return "", errors.New("token requires a user id")
	}

	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.config.Issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns its claims, or ErrInvalidToken.
func (m *Manager) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.config.Leeway))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.config.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

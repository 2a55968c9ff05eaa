// Package auth issues and checks the credentials guarding the restore API.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subject is the only principal tokens are issued for.
const Subject = "restore"

var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

type Claims struct {
	jwt.RegisteredClaims
}

// Manager checks the shared API key and issues HS256 tokens in exchange for it.
type Manager struct {
	apiKey []byte
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(apiKey, jwtSecret string, ttl time.Duration) (*Manager, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if jwtSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return &Manager{apiKey: []byte(apiKey), secret: []byte(jwtSecret), ttl: ttl, now: time.Now}, nil
}

// CheckAPIKey compares key against the configured key in constant time.
func (m *Manager) CheckAPIKey(key string) bool {
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), m.apiKey) == 1
}

// Login exchanges a valid API key for a signed token.
func (m *Manager) Login(apiKey string) (string, time.Time, error) {
	if !m.CheckAPIKey(apiKey) {
		return "", time.Time{}, ErrInvalidAPIKey
	}
	now := m.now()
	exp := now.Add(m.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate parses a token and rejects anything not HS256-signed with our
// secret, expired, or issued for another subject.
func (m *Manager) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(Subject),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize accepts either the raw API key or a bearer token.
func (m *Manager) Authorize(apiKey, bearer string) error {
	if m.CheckAPIKey(apiKey) {
		return nil
	}
	if bearer == "" {
		return ErrInvalidAPIKey
	}
	_, err := m.Validate(bearer)
	return err
}

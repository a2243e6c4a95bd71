package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer       = "sapo-auth"
	sessionAudience     = "sapo-admin"
	defaultSessionTTL   = 12 * time.Hour
	minSigningKeyLength = 32
)

var (
	// ErrInvalidIssuerConfig reports unusable issuer configuration.
	ErrInvalidIssuerConfig = errors.New("auth: invalid token issuer config")

	// ErrInvalidSessionToken reports a token that failed validation.
	ErrInvalidSessionToken = errors.New("auth: invalid session token")

	errShortSigningKey = errors.New("signing key must be at least 32 bytes")
	errEmptySubject    = errors.New("subject email must not be empty")
)

// TokenIssuerConfig bundles configuration for minting admin session tokens.
type TokenIssuerConfig struct {
	SigningKey string
	TTL        time.Duration
	Clock      func() time.Time
}

// TokenIssuer mints and validates HS256 admin session tokens.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
	clock      func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// NewTokenIssuer constructs an issuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) < minSigningKeyLength {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errShortSigningKey)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingKey: []byte(cfg.SigningKey),
		ttl:        ttl,
		clock:      clock,
	}, nil
}

// TTL reports the configured session lifetime.
func (issuer *TokenIssuer) TTL() time.Duration {
	return issuer.ttl
}

// Issue mints a signed session token whose subject is the admin email.
func (issuer *TokenIssuer) Issue(subjectEmail string) (string, error) {
	subject := strings.ToLower(strings.TrimSpace(subjectEmail))
	if subject == "" {
		return "", errEmptySubject
	}

	now := issuer.clock()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Audience:  jwt.ClaimStrings{sessionAudience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(issuer.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(issuer.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate parses a session token and returns the subject email.
func (issuer *TokenIssuer) Validate(rawToken string) (string, error) {
	if strings.TrimSpace(rawToken) == "" {
		return "", ErrInvalidSessionToken
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(
		rawToken,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return issuer.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithTimeFunc(issuer.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidSessionToken
	}
	return claims.Subject, nil
}

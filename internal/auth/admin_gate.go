package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotAdmin reports a valid Google account that is not the configured admin.
	ErrNotAdmin = errors.New("auth: account is not an admin")

	// ErrInvalidGateConfig reports unusable admin gate configuration.
	ErrInvalidGateConfig = errors.New("auth: invalid admin gate config")

	errMissingVerifier   = errors.New("id token verifier required")
	errMissingIssuer     = errors.New("token issuer required")
	errMissingAdminEmail = errors.New("admin email required")
)

// IDTokenVerifier abstracts Google ID token verification for the gate.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (GoogleClaims, error)
}

// AdminGateConfig bundles the dependencies of the admin gate.
type AdminGateConfig struct {
	Verifier   IDTokenVerifier
	Issuer     *TokenIssuer
	AdminEmail string
	Logger     *zap.Logger
}

// Session is the result of a successful admin sign-in.
type Session struct {
	Token     string
	Email     string
	ExpiresIn time.Duration
}

// AdminGate exchanges a Google ID token for an admin session token when the
// account email matches the configured admin address.
type AdminGate struct {
	verifier   IDTokenVerifier
	issuer     *TokenIssuer
	adminEmail string
	logger     *zap.Logger
}

// NewAdminGate constructs a gate with validated configuration.
func NewAdminGate(cfg AdminGateConfig) (*AdminGate, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGateConfig, errMissingVerifier)
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGateConfig, errMissingIssuer)
	}
	adminEmail := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if adminEmail == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGateConfig, errMissingAdminEmail)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminGate{
		verifier:   cfg.Verifier,
		issuer:     cfg.Issuer,
		adminEmail: adminEmail,
		logger:     logger,
	}, nil
}

// SignIn verifies the Google ID token, checks the admin email, and mints a
// session token. Accounts other than the configured admin get ErrNotAdmin.
func (gate *AdminGate) SignIn(ctx context.Context, idToken string) (Session, error) {
	claims, err := gate.verifier.Verify(ctx, idToken)
	if err != nil {
		return Session{}, fmt.Errorf("verify id token: %w", err)
	}

	if claims.Email != gate.adminEmail {
		gate.logger.Warn("admin sign-in rejected", zap.String("email", claims.Email))
		return Session{}, ErrNotAdmin
	}

	token, err := gate.issuer.Issue(claims.Email)
	if err != nil {
		return Session{}, err
	}

	gate.logger.Info("admin signed in", zap.String("email", claims.Email))
	return Session{
		Token:     token,
		Email:     claims.Email,
		ExpiresIn: gate.issuer.TTL(),
	}, nil
}

// Authorize validates a session token from a request and confirms the subject
// is still the configured admin.
func (gate *AdminGate) Authorize(rawToken string) (string, error) {
	email, err := gate.issuer.Validate(rawToken)
	if err != nil {
		return "", err
	}
	if email != gate.adminEmail {
		return "", ErrNotAdmin
	}
	return email, nil
}

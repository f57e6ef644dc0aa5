package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrMissingSecret = errors.New("token secret required")
)

// TokenConfig describes the HS256 tokens that carry a caller identity in
// their subject claim. Empty Issuer or Audience skips that check.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// TokenVerifier issues and checks caller tokens.
type TokenVerifier struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenVerifier(cfg TokenConfig) (*TokenVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &TokenVerifier{cfg: cfg, now: time.Now}, nil
}

// Issue signs a token for subject that expires after ttl.
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrMissingCaller
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if v.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.cfg.Secret)
}

// Caller verifies token and returns its subject.
func (v *TokenVerifier) Caller(token string) (string, error) {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("%w: subject claim missing", ErrInvalidToken)
	}
	return subject, nil
}

// WithToken verifies token and attaches its subject with WithCaller.
func (v *TokenVerifier) WithToken(ctx context.Context, token string) (context.Context, error) {
	caller, err := v.Caller(token)
	if err != nil {
		return ctx, err
	}
	return WithCaller(ctx, caller), nil
}

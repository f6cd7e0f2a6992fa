// Package auth issues and validates the bearer tokens that guard the
// admin HTTP surface. There is exactly
// one principal — the operator holding the configured admin secret —
// so this is a deliberately narrower cousin of a full user/session JWT
// service: one subject, one token type, no refresh flow.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subject is the fixed JWT subject claim for the single admin principal.
const Subject = "admin"

var (
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrExpiredToken       = errors.New("auth: token has expired")
	ErrTokenSigningFailed = errors.New("auth: failed to sign token")
	ErrSecretTooShortJWT  = errors.New("auth: JWT signing secret must be at least 32 characters")
)

// JWTConfig configures a JWTService.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "dirlistener".
	Issuer string

	// TokenDuration is the admin token lifetime. Default: 15 minutes.
	TokenDuration time.Duration
}

// Claims is the JWT payload for the admin principal.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService signs and validates admin bearer tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService builds a JWTService from config, applying defaults.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < 32 {
		return nil, ErrSecretTooShortJWT
	}
	if config.Issuer == "" {
		config.Issuer = "dirlistener"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 15 * time.Minute
	}
	return &JWTService{config: config}, nil
}

// IssueToken mints a new admin bearer token.
func (s *JWTService) IssueToken() (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.TokenDuration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrTokenSigningFailed, err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies tokenString.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenDuration returns the configured token lifetime.
func (s *JWTService) TokenDuration() time.Duration {
	return s.config.TokenDuration
}

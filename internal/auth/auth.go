// Package auth resolves session tokens into callers. Tokens are HS256 JWTs
// whose signing key is derived from the configured master secret.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/cory-johannsen/derby/internal/config"
	"github.com/cory-johannsen/derby/internal/game/errs"
)

// Role constants for caller privilege levels.
const (
	RolePlayer  = "player"
	RoleManager = "manager"
	RoleDisplay = "display"
)

// ValidRole reports whether role is a recognised privilege level.
func ValidRole(role string) bool {
	switch role {
	case RolePlayer, RoleManager, RoleDisplay:
		return true
	}
	return false
}

// Caller is the authenticated identity passed explicitly to every service call.
type Caller struct {
	UserID string
	Role   string
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// BearerToken strips an optional "Bearer " prefix from an authorization value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(header)
}

// Claims are the session token claims.
type Claims struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

const keyInfo = "derby session signing key v1"

// Verifier issues and resolves session tokens.
type Verifier struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewVerifier derives the signing key from cfg.Secret.
//
// Precondition: cfg.Secret must be non-empty.
// Postcondition: Returns a ready Verifier or a non-nil error.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.Secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: deriving signing key: %w", err)
	}
	return &Verifier{key: key, issuer: cfg.Issuer, ttl: cfg.TokenTTL, now: time.Now}, nil
}

// Issue signs a token for userID with the given role.
//
// Precondition: userID must be non-empty; role must satisfy ValidRole.
// Postcondition: Resolve(token) returns Caller{userID, role} until the TTL elapses.
func (v *Verifier) Issue(userID, name, role string) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user id must not be empty")
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	now := v.now()
	claims := Claims{
		StudentID: userID,
		Name:      name,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Resolve validates token and returns its caller.
//
// Postcondition: Returns an errs.Unauthenticated error for any missing,
// malformed, expired, or foreign token.
func (v *Verifier) Resolve(token string) (Caller, error) {
	if token == "" {
		return Caller{}, errs.New(errs.Unauthenticated, "missing session token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return Caller{}, errs.Wrap(errs.Unauthenticated, err, "invalid session token")
	}
	if claims.StudentID == "" || !ValidRole(claims.Role) {
		return Caller{}, errs.New(errs.Unauthenticated, "session token lacks identity")
	}
	return Caller{UserID: claims.StudentID, Role: claims.Role}, nil
}

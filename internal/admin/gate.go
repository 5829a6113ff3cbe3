// Package admin issues and checks the capability tokens that unlock
// privileged session commands.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidSecret = errors.New("invalid admin secret")
	ErrUnauthorized  = errors.New("unauthorized")
)

const (
	issuer     = "prize-draw"
	DefaultTTL = 12 * time.Hour
)

// Claims is the capability payload. Subject is the transport id the
// capability was issued to; it is empty for HTTP tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Gate struct {
	secret []byte
	ttl    time.Duration
}

func NewGate(secret string, ttl time.Duration) (*Gate, error) {
	if secret == "" {
		return nil, errors.New("admin secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{secret: []byte(secret), ttl: ttl}, nil
}

// Authenticate checks secret and returns a capability bound to transportID.
func (g *Gate) Authenticate(transportID, secret string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(secret), g.secret) != 1 {
		return "", ErrInvalidSecret
	}

	now := time.Now()
	claims := &Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   transportID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign capability: %w", err)
	}
	return token, nil
}

// Verify checks the token signature and expiry. When transportID is not
// empty the token must have been issued to that transport.
func (g *Gate) Verify(token, transportID string) error {
	if token == "" {
		return fmt.Errorf("%w: missing capability", ErrUnauthorized)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Role != "admin" {
		return fmt.Errorf("%w: role %q", ErrUnauthorized, claims.Role)
	}
	if transportID != "" && claims.Subject != transportID {
		return fmt.Errorf("%w: capability issued to another connection", ErrUnauthorized)
	}
	return nil
}

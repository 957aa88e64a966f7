package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token cannot be verified.
var ErrInvalidToken = errors.New("invalid or expired token")

// Resolver turns a raw bearer token into a Caller.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Caller, error)
}

type claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HMAC-signed tokens from the identity provider.
type JWTResolver struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTResolver creates a resolver. Empty issuer or audience disables that check.
func NewJWTResolver(secret, issuer, audience string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Resolve validates the signature, expiry and subject of token.
func (r *JWTResolver) Resolve(_ context.Context, token string) (Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.audience != "" {
		opts = append(opts, jwt.WithAudience(r.audience))
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Caller{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	caller := Caller{UserID: c.Subject}
	if c.Name != "" {
		name := c.Name
		caller.FullName = &name
	}
	return caller, nil
}

// Issue signs an HS256 token for caller. The API never calls it; it exists for
// local development and tests against a shared secret.
func Issue(secret string, caller Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if caller.FullName != nil {
		c.Name = *caller.FullName
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}

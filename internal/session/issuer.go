// Package session mints and verifies the signed bearer tokens handed out at
// login. Tokens are HS256 JWTs with an absolute expiry; there is no refresh.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Claims is the claim set carried by a session token.
type Claims struct {
	AccountID string      `json:"accountId"`
	Email     string      `json:"email"`
	Role      entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Expiry returns the absolute expiry in UTC, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time.UTC()
}

// Issuer signs and verifies tokens with one process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Issuer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Issue mints a token for the account. Expiry is issue time + ttl, both at
// second precision.
func (i *Issuer) Issue(accountID, email string, role entity.Role) (string, error) {
	now := i.now().Truncate(time.Second)
	claims := Claims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks signature and expiry. A token is valid up to and including
// its expiry instant and ErrExpired after it; anything else that fails is
// ErrInvalid.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalid
	}
	if claims.AccountID == "" || claims.RegisteredClaims.ExpiresAt == nil || !claims.Role.Valid() {
		return nil, ErrInvalid
	}
	if i.now().After(claims.Expiry()) {
		return nil, ErrExpired
	}
	return claims, nil
}

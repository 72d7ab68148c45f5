// Package auth decodes the bearer tokens issued by the platform's identity
// service into a model.User. Login and registration live elsewhere; Issue is
// provided for development and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/model"
)

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role  string `json:"role"`
	Grade string `json:"grade,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Issuer{secret: []byte(secret)}, nil
}

// Issue mints a token for user that expires after ttl.
func (i *Issuer) Issue(user model.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  user.Role.String(),
		Grade: user.Grade,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies token and returns its principal. Every failure wraps
// ErrUnauthenticated.
func (i *Issuer) Parse(token string) (model.User, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		// only accept HMAC signing
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return model.User{}, fmt.Errorf("%w: invalid token", app_errors.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return model.User{}, fmt.Errorf("%w: invalid subject in token", app_errors.ErrUnauthenticated)
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.User{}, fmt.Errorf("%w: unknown role %q", app_errors.ErrUnauthenticated, claims.Role)
	}
	return model.User{ID: claims.Subject, Role: role, Grade: claims.Grade}, nil
}

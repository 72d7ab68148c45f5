package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anooppandey17/virtual-teacher/internal/auth"
	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/model"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := auth.NewIssuer("secret")
	require.NoError(t, err)

	token, err := issuer.Issue(model.User{ID: "learner-1", Role: model.RoleLearner, Grade: "3"}, time.Hour)
	require.NoError(t, err)

	user, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: "learner-1", Role: model.RoleLearner, Grade: "3"}, user)
}

func TestIssuer_Rejects(t *testing.T) {
	issuer, err := auth.NewIssuer("secret")
	require.NoError(t, err)
	other, err := auth.NewIssuer("another-secret")
	require.NoError(t, err)

	foreign, err := other.Issue(model.User{ID: "u", Role: model.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	expired, err := issuer.Issue(model.User{ID: "u", Role: model.RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unknownRoleToken, err := unknownRole.SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role:             "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
	})
	noExpiryToken, err := noExpiry.SignedString([]byte("secret"))
	require.NoError(t, err)

	testCases := map[string]string{
		"Wrong secret":   foreign,
		"Expired":        expired,
		"Unknown role":   unknownRoleToken,
		"Missing expiry": noExpiryToken,
		"Garbage":        "not-a-token",
	}
	for name, token := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.ErrorIs(t, err, app_errors.ErrUnauthenticated)
		})
	}
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := auth.NewIssuer("")
	assert.Error(t, err)
}

package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/account-auth/internal/model"
)

func TestClaimsIssuer_IssueAndParse(t *testing.T) {
	iss := NewClaimsIssuer("secret", time.Hour)

	raw, exp, err := iss.Issue(42, "a@example.com", "3")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	c, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", c.Subject)
	assert.Equal(t, uint64(42), UserID(c))
	assert.Equal(t, "a@example.com", c.Email)
	assert.Equal(t, model.RoleUser, c.Role)
	assert.Equal(t, "3", c.SessionVersion)
}

func TestClaimsIssuer_WrongSecret(t *testing.T) {
	raw, _, err := NewClaimsIssuer("secret", time.Hour).Issue(1, "a@example.com", "1")
	require.NoError(t, err)

	_, err = NewClaimsIssuer("other", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestClaimsIssuer_Expired(t *testing.T) {
	iss := NewClaimsIssuer("secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, _, err := iss.Issue(1, "a@example.com", "1")
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestClaimsIssuer_RejectsOtherAlgorithms(t *testing.T) {
	claims := model.Claims{
		Role:           model.RoleUser,
		SessionVersion: "1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewClaimsIssuer("secret", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestClaimsIssuer_RejectsMissingVersion(t *testing.T) {
	claims := model.Claims{
		Role: model.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewClaimsIssuer("secret", time.Hour).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

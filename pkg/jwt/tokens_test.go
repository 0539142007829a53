package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("u-1", "developer", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := Parse(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID())
	assert.Equal(t, "developer", claims.Role)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("u-1", "admin", "secret", time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "other")
	assert.Error(t, err)
}

func TestGenerateRequiresSubject(t *testing.T) {
	_, err := GenerateToken("  ", "admin", "secret", time.Minute)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestParseRejectsForeignAudience(t *testing.T) {
	claims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "u-1",
		Audience:  jwtlib.ClaimStrings{"someone-else"},
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = Parse(token, "secret")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("u-1", "admin", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token, "secret")
	assert.Error(t, err)
}

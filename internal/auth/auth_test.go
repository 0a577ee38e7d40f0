package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "anna", "secret", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "anna", claims.Username)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", "anna", "secret", -1)
	require.NoError(t, err)
	_, err = ValidateJWT(token, "secret")
	assert.Error(t, err)
}

func TestJWTRejectsForeignTokens(t *testing.T) {
	sign := func(method jwt.SigningMethod, key interface{}, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	other := valid
	other.Issuer = "someone-else"
	_, err := ValidateJWT(sign(jwt.SigningMethodHS256, []byte("secret"), Claims{RegisteredClaims: other}), "secret")
	assert.Error(t, err, "wrong issuer")

	_, err = ValidateJWT(sign(jwt.SigningMethodHS512, []byte("secret"), Claims{RegisteredClaims: valid}), "secret")
	assert.Error(t, err, "unexpected algorithm")

	anonymous := valid
	anonymous.Subject = ""
	_, err = ValidateJWT(sign(jwt.SigningMethodHS256, []byte("secret"), Claims{RegisteredClaims: anonymous}), "secret")
	assert.Error(t, err, "missing subject")

	_, err = ValidateJWT(sign(jwt.SigningMethodHS256, []byte("secret"), Claims{Username: "anna", RegisteredClaims: valid}), "secret")
	assert.NoError(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
}

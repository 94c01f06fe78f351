package plume

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestUserIDFromToken(t *testing.T) {
	token := signTestToken(t, jwt.MapClaims{"sub": "user-42"})
	assert.Equal(t, "user-42", userIDFromToken(token))
}

func TestUserIDFromTokenMalformed(t *testing.T) {
	assert.Equal(t, "", userIDFromToken(""))
	assert.Equal(t, "", userIDFromToken("not-a-jwt"))
	assert.Equal(t, "", userIDFromToken(signTestToken(t, jwt.MapClaims{"name": "no subject"})))
}

func TestTokenExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)

	expired := signTestToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Hour).Unix()})
	assert.True(t, tokenExpired(expired, now))

	valid := signTestToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()})
	assert.False(t, tokenExpired(valid, now))

	noExp := signTestToken(t, jwt.MapClaims{"sub": "u"})
	assert.False(t, tokenExpired(noExp, now), "tokens without exp never expire client-side")
}

package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("unit-secret"))

	token, exp, err := Generate(opts, "u1", "Mahek")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Verify(opts, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Mahek", claims.UserName)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("secret-a")), "u1", "")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("secret-b")), token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("unit-secret"))
	opts.TTL = time.Nanosecond
	token, _, err := Generate(opts, "u1", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = Verify(opts, token)
	assert.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("x"), Alg: "RS256"}
	_, _, err := Generate(opts, "u1", "")
	assert.Error(t, err)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	first, err := h.Hash("secret123")
	require.NoError(t, err)
	second, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each hash uses a fresh salt")

	ok, err := h.Verify("secret123", first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("secret124", first)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHasherMalformedDigest(t *testing.T) {
	h := NewPasswordHasher(0)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	ok, err := h.Verify("secret123", "not-a-bcrypt-hash")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMalformedHash)
}

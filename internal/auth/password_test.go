package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcryptTestCost)
	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, h.Verify("s3cret", hash))
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	h := NewBcryptHasher(bcryptTestCost)
	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.False(t, h.Verify("wrong", hash))
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcryptTestCost)
	assert.False(t, h.Verify("s3cret", "not-a-bcrypt-hash"))
}

// bcryptTestCost keeps the test suite fast; production uses DefaultCost.
const bcryptTestCost = 4

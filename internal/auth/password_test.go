package auth_test

import (
	"crypto/rand"
	"testing"

	"github.com/pilab-dev/hospital-gate/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	hasher := auth.NewBcryptPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NoError(t, hasher.Verify(hash, "correct horse"))
	assert.ErrorIs(t, hasher.Verify(hash, "battery staple"), auth.ErrPasswordMismatch)

	t.Run("TestTooLongPassword", func(t *testing.T) {
		tooLongPass := make([]byte, 73)
		_, _ = rand.Read(tooLongPass)

		_, err := hasher.Hash(string(tooLongPass))
		assert.Error(t, err)
	})

	t.Run("TestEmptyHashNeverMatches", func(t *testing.T) {
		err := hasher.Verify("", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrPasswordMismatch)
	})
}

func TestDefaultCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptPasswordHasher(0).Cost)
}

package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := security.HashPassword("correct horse battery", config.PasswordConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	cases := []struct {
		candidate string
		want      bool
	}{
		{"correct horse battery", true},
		{"correct horse batter", false},
		{"", false},
	}
	for _, tc := range cases {
		ok, err := security.VerifyPassword(tc.candidate, hash)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, ok, "candidate %q", tc.candidate)
	}
}

func TestHashPasswordFallsBackToDefaultCost(t *testing.T) {
	for _, cost := range []int{0, bcrypt.MaxCost + 1} {
		hash, err := security.HashPassword("pw", config.PasswordConfig{BcryptCost: cost})
		require.NoError(t, err)
		got, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, 8, got)
	}
}

func TestPasswordInputErrors(t *testing.T) {
	_, err := security.HashPassword("", config.PasswordConfig{})
	assert.Error(t, err)

	for _, bad := range []string{"not-a-hash", "$9$04$abcdefghijklmnopqrstuv"} {
		_, err := security.VerifyPassword("irrelevant", bad)
		assert.ErrorIsf(t, err, security.ErrInvalidHash, "hash %q", bad)
	}
}

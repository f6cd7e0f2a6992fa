package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecretRejectsShort(t *testing.T) {
	_, err := HashSecret("short")
	require.ErrorIs(t, err, ErrSecretTooShort)
}

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("a-reasonably-long-admin-secret")
	require.NoError(t, err)

	require.True(t, VerifySecret("a-reasonably-long-admin-secret", hash))
	require.False(t, VerifySecret("wrong-secret-entirely", hash))
}

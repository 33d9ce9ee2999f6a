package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/pgrotate/internal/password"
)

func TestGenerateLength(t *testing.T) {
	t.Parallel()

	for _, length := range []int{32, 48, 64} {
		got, err := password.Generate(length)
		require.NoError(t, err)
		assert.Len(t, got, length)
	}
}

func TestGenerateRejectsShortLengths(t *testing.T) {
	t.Parallel()

	for _, length := range []int{0, 1, 16, 31} {
		_, err := password.Generate(length)
		assert.Error(t, err, "length %d should be rejected", length)
	}
}

func TestGenerateUsesAllowedCharset(t *testing.T) {
	t.Parallel()

	const allowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+"

	got, err := password.Generate(64)
	require.NoError(t, err)

	for _, r := range got {
		assert.True(t, strings.ContainsRune(allowed, r), "unexpected character %q", r)
	}
}

func TestGenerateIsNotDeterministic(t *testing.T) {
	t.Parallel()

	a, err := password.Generate(32)
	require.NoError(t, err)
	b, err := password.Generate(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter22a")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22a", hash)

	assert.True(t, VerifyPassword(hash, "hunter22a"))
	assert.False(t, VerifyPassword(hash, "hunter22b"))
	assert.False(t, VerifyPassword("", "hunter22a"))
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"abc1":                   false,
		"abcdefgh":               false,
		"12345678":               false,
		"abcdefg1":               true,
		strings.Repeat("a1", 37): false,
		strings.Repeat("a1", 36): true,
	}
	for pw, ok := range cases {
		err := ValidatePassword(pw)
		if ok {
			assert.NoError(t, err, pw)
			continue
		}
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr), pw)
		assert.Equal(t, "password", vErr.Field)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Ann@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", email)

	for _, bad := range []string{"", "ann", "ann@localhost", "Ann <ann@example.com>", "a@@b.c"} {
		_, err = NormalizeEmail(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestValidateUsername(t *testing.T) {
	name, err := ValidateUsername(" ann_b ")
	require.NoError(t, err)
	assert.Equal(t, "ann_b", name)

	for _, bad := range []string{"ab", strings.Repeat("x", 33), "ann b", "ann/b"} {
		_, err = ValidateUsername(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCSRFManager(t *testing.T) {
	m := NewCSRFManager([]byte("0123456789abcdef0123456789abcdef"))

	token := m.Issue("sess-1")
	assert.Equal(t, token, m.Issue("sess-1"))
	assert.True(t, m.Validate("sess-1", token))

	assert.False(t, m.Validate("sess-2", token))
	assert.False(t, m.Validate("sess-1", ""))
	assert.False(t, m.Validate("", token))
	assert.False(t, m.Validate("sess-1", "!!not-base64!!"))
	assert.False(t, NewCSRFManager([]byte("another-key-another-key-another!")).Validate("sess-1", token))
}

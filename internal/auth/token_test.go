package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	token, expiresAt, err := tm.GenerateAdminToken(9, "Carlos")
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseAdminToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.AgentID)
	assert.Equal(t, "Carlos", claims.AgentName)
}

func TestAdminTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", 60).GenerateAdminToken(9, "Carlos")
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", 60).ParseAdminToken(token)
	assert.Error(t, err)
}

func TestAdminTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	_, err := tm.ParseAdminToken("not-a-token")
	assert.Error(t, err)
}

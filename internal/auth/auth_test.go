package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePublishTokenDefaultsExpirationWhenUnset(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 0, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "mystream", token.StreamKey)
	assert.True(t, token.ExpiresAt.After(token.CreatedAt))
	assert.False(t, token.IsUsed)
}

func TestGeneratePublishTokenCapsAtMaxExpiration(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 999999999, "127.0.0.1")
	require.NoError(t, err)
	assert.LessOrEqual(t, token.ExpiresAt.Sub(token.CreatedAt), m.maxExpiration+1)
}

func TestValidateTokenRejectsUnknownToken(t *testing.T) {
	m := New()
	defer m.Close()

	err := m.ValidateToken("not-a-real-token", "mystream", "127.0.0.1")
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongStreamKey(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 60, "127.0.0.1")
	require.NoError(t, err)

	err = m.ValidateToken(token.Token, "othersream", "127.0.0.1")
	assert.Error(t, err)
}

func TestValidateTokenAcceptsFreshToken(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 60, "127.0.0.1")
	require.NoError(t, err)

	assert.NoError(t, m.ValidateToken(token.Token, "mystream", "127.0.0.1"))
}

func TestMarkTokenUsedInvalidatesIt(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 60, "127.0.0.1")
	require.NoError(t, err)

	m.MarkTokenUsed(token.Token)
	assert.Error(t, m.ValidateToken(token.Token, "mystream", "127.0.0.1"))
}

func TestRevokeTokenRemovesItEntirely(t *testing.T) {
	m := New()
	defer m.Close()

	token, err := m.GeneratePublishToken("mystream", 60, "127.0.0.1")
	require.NoError(t, err)

	m.RevokeToken(token.Token)
	assert.Equal(t, 0, m.TokenCount())
	assert.Error(t, m.ValidateToken(token.Token, "mystream", "127.0.0.1"))
}

func TestCleanupExpiredTokensRemovesOnlyExpiredOnes(t *testing.T) {
	m := New()
	defer m.Close()

	_, err := m.GeneratePublishToken("fresh", 3600, "127.0.0.1")
	require.NoError(t, err)

	expired, err := m.GeneratePublishToken("stale", 1, "127.0.0.1")
	require.NoError(t, err)
	m.tokens[expired.Token].ExpiresAt = expired.CreatedAt

	m.CleanupExpiredTokens()
	assert.Equal(t, 1, m.TokenCount())
}

package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSettingsIssueAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1}

	key, err := us.IssueAPIKey()
	require.NoError(t, err)
	require.NotEmpty(t, key)

	assert.True(t, strings.HasPrefix(key, "cfg_"))
	assert.NotEmpty(t, us.APIKeyHash)
	assert.NotEmpty(t, us.APIKeyPrefix)
	assert.NotNil(t, us.APIKeyCreatedAt)
	assert.Nil(t, us.APIKeyLastUsedAt)
	assert.True(t, us.HasActiveAPIKey())
	assert.Equal(t, HashAPIKey(key), us.APIKeyHash)
}

func TestUserSettingsIssueAPIKeyReplacesRevokedKey(t *testing.T) {
	us := &UserSettings{UserID: 2}
	_, err := us.IssueAPIKey()
	require.NoError(t, err)

	us.RevokeAPIKey()
	require.False(t, us.HasActiveAPIKey())

	key, err := us.IssueAPIKey()
	require.NoError(t, err)

	assert.True(t, us.HasActiveAPIKey())
	assert.Nil(t, us.APIKeyRevokedAt)
	assert.Equal(t, HashAPIKey(key), us.APIKeyHash)
}

func TestUserSettingsRevokeAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 99}
	_, err := us.IssueAPIKey()
	require.NoError(t, err)

	us.RevokeAPIKey()

	assert.False(t, us.HasActiveAPIKey())
	assert.Equal(t, "", us.APIKeyHash)
	assert.Equal(t, "", us.APIKeyPrefix)
	assert.NotNil(t, us.APIKeyRevokedAt)
}

func TestUserSettingsTouchAPIKeyUsage(t *testing.T) {
	us := &UserSettings{UserID: 3}
	_, err := us.IssueAPIKey()
	require.NoError(t, err)
	require.Nil(t, us.APIKeyLastUsedAt)

	us.TouchAPIKeyUsage()

	assert.NotNil(t, us.APIKeyLastUsedAt)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("cfg_abc"), HashAPIKey("  cfg_abc \n"))
}

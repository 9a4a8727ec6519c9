package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_SECRET", "test-secret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "https://api.eventy.app", cfg.APIBaseURL)
	assert.Equal(t, "file", cfg.TokenStore)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Scopes)
	assert.Equal(t, 15*time.Second, cfg.MessagePollInterval())
	assert.Equal(t, 30*time.Second, cfg.NotificationPollInterval())
}

func TestLoad_FileStoreRequiresSecret(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_SECRET", "")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENTY_TOKEN_SECRET")
}

func TestLoad_MemoryStoreNeedsNoSecret(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_STORE", "memory")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.TokenStore)
}

func TestLoad_InvalidTokenStore(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_STORE", "keychain")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token store")
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_STORE", "memory")
	t.Setenv("EVENTY_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_STORE", "memory")
	t.Setenv("EVENTY_POLL_MESSAGES_SECONDS", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll intervals")
}

func TestLoad_CustomScopes(t *testing.T) {
	t.Setenv("EVENTY_TOKEN_STORE", "memory")
	t.Setenv("EVENTY_SCOPES", "openid,tickets:read")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "tickets:read"}, cfg.Scopes)
}

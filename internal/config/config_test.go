package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AI_BACKEND", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.RetryLimit)
	assert.Equal(t, time.Second, cfg.Queue.RetryDelay)
	assert.True(t, cfg.Queue.RetryBackoff)
	assert.Equal(t, 24*time.Hour, cfg.Queue.ExpireAfter)
	assert.Equal(t, 7*24*time.Hour, cfg.Queue.RetainCompleted)
	assert.Equal(t, 5, cfg.Queue.SendTeamSize)
	assert.Equal(t, 1, cfg.Queue.SendTeamConcurrency)
	assert.Equal(t, 3, cfg.Queue.AITeamSize)
	assert.Equal(t, AIBackendTemplate, cfg.AI.Backend)
	assert.Equal(t, ChannelModeMock, cfg.ChannelMode)
}

func TestFromEnvPicksOpenAIWhenKeyPresent(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AI_BACKEND", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, AIBackendOpenAI, cfg.AI.Backend)
}

func TestFromEnvReportsMalformedValues(t *testing.T) {
	t.Setenv("QUEUE_RETRY_LIMIT", "three")
	t.Setenv("QUEUE_EXPIRE_AFTER", "a day")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_RETRY_LIMIT")
	assert.Contains(t, err.Error(), "QUEUE_EXPIRE_AFTER")
}

func TestValidateByRole(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AI_BACKEND", "openai")

	cfg, err := FromEnv()
	require.NoError(t, err)

	err = cfg.Validate(RoleWorker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.AI.Backend = AIBackendTemplate
	assert.NoError(t, cfg.Validate(RoleDev))
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://x", ChannelMode: "carrier-pigeon", Queue: Queue{RetryLimit: 0}, AI: AI{Backend: "magic"}}

	err := cfg.Validate(RoleAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHANNEL_MODE")
	assert.Contains(t, err.Error(), "AI_BACKEND")
	assert.Contains(t, err.Error(), "QUEUE_RETRY_LIMIT")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
database:
  redis:
    address: localhost:6379
apis:
  genai:
    provider: http
    base_url: http://genai.local
workers:
  fill-template:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "listing-workers", cfg.App.Name)
	assert.Equal(t, 2, cfg.Consensus.Phase1Replies)
	assert.Equal(t, 5, cfg.Consensus.Phase2Replies)
	assert.Equal(t, 4, cfg.Consensus.Phase1MaxRetries)
	assert.Equal(t, 10, cfg.Consensus.Phase2MaxRetries)
	assert.Equal(t, ".99", cfg.Pricing.Suffix)
	assert.Equal(t, "listing", cfg.Database.Redis.KeyPrefix)
	assert.Equal(t, 12, cfg.Database.Redis.PoolSize)

	wc := cfg.Workers["fill-template"]
	assert.True(t, wc.Enabled)
	assert.Equal(t, 1, wc.MaxJobsActive)
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_GENAI_KEY", "secret-key")
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
database:
  redis:
    address: localhost:6379
apis:
  genai:
    provider: gemini
    api_key: ${TEST_GENAI_KEY}
pricing:
  rates:
    uk: 0.86
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.APIs.GenAI.APIKey)
	assert.InDelta(t, 0.86, cfg.Pricing.Rates["uk"], 1e-9)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing broker",
			body: "database:\n  redis:\n    address: x\n",
			want: "camunda.broker_address",
		},
		{
			name: "missing redis",
			body: "camunda:\n  broker_address: x\n",
			want: "database.redis.address",
		},
		{
			name: "unknown provider",
			body: "camunda:\n  broker_address: x\ndatabase:\n  redis:\n    address: x\napis:\n  genai:\n    provider: other\n",
			want: "not supported",
		},
		{
			name: "phase1 replies out of range",
			body: "camunda:\n  broker_address: x\ndatabase:\n  redis:\n    address: x\napis:\n  genai:\n    provider: http\n    base_url: u\nconsensus:\n  phase1_replies: 4\n",
			want: "phase1_replies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
postgres:
  dsn: postgres://app@db:5432/venwatch
bus:
  type: stub
  max_retries: 3
llm:
  base_url: https://llm.internal
  default_tier: fast
  timeout_secs: 10
adapters:
  gdelt:
    enabled: true
    rps: 2
    burst: 4
  fred:
    enabled: true
    rps: 1
    burst: 1
    api_key_env: FRED_API_KEY
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db:5432/venwatch", cfg.Postgres.DSN)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr, "unset section keeps defaults")
	assert.Equal(t, "stub", cfg.Bus.Type)
	assert.Equal(t, 3, cfg.Bus.MaxRetries)
	assert.Equal(t, 16, cfg.Bus.Prefetch, "unset field keeps default")
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout())
	assert.Len(t, cfg.Adapters, 2)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://env@db/venwatch")
	t.Setenv("FRED_API_KEY", "secret")

	path := writeConfig(t, `
adapters:
  fred:
    enabled: true
    rps: 1
    burst: 1
    api_key_env: FRED_API_KEY
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@db/venwatch", cfg.Postgres.DSN)
	assert.Equal(t, "secret", cfg.Adapters["fred"].APIKey())
	assert.Equal(t, "", AdapterConf{}.APIKey())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad bus type": "bus:\n  type: kafka\n",
		"bad tier":     "llm:\n  default_tier: turbo\n",
		"zero rps":     "adapters:\n  gdelt:\n    enabled: true\n    burst: 1\n",
		"malformed":    "adapters: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "fast", cfg.LLM.DefaultTier, "cheapest tier unless configured up")
}

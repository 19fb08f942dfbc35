package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "router.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileConfig_ParsesProviderTable(t *testing.T) {
	path := writeTempConfig(t, `
[providers.local-llama]
kind = "compat"
endpoint = "http://localhost:11434/v1"
self_hosted = true
models = ["llama3"]
capabilities = ["chat", "self_hosted"]
max_concurrent = 4

[policy]
default = "balanced"
[policy.weights]
latency = 0.3
cost = 0.4
reliability = 0.3

[ratelimit]
per_minute = 60
per_hour = 1000
per_day = 10000
burst = 5

[breaker]
failure_threshold = 5
recovery_timeout_ms = 30000

[health]
ttl_seconds = 10
`)
	fc, err := LoadFileConfig(path)
	require.NoError(t, err)
	require.Contains(t, fc.Providers, "local-llama")
	assert.Equal(t, "compat", fc.Providers["local-llama"].Kind)
	assert.True(t, fc.Providers["local-llama"].SelfHosted)
	assert.Equal(t, 60, fc.RateLimit.PerMinute)
	assert.Equal(t, 10, fc.Health.TTLSeconds)
}

func TestToDescriptor_MissingKindIsRejected(t *testing.T) {
	_, err := toDescriptor("broken", FileProviderConfig{})
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestToDescriptor_MissingAPIKeyEnvIsRejectedUnlessSelfHosted(t *testing.T) {
	_, err := toDescriptor("needs-key", FileProviderConfig{Kind: "openai", APIKeyEnv: "LLMROUTER_TEST_UNSET_KEY"})
	require.Error(t, err)

	desc, err := toDescriptor("local", FileProviderConfig{Kind: "compat", APIKeyEnv: "LLMROUTER_TEST_UNSET_KEY", SelfHosted: true})
	require.NoError(t, err)
	assert.True(t, desc.SelfHosted)
}

func TestApplyEnvOverrides_DisablesProvider(t *testing.T) {
	t.Setenv("LOCAL_ENABLED", "0")
	fc := &FileConfig{Providers: map[string]FileProviderConfig{
		"local": {Kind: "compat", Status: "active"},
	}}
	applyEnvOverrides(fc)
	assert.Equal(t, string(StatusDisabled), fc.Providers["local"].Status)
}

func TestApplyEnvOverrides_LeavesUnsetProvidersAlone(t *testing.T) {
	fc := &FileConfig{Providers: map[string]FileProviderConfig{
		"other": {Kind: "compat", Status: "active"},
	}}
	applyEnvOverrides(fc)
	assert.Equal(t, "active", fc.Providers["other"].Status)
}

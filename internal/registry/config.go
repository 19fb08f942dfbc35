package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/entrepeneur4lyf/llmrouter/internal/breaker"
	"github.com/entrepeneur4lyf/llmrouter/internal/providers"
)

// ConfigError reports a Load failure tied to a specific provider or
// top-level key, mirroring the structured-error convention used across the
// core (see router.RouterError).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("registry: config error at %s: %s", e.Field, e.Reason)
}

// FileProviderConfig is the `[providers.<id>]` TOML table shape, grounded on
// a plain TOML DecodeFile pattern narrowed to the keys
// recognizes.
type FileProviderConfig struct {
	Kind               string   `toml:"kind"`
	Endpoint           string   `toml:"endpoint"`
	Region             string   `toml:"region"`
	APIKeyEnv          string   `toml:"api_key_env"`
	Models             []string `toml:"models"`
	Capabilities       []string `toml:"capabilities"`
	DefaultTimeoutMs   int      `toml:"default_timeout_ms"`
	MaxConcurrent      int      `toml:"max_concurrent"`
	CostPerTokenInput  float64  `toml:"cost_per_token_input"`
	CostPerTokenOutput float64  `toml:"cost_per_token_output"`
	Status             string   `toml:"status"`
	SelfHosted         bool     `toml:"self_hosted"`
}

type FilePolicyWeights struct {
	Latency     float64 `toml:"latency"`
	Cost        float64 `toml:"cost"`
	Reliability float64 `toml:"reliability"`
}

type FilePolicyConfig struct {
	Default string            `toml:"default"`
	Weights FilePolicyWeights `toml:"weights"`
}

type FileRateLimitConfig struct {
	PerMinute int `toml:"per_minute"`
	PerHour   int `toml:"per_hour"`
	PerDay    int `toml:"per_day"`
	Burst     int `toml:"burst"`
}

type FileBreakerConfig struct {
	FailureThreshold         int `toml:"failure_threshold"`
	RecoveryTimeoutMs        int `toml:"recovery_timeout_ms"`
	HalfOpenSuccessThreshold int `toml:"half_open_success_threshold"`
}

type FileHealthConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
}

// FileConfig is the top-level declarative configuration document: a table
// of providers keyed by id, plus policy/ratelimit/breaker/health settings.
type FileConfig struct {
	Providers map[string]FileProviderConfig `toml:"providers"`
	Policy    FilePolicyConfig              `toml:"policy"`
	RateLimit FileRateLimitConfig           `toml:"ratelimit"`
	Breaker   FileBreakerConfig             `toml:"breaker"`
	Health    FileHealthConfig              `toml:"health"`
}

// LoadFileConfig decodes path as TOML into a FileConfig.
func LoadFileConfig(path string) (*FileConfig, error) {
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("registry: decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnvOverrides layers environment-variable overrides onto a decoded
// FileConfig via a scoped viper instance (never the package-level global):
// <PROVIDER_ID>_ENABLED=0 force-disables a provider without editing config.
func applyEnvOverrides(cfg *FileConfig) {
	v := viper.New()
	v.AutomaticEnv()

	for id, pc := range cfg.Providers {
		envKey := strings.ToUpper(id) + "_ENABLED"
		v.BindEnv(envKey)
		if v.IsSet(envKey) && !v.GetBool(envKey) {
			pc.Status = string(StatusDisabled)
			cfg.Providers[id] = pc
		}
	}
}

// toDescriptor converts one decoded provider table plus global defaults
// into an immutable ProviderDescriptor, resolving api_key_env and failing
// with ConfigError on missing required fields. On error it returns an empty
// descriptor; Load then installs the provider as status=disabled so the
// registry stays partially up: a single bad provider entry does not block
// the rest.
func toDescriptor(id string, pc FileProviderConfig) (ProviderDescriptor, error) {
	kind := providers.Kind(pc.Kind)
	if kind == "" {
		return ProviderDescriptor{}, &ConfigError{Field: "providers." + id + ".kind", Reason: "missing"}
	}

	apiKey := ""
	if pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
		if apiKey == "" && !pc.SelfHosted {
			return ProviderDescriptor{}, &ConfigError{
				Field:  "providers." + id + ".api_key_env",
				Reason: fmt.Sprintf("env var %s is unset", pc.APIKeyEnv),
			}
		}
	}

	timeout := time.Duration(pc.DefaultTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrent := pc.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	status := StatusActive
	if pc.Status != "" {
		status = Status(pc.Status)
	}

	caps := make(map[string]struct{}, len(pc.Capabilities))
	for _, c := range pc.Capabilities {
		caps[c] = struct{}{}
	}

	return ProviderDescriptor{
		ID:                 id,
		Endpoint:           pc.Endpoint,
		Kind:               kind,
		Models:             pc.Models,
		Capabilities:       caps,
		CostInputPer1K:     pc.CostPerTokenInput,
		CostOutputPer1K:    pc.CostPerTokenOutput,
		DefaultTimeout:     timeout,
		MaxConcurrent:      maxConcurrent,
		LatencyThresholdMs: 2000,
		Status:             status,
		SelfHosted:         pc.SelfHosted,
	}, nil
}

func breakerConfigFrom(fc FileBreakerConfig) breaker.Config {
	cfg := breaker.Config{
		FailureThreshold:         fc.FailureThreshold,
		HalfOpenSuccessThreshold: fc.HalfOpenSuccessThreshold,
	}
	if fc.RecoveryTimeoutMs > 0 {
		cfg.RecoveryTimeout = time.Duration(fc.RecoveryTimeoutMs) * time.Millisecond
	}
	return cfg
}

func healthTTL(fc FileHealthConfig) time.Duration {
	if fc.TTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(fc.TTLSeconds) * time.Second
}

// resolveSpec turns a decoded provider table into a providers.Spec for
// Build. The api key is re-read from the environment rather than threaded
// through ProviderDescriptor, so descriptors stay free of live secrets.
func resolveSpec(pc FileProviderConfig) providers.Spec {
	apiKey := ""
	if pc.APIKeyEnv != "" {
		apiKey = os.Getenv(pc.APIKeyEnv)
	}
	return providers.Spec{
		Kind:       providers.Kind(pc.Kind),
		APIKey:     apiKey,
		BaseURL:    pc.Endpoint,
		Region:     pc.Region,
		SelfHosted: pc.SelfHosted,
		Models:     pc.Models,
	}
}

// Package config provides configuration loading, defaults, and validation for
// TaxFlow.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all settings.
const envPrefix = "TAXFLOW"

// newViper builds a Viper instance with YAML file type, TAXFLOW_ env prefix and
// a "." → "_" key replacer so "database.host" resolves TAXFLOW_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers the keys that may arrive from the environment alone.
// AutomaticEnv only consults the environment for keys viper already knows, so
// file-less deployments need them bound explicitly.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port", "server.mode",
		"database.host", "database.port", "database.user", "database.password", "database.db_name", "database.ssl_mode", "database.auto_migrate",
		"redis.addr", "redis.password", "redis.db",
		"kafka.brokers", "kafka.group_id",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.use_ssl",
		"log.level", "log.format",
		"auth.enabled", "auth.jwt_secret", "auth.issuer", "auth.audience", "auth.jwks_url", "auth.rbac",
		"reasoning.enabled", "reasoning.base_url", "reasoning.api_key", "reasoning.timeout",
		"plausibility.rules_file", "deadlines.definitions_file",
		"metrics.enabled",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges TAXFLOW_* overrides, applies
// defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from TAXFLOW_* environment variables only.
//
//	TAXFLOW_<SECTION>_<FIELD>   e.g.  TAXFLOW_DATABASE_HOST, TAXFLOW_AUTH_JWT_SECRET
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when set and falls back to the environment.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the re-parsed Config on
// every write. Invalid revisions are reported to onError and otherwise
// ignored. Only hot-reload-safe settings (log level, thresholds) should be
// applied by the callback.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on any error. main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

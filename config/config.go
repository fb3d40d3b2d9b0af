// Package config loads protectctl settings from a YAML file and PROTECT_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/protect-bridge/bridge"
	"github.com/wippyai/protect-bridge/engine"
	"github.com/wippyai/protect-bridge/errors"
)

// EnvPrefix prefixes environment overrides, e.g. PROTECT_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "PROTECT"

// Config is the effective configuration.
type Config struct {
	Retry     Retry     `mapstructure:"retry" yaml:"retry"`
	Engine    Engine    `mapstructure:"engine" yaml:"engine"`
	Protector Protector `mapstructure:"protector" yaml:"protector"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	Metrics   Metrics   `mapstructure:"metrics" yaml:"metrics"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

type Engine struct {
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages" yaml:"memory_limit_pages"`
	MaxAttachments   int64  `mapstructure:"max_attachments" yaml:"max_attachments"`
}

type Protector struct {
	Method    string `mapstructure:"method" yaml:"method"`
	Signature string `mapstructure:"signature" yaml:"signature"`
}

type Log struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

type Metrics struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	retry := bridge.DefaultRetryPolicy()
	return Config{
		Retry: Retry{
			MaxAttempts: retry.MaxAttempts,
			Backoff:     retry.Backoff,
		},
		Engine: Engine{
			MaxAttachments: engine.DefaultMaxAttachments,
		},
		Protector: Protector{
			Method:    bridge.DefaultMethod,
			Signature: bridge.DefaultSignature,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers every key with v so environment overrides apply.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
	v.SetDefault("engine.memory_limit_pages", d.Engine.MemoryLimitPages)
	v.SetDefault("engine.max_attachments", d.Engine.MaxAttachments)
	v.SetDefault("protector.method", d.Protector.Method)
	v.SetDefault("protector.signature", d.Protector.Signature)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads path (if not empty) and the environment into v and returns the
// validated result.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Config("read "+path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Config("decode", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the bridge cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Retry.MaxAttempts < 1:
		return errors.Config(fmt.Sprintf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts), nil)
	case c.Retry.Backoff < 0:
		return errors.Config("retry.backoff must not be negative", nil)
	case c.Engine.MaxAttachments < 0:
		return errors.Config("engine.max_attachments must not be negative", nil)
	case c.Protector.Method == "":
		return errors.Config("protector.method must not be empty", nil)
	case c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0:
		return errors.Config("log rotation limits must not be negative", nil)
	}

	if _, err := engine.ParseSignature(c.Protector.Signature); err != nil {
		return errors.Config("protector.signature", err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Config("log.level", err)
	}
	return nil
}

// RetryPolicy returns the bridge retry policy.
func (c *Config) RetryPolicy() bridge.RetryPolicy {
	return bridge.RetryPolicy{MaxAttempts: c.Retry.MaxAttempts, Backoff: c.Retry.Backoff}
}

// EngineConfig returns the VM configuration.
func (c *Config) EngineConfig() *engine.Config {
	return &engine.Config{
		MemoryLimitPages: c.Engine.MemoryLimitPages,
		MaxAttachments:   c.Engine.MaxAttachments,
	}
}

// YAML renders c as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. GUILDBOARD_AUTH_JWT_SECRET.
const EnvPrefix = "GUILDBOARD"

// FileName is the optional settings file looked up in the workspace.
const FileName = "guildboard"

// Config models guildboard.yml plus environment and flag overrides.
type Config struct {
	Workspace string `mapstructure:"workspace"`
	Server    struct {
		Addr     string `mapstructure:"addr"`
		BasePath string `mapstructure:"base_path"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	Scheduler struct {
		AllowUnauthenticated bool `mapstructure:"allow_unauthenticated"`
	} `mapstructure:"scheduler"`
	Batch struct {
		Concurrency         int           `mapstructure:"concurrency"`
		SequentialThreshold int           `mapstructure:"sequential_threshold"`
		TenantTimeout       time.Duration `mapstructure:"tenant_timeout"`
		RunTimeout          time.Duration `mapstructure:"run_timeout"`
	} `mapstructure:"batch"`
	Achievements struct {
		StickyUnlocks bool `mapstructure:"sticky_unlocks"`
	} `mapstructure:"achievements"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// SetDefaults registers every key so environment overrides resolve through
// AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", ".")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/v0")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("scheduler.allow_unauthenticated", false)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.sequential_threshold", 1)
	v.SetDefault("batch.tenant_timeout", 30*time.Second)
	v.SetDefault("batch.run_timeout", 10*time.Minute)
	v.SetDefault("achievements.sticky_unlocks", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// BindEnv wires GUILDBOARD_* variables onto dotted keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the settings file into v and decodes the merged result. An
// explicit "config" path must exist; the workspace guildboard.yml is optional.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return Decode(v)
	}
	workspace := v.GetString("workspace")
	if workspace == "" {
		workspace = "."
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(workspace)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read %s: %w", Path(workspace), err)
		}
	}
	return Decode(v)
}

// Decode validates the settings already present in v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("config.batch.concurrency must be at least 1")
	}
	if c.Batch.SequentialThreshold < 0 {
		return fmt.Errorf("config.batch.sequential_threshold must not be negative")
	}
	if c.Batch.TenantTimeout < 0 || c.Batch.RunTimeout < 0 {
		return fmt.Errorf("config.batch timeouts must not be negative")
	}
	if c.Batch.TenantTimeout > 0 && c.Batch.RunTimeout > 0 && c.Batch.TenantTimeout > c.Batch.RunTimeout {
		return fmt.Errorf("config.batch.tenant_timeout exceeds config.batch.run_timeout")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// RequireJWTSecret reports a usable error for commands that verify bearer tokens.
func (c *Config) RequireJWTSecret() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required for bearer auth", EnvPrefix)
	}
	return nil
}

// Path returns the settings file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName+".yml")
}

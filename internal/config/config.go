// Package config loads the promptpilot configuration from file and
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the global promptpilot configuration.
type Config struct {
	// PolicyPath is the active policy file. Empty means the built-in
	// safe default policy.
	PolicyPath string `mapstructure:"policy_path" validate:"omitempty,filepath"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// SessionTag is attached to every session this instance handles,
	// for session_tag policy criteria.
	SessionTag string `mapstructure:"session_tag"`

	Trace   TraceConfig   `mapstructure:"trace"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Guards  GuardsConfig  `mapstructure:"guards"`

	// Branch and CIStatus describe the working copy for risk
	// classification; both may be empty when unknown.
	Branch   string `mapstructure:"branch"`
	CIStatus string `mapstructure:"ci_status" validate:"omitempty,oneof=passing failing unknown"`
}

// TraceConfig controls the decision trace.
type TraceConfig struct {
	Path        string `mapstructure:"path"`
	Chained     bool   `mapstructure:"chained"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxArchives int    `mapstructure:"max_archives" validate:"gte=0"`
}

// HistoryConfig controls the state-transition history.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// GuardsConfig adds config-driven reply guards on top of the built-in
// ones.
type GuardsConfig struct {
	// DenySubstrings blocks any auto-reply whose value contains one of
	// these substrings, case-insensitively.
	DenySubstrings []string `mapstructure:"deny_substrings"`
}

func dataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "promptpilot")
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "promptpilot", "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PROMPTPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("policy_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_tag", "")
	v.SetDefault("trace.path", filepath.Join(dataDir(), "decisions.jsonl"))
	v.SetDefault("trace.chained", false)
	v.SetDefault("trace.max_size_mb", 100)
	v.SetDefault("trace.max_archives", 10)
	v.SetDefault("history.path", filepath.Join(dataDir(), "transitions.jsonl"))
	v.SetDefault("metrics.addr", "")
	v.SetDefault("guards.deny_substrings", []string{})
	v.SetDefault("branch", "")
	v.SetDefault("ci_status", "")
	return v
}

// Load reads the config from the standard location. A missing file
// yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path, layering defaults,
// file, and PROMPTPILOT_* environment variables.
func LoadFrom(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandHome()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field constraints, reporting every violation with
// its config key.
func (c *Config) Validate() error {
	v := validator.New()
	// Report violations by config key, not Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s: fails %q", key, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func (c *Config) expandHome() {
	for _, p := range []*string{&c.PolicyPath, &c.Trace.Path, &c.History.Path} {
		if strings.HasPrefix(*p, "~/") {
			home, _ := os.UserHomeDir()
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}

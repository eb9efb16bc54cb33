// Package config loads and persists jmapctl configuration.
//
// Configuration lives in ~/.config/jmapctl/config.yaml and can be
// overridden per key with JMAPCTL_* environment variables (e.g.
// JMAPCTL_SERVER, JMAPCTL_IDENTITY).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teemow/jmapctl/internal/instrumentation"
)

// Config is the persisted jmapctl configuration.
type Config struct {
	// Server is the mail server origin, e.g. https://mail.example.com.
	Server string `mapstructure:"server"`

	// Identity is the login identity, usually the mail address.
	Identity string `mapstructure:"identity"`

	// ClientID is the OAuth client id used for device-flow login and
	// token refresh.
	ClientID string `mapstructure:"client_id"`

	// Scopes requested during device-flow login.
	Scopes []string `mapstructure:"scopes"`

	// AuthMode selects "oauth" (default) or "basic".
	AuthMode string `mapstructure:"auth_mode"`

	// TokenEndpoint caches the discovered OAuth token endpoint so later
	// refreshes skip discovery. Written by login.
	TokenEndpoint string `mapstructure:"token_endpoint"`

	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TelemetryConfig mirrors the instrumentation settings in the config file.
type TelemetryConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	MetricsExporter string  `mapstructure:"metrics_exporter"`
	TracingExporter string  `mapstructure:"tracing_exporter"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
	MetricsAddr     string  `mapstructure:"metrics_addr"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "jmapctl.yaml")
	}
	return filepath.Join(home, ".config", "jmapctl", "config.yaml")
}

func defaults() *Config {
	return &Config{
		ClientID: "jmapctl",
		Scopes:   []string{"openid", "offline_access", "mail"},
		AuthMode: "oauth",
		Telemetry: TelemetryConfig{
			MetricsExporter: "none",
			TracingExporter: "none",
			SamplingRate:    0.1,
			MetricsAddr:     ":9090",
		},
	}
}

// Load reads the configuration from path, applying defaults and JMAPCTL_*
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("jmapctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("client_id", "jmapctl")
	v.SetDefault("scopes", []string{"openid", "offline_access", "mail"})
	v.SetDefault("auth_mode", "oauth")
	v.SetDefault("telemetry.metrics_exporter", "none")
	v.SetDefault("telemetry.tracing_exporter", "none")
	v.SetDefault("telemetry.sampling_rate", 0.1)
	v.SetDefault("telemetry.metrics_addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return applyEnv(v, defaults()), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return applyEnv(v, defaults()), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv folds environment overrides into cfg when no file was read.
// Viper only surfaces env values through Get, not Unmarshal, for keys it
// has never seen in a file.
func applyEnv(v *viper.Viper, cfg *Config) *Config {
	if s := v.GetString("server"); s != "" {
		cfg.Server = s
	}
	if s := v.GetString("identity"); s != "" {
		cfg.Identity = s
	}
	if s := v.GetString("client_id"); s != "" {
		cfg.ClientID = s
	}
	if s := v.GetString("auth_mode"); s != "" {
		cfg.AuthMode = s
	}
	if s := v.GetString("token_endpoint"); s != "" {
		cfg.TokenEndpoint = s
	}
	if s := v.GetString("scopes"); s != "" {
		cfg.Scopes = strings.Fields(s)
	}
	if s := v.GetString("telemetry.enabled"); s != "" {
		cfg.Telemetry.Enabled = v.GetBool("telemetry.enabled")
	}
	if s := v.GetString("telemetry.metrics_exporter"); s != "" {
		cfg.Telemetry.MetricsExporter = s
	}
	if s := v.GetString("telemetry.tracing_exporter"); s != "" {
		cfg.Telemetry.TracingExporter = s
	}
	if s := v.GetString("telemetry.sampling_rate"); s != "" {
		cfg.Telemetry.SamplingRate = v.GetFloat64("telemetry.sampling_rate")
	}
	if s := v.GetString("telemetry.metrics_addr"); s != "" {
		cfg.Telemetry.MetricsAddr = s
	}
	return cfg
}

// Save writes cfg to a YAML file at path, creating parent directories.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("identity", cfg.Identity)
	v.Set("client_id", cfg.ClientID)
	v.Set("scopes", cfg.Scopes)
	v.Set("auth_mode", cfg.AuthMode)
	v.Set("token_endpoint", cfg.TokenEndpoint)
	v.Set("telemetry", map[string]any{
		"enabled":          cfg.Telemetry.Enabled,
		"metrics_exporter": cfg.Telemetry.MetricsExporter,
		"tracing_exporter": cfg.Telemetry.TracingExporter,
		"sampling_rate":    cfg.Telemetry.SamplingRate,
		"metrics_addr":     cfg.Telemetry.MetricsAddr,
	})

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Instrumentation converts the telemetry section into the runtime config.
func (c *Config) Instrumentation(version string) instrumentation.Config {
	ic := instrumentation.DefaultConfig()
	ic.Enabled = c.Telemetry.Enabled
	ic.ServiceVersion = version
	if c.Telemetry.MetricsExporter != "" {
		ic.MetricsExporter = instrumentation.Exporter(c.Telemetry.MetricsExporter)
	}
	if c.Telemetry.TracingExporter != "" {
		ic.TracingExporter = instrumentation.Exporter(c.Telemetry.TracingExporter)
	}
	if c.Telemetry.SamplingRate > 0 {
		ic.TraceSamplingRate = c.Telemetry.SamplingRate
	}
	if c.Telemetry.MetricsAddr != "" {
		ic.MetricsAddr = c.Telemetry.MetricsAddr
	}
	return ic
}

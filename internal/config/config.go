package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "30s" or "2h" into a time.Duration.
// Plain integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr   string   `yaml:"listen_addr"`
	BaseURL      string   `yaml:"base_url"` // Public URL used in emails and OAuth callbacks
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// DatabaseConfig contains SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret string       `yaml:"jwt_secret"`
	TokenTTL  Duration     `yaml:"token_ttl"`
	Google    GoogleConfig `yaml:"google"`
}

// GoogleConfig contains Google OIDC sign-in settings
type GoogleConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IssuerURL    string `yaml:"issuer_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// MailConfig contains outbound email settings
type MailConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RelayAddr     string   `yaml:"relay_addr"` // host:port of the SMTP smarthost
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	From          string   `yaml:"from"`
	QueuePath     string   `yaml:"queue_path"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryInterval Duration `yaml:"retry_interval"`
	PollInterval  Duration `yaml:"poll_interval"`
	Workers       int      `yaml:"workers"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: :9090
	Path       string `yaml:"path"`        // Default: /metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(60 * time.Second)
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/capigrid/capigrid.db"
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = Duration(24 * time.Hour)
	}
	if c.Auth.Google.Enabled && c.Auth.Google.IssuerURL == "" {
		c.Auth.Google.IssuerURL = "https://accounts.google.com"
	}

	if c.Mail.QueuePath == "" {
		c.Mail.QueuePath = "/var/lib/capigrid/mailq.db"
	}
	if c.Mail.MaxRetries == 0 {
		c.Mail.MaxRetries = 5
	}
	if c.Mail.RetryInterval == 0 {
		c.Mail.RetryInterval = Duration(5 * time.Minute)
	}
	if c.Mail.PollInterval == 0 {
		c.Mail.PollInterval = Duration(10 * time.Second)
	}
	if c.Mail.Workers == 0 {
		c.Mail.Workers = 2
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}

	if c.Auth.Google.Enabled {
		if c.Auth.Google.ClientID == "" {
			return fmt.Errorf("auth.google.client_id is required when Google sign-in is enabled")
		}
		if c.Auth.Google.ClientSecret == "" {
			return fmt.Errorf("auth.google.client_secret is required when Google sign-in is enabled")
		}
		if c.Auth.Google.RedirectURL == "" {
			return fmt.Errorf("auth.google.redirect_url is required when Google sign-in is enabled")
		}
	}

	if c.Mail.Enabled {
		if c.Mail.RelayAddr == "" {
			return fmt.Errorf("mail.relay_addr is required when mail is enabled")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from is required when mail is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

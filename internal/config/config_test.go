package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9080"
  base_url: "https://capigrid.test"

database:
  path: "/tmp/capigrid-test.db"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  token_ttl: 2h

mail:
  enabled: true
  relay_addr: "smtp.test:587"
  username: "mailer"
  password: "secret"
  from: "no-reply@capigrid.test"
  max_retries: 3

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9080" {
		t.Errorf("Server.ListenAddr = %v, want :9080", cfg.Server.ListenAddr)
	}
	if cfg.Server.BaseURL != "https://capigrid.test" {
		t.Errorf("Server.BaseURL = %v, want https://capigrid.test", cfg.Server.BaseURL)
	}
	if cfg.Database.Path != "/tmp/capigrid-test.db" {
		t.Errorf("Database.Path = %v, want /tmp/capigrid-test.db", cfg.Database.Path)
	}
	if cfg.Auth.TokenTTL != Duration(2*time.Hour) {
		t.Errorf("Auth.TokenTTL = %v, want 2h", cfg.Auth.TokenTTL)
	}
	if cfg.Mail.RelayAddr != "smtp.test:587" {
		t.Errorf("Mail.RelayAddr = %v, want smtp.test:587", cfg.Mail.RelayAddr)
	}
	if cfg.Mail.MaxRetries != 3 {
		t.Errorf("Mail.MaxRetries = %v, want 3", cfg.Mail.MaxRetries)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default Server.ListenAddr = %v, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Auth.TokenTTL != Duration(24*time.Hour) {
		t.Errorf("default Auth.TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Mail.RetryInterval != Duration(5*time.Minute) {
		t.Errorf("default Mail.RetryInterval = %v, want 5m", cfg.Mail.RetryInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format = %v, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing jwt secret",
			content: `server: {listen_addr: ":8080"}`,
		},
		{
			name: "short jwt secret",
			content: `
auth:
  jwt_secret: "short"
`,
		},
		{
			name: "google without client id",
			content: `
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  google:
    enabled: true
`,
		},
		{
			name: "mail without relay",
			content: `
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
mail:
  enabled: true
  from: "no-reply@capigrid.test"
`,
		},
		{
			name: "bad log level",
			content: `
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
logging:
  level: "verbose"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

func TestLoadFromBytes_Valid(t *testing.T) {
	yaml := `
gateway:
  type: "paper"

execution:
  poll_interval_ms: 500
  chunk_timeout_sec: 10
  retry_budget: 2

journal:
  enabled: true
  path: "orderbot.db"

metrics:
  enabled: true
  port: 9090
  path: "/metrics"

logging:
  level: "debug"
  format: "json"
`

	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Gateway.Type != "paper" {
		t.Errorf("Gateway.Type = %s, want paper", cfg.Gateway.Type)
	}
	if cfg.Execution.PollIntervalMs != 500 {
		t.Errorf("PollIntervalMs = %d, want 500", cfg.Execution.PollIntervalMs)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "orderbot.db" {
		t.Errorf("Journal = %+v, want enabled with path orderbot.db", cfg.Journal)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}

	engCfg := cfg.ToEngineConfig()
	if engCfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", engCfg.PollInterval)
	}
	if engCfg.ChunkTimeout != 10*time.Second {
		t.Errorf("ChunkTimeout = %v, want 10s", engCfg.ChunkTimeout)
	}
	if engCfg.RetryBudget != 2 {
		t.Errorf("RetryBudget = %d, want 2", engCfg.RetryBudget)
	}
}

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{}`))
	if err != nil {
		t.Fatalf("Failed to load empty config: %v", err)
	}

	if cfg.Gateway.Type != "paper" {
		t.Errorf("Gateway.Type = %s, want paper default", cfg.Gateway.Type)
	}

	engCfg := cfg.ToEngineConfig()
	if engCfg.PollInterval != 1*time.Second {
		t.Errorf("PollInterval = %v, want 1s default", engCfg.PollInterval)
	}
	if cfg.GatewayTimeout() != 10*time.Second {
		t.Errorf("GatewayTimeout = %v, want 10s default", cfg.GatewayTimeout())
	}
	if cfg.RecvWindow() != 5*time.Second {
		t.Errorf("RecvWindow = %v, want 5s default", cfg.RecvWindow())
	}
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown gateway type",
			yaml: `
gateway:
  type: "kraken"
`,
			wantErr: "gateway.type",
		},
		{
			name: "binance without credentials",
			yaml: `
gateway:
  type: "binance"
`,
			wantErr: "gateway.api_key",
		},
		{
			name: "journal without path",
			yaml: `
journal:
  enabled: true
`,
			wantErr: "journal.path",
		},
		{
			name: "metrics port out of range",
			yaml: `
metrics:
  enabled: true
  port: 99999
`,
			wantErr: "metrics.port",
		},
		{
			name: "bad log level",
			yaml: `
logging:
  level: "trace"
`,
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_ORDERBOT_KEY", "key-from-env")
	os.Setenv("TEST_ORDERBOT_SECRET", "secret-from-env")
	defer os.Unsetenv("TEST_ORDERBOT_KEY")
	defer os.Unsetenv("TEST_ORDERBOT_SECRET")

	yaml := `
gateway:
  type: "binance"
  api_key: "${TEST_ORDERBOT_KEY}"
  api_secret: "${TEST_ORDERBOT_SECRET}"
`

	cfg, err := LoadFromBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Gateway.APIKey != "key-from-env" {
		t.Errorf("APIKey = %s, want key-from-env", cfg.Gateway.APIKey)
	}
	if cfg.Gateway.APISecret != "secret-from-env" {
		t.Errorf("APISecret = %s, want secret-from-env", cfg.Gateway.APISecret)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
gateway:
  type: "paper"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Gateway.Type != "paper" {
		t.Errorf("Gateway.Type = %s, want paper", cfg.Gateway.Type)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("listen:\n  port: 8080\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Phone.WorkingHoursStart != 7 || cfg.Phone.WorkingHoursEnd != 17 {
		t.Errorf("working hours = %d-%d, want 7-17", cfg.Phone.WorkingHoursStart, cfg.Phone.WorkingHoursEnd)
	}
	if len(cfg.Agents) == 0 {
		t.Error("expected default agents")
	}
	if _, ok := cfg.Providers["gemini"]; !ok {
		t.Error("expected default gemini provider")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("VW_TEST_MQTT_PASSWORD", "secret123")
	path := writeConfig(t, "mqtt:\n  password: ${VW_TEST_MQTT_PASSWORD}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestLoad_ProviderKeyFromEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, "listen:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Providers["deepseek"].APIKey; got != "sk-from-env" {
		t.Errorf("deepseek api key = %q, want %q", got, "sk-from-env")
	}
}

func TestLoad_InlineProvider(t *testing.T) {
	path := writeConfig(t, `
default_provider: local
providers:
  local:
    kind: openai
    base_url: http://localhost:11434/v1
    api_key: test-key
    model: qwen3:4b
    supports_tools: true
    timeout_sec: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	p := cfg.Providers["local"]
	if p.APIKey != "test-key" || !p.SupportsTools {
		t.Errorf("provider = %+v", p)
	}
	if p.Timeout().Seconds() != 5 {
		t.Errorf("timeout = %v, want 5s", p.Timeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default ok", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad driver", func(c *Config) { c.StorageDriver = "postgres" }, "storage_driver"},
		{"hours out of range", func(c *Config) { c.Phone.WorkingHoursEnd = 25 }, "working hours"},
		{"unknown provider kind", func(c *Config) {
			c.Providers["x"] = ProviderConfig{Kind: "claude"}
		}, "unknown kind"},
		{"openai without base url", func(c *Config) {
			c.Providers["x"] = ProviderConfig{Kind: ProviderOpenAI}
		}, "base_url"},
		{"missing default provider", func(c *Config) { c.DefaultProvider = "nope" }, "default_provider"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"carddav without url", func(c *Config) { c.CardDAV.Enabled = true }, "carddav.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKeyEnv(t *testing.T) {
	if got := APIKeyEnv("open-router"); got != "OPEN_ROUTER_API_KEY" {
		t.Errorf("APIKeyEnv = %q", got)
	}
}

func TestNewLogger_TraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "wire payload")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("log output = %q, want level=TRACE", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"TRACE":   LevelTrace,
		" debug ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

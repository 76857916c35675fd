package gateway

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speechgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
environment: production
log_level: debug
server:
  addr: ":9100"
  api_key: shared-secret
  language: ru-RU
  hints:
    - "page forty"
    - "chapter two"
vendor:
  provider: deepgram
  settings:
    api_key: dg-key
    model: nova-2
privacy:
  redact_pii: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "production" || cfg.LogLevel != "debug" {
		t.Fatalf("top-level fields wrong: %+v", cfg)
	}
	if cfg.Server.Addr != ":9100" || cfg.Server.APIKey != "shared-secret" {
		t.Fatalf("server config wrong: %+v", cfg.Server)
	}
	if cfg.Server.DefaultLanguage != "ru-RU" || len(cfg.Server.Hints) != 2 {
		t.Fatalf("recognition defaults wrong: %+v", cfg.Server)
	}
	if cfg.Vendor.Provider != "deepgram" || cfg.Vendor.Settings["api_key"] != "dg-key" {
		t.Fatalf("vendor config wrong: %+v", cfg.Vendor)
	}
	if cfg.Privacy.RedactPII {
		t.Fatalf("explicit redact_pii false ignored")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  api_key: k
vendor:
  provider: mock
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("default addr wrong: %q", cfg.Server.Addr)
	}
	if cfg.Server.StreamPath != "/v1/speech/stt/stream" {
		t.Fatalf("default stream path wrong: %q", cfg.Server.StreamPath)
	}
	if cfg.Server.InitialSilenceMS != 4000 || cfg.Server.EndSilenceMS != 800 {
		t.Fatalf("default endpointing wrong: %+v", cfg.Server)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("default logging wrong: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("redaction should default on")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestBuildFactoryDeepgram(t *testing.T) {
	factory, err := BuildFactory(VendorConfig{
		Provider: "deepgram",
		Settings: map[string]any{"api_key": "dg-key", "model": "nova-2"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if factory == nil {
		t.Fatalf("nil factory")
	}
}

func TestBuildFactoryDefaultsToDeepgram(t *testing.T) {
	_, err := BuildFactory(VendorConfig{Settings: map[string]any{"api_key": "dg-key"}})
	if err != nil {
		t.Fatalf("empty provider should default to deepgram: %v", err)
	}
}

func TestBuildFactoryDeepgramRequiresKey(t *testing.T) {
	_, err := BuildFactory(VendorConfig{Provider: "deepgram"})
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestBuildFactoryRejectsTypo(t *testing.T) {
	_, err := BuildFactory(VendorConfig{
		Provider: "deepgram",
		Settings: map[string]any{"api_key": "k", "modle": "nova-2"},
	})
	if err == nil || !strings.Contains(err.Error(), "modle") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestBuildFactoryMock(t *testing.T) {
	factory, err := BuildFactory(VendorConfig{
		Provider: "mock",
		Settings: map[string]any{"transcript": "scripted", "auto_final_bytes": 320},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if factory == nil {
		t.Fatalf("nil factory")
	}
}

func TestBuildFactoryUnknownProvider(t *testing.T) {
	_, err := BuildFactory(VendorConfig{Provider: "azure"})
	if err == nil || !strings.Contains(err.Error(), "azure") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

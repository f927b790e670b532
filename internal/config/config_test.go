package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RYADOM_BOT_TOKEN", "BOT_TOKEN", "RYADOM_API_KEY", "ANTHROPIC_API_KEY",
		"RYADOM_BASE_URL", "ANTHROPIC_BASE_URL", "RYADOM_MODEL", "RYADOM_MODEL_FAST",
		"RYADOM_DB_PATH", "RYADOM_ADMIN_IDS", "RYADOM_FREE_MESSAGES_PER_DAY",
		"RYADOM_HEALTH_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Claude.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Claude.Model, DefaultModel)
	}
	if cfg.Claude.ModelFast != DefaultModelFast {
		t.Errorf("modelFast = %q, want %q", cfg.Claude.ModelFast, DefaultModelFast)
	}
	if cfg.Limits.FreeMessagesPerDay != DefaultFreeMessagesPerDay {
		t.Errorf("free limit = %d, want %d", cfg.Limits.FreeMessagesPerDay, DefaultFreeMessagesPerDay)
	}
	if !cfg.Health.Enabled || cfg.Health.Port != DefaultHealthPort {
		t.Errorf("health defaults wrong: %+v", cfg.Health)
	}
	if !cfg.Checkin.Enabled || cfg.Checkin.MinInactiveDays != DefaultCheckinMinInactiveDays {
		t.Errorf("checkin defaults wrong: %+v", cfg.Checkin)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Claude.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Claude.Model)
	}
	if cfg.Telegram.Token != "" {
		t.Errorf("token should be empty, got %q", cfg.Telegram.Token)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnvOverrides(t)

	cfgDir := filepath.Join(tmpDir, ".ryadom")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	testCfg := map[string]any{
		"telegram": map[string]any{"token": "123:abc", "adminChatIds": []int64{7, 8}},
		"claude":   map[string]any{"apiKey": "sk-test", "maxTokens": 800},
		"limits":   map[string]any{"freeMessagesPerDay": 5},
	}
	data, _ := json.Marshal(testCfg)
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminChatIDs) != 2 {
		t.Errorf("admin ids = %v", cfg.Telegram.AdminChatIDs)
	}
	if cfg.Claude.MaxTokens != 800 {
		t.Errorf("maxTokens = %d", cfg.Claude.MaxTokens)
	}
	if cfg.Limits.FreeMessagesPerDay != 5 {
		t.Errorf("free limit = %d", cfg.Limits.FreeMessagesPerDay)
	}
	// Fields missing from the file keep their defaults.
	if cfg.Claude.Model != DefaultModel {
		t.Errorf("model = %q, want default", cfg.Claude.Model)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnvOverrides(t)
	t.Setenv("RYADOM_BOT_TOKEN", "999:env")
	t.Setenv("RYADOM_API_KEY", "sk-env")
	t.Setenv("RYADOM_ADMIN_IDS", "1, 2,notanid,3")
	t.Setenv("RYADOM_FREE_MESSAGES_PER_DAY", "25")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "999:env" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Claude.APIKey != "sk-env" {
		t.Errorf("apiKey = %q", cfg.Claude.APIKey)
	}
	if len(cfg.Telegram.AdminChatIDs) != 3 || cfg.Telegram.AdminChatIDs[2] != 3 {
		t.Errorf("admin ids = %v", cfg.Telegram.AdminChatIDs)
	}
	if cfg.Limits.FreeMessagesPerDay != 25 {
		t.Errorf("free limit = %d", cfg.Limits.FreeMessagesPerDay)
	}
}

func TestDBPathDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := DefaultConfig()
	want := filepath.Join(ConfigDir(), "data", "ryadom.db")
	if got := cfg.DBPath(); got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}
	cfg.Store.DBPath = "/var/lib/ryadom/app.db"
	if got := cfg.DBPath(); got != "/var/lib/ryadom/app.db" {
		t.Errorf("explicit DBPath = %q", got)
	}
}

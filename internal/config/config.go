package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel          = "claude-sonnet-4-20250514"
	DefaultModelFast      = "claude-haiku-4-20250514"
	DefaultMaxTokens      = 500
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 30

	DefaultFreeMessagesPerDay    = 10
	DefaultBasicMessagesPerDay   = 100
	DefaultPremiumMessagesPerDay = 1000

	DefaultHealthHost = "0.0.0.0"
	DefaultHealthPort = 8080

	DefaultCheckinMinInactiveDays = 3
	DefaultCheckinBatchSize       = 20
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Claude   ClaudeConfig   `json:"claude"`
	Store    StoreConfig    `json:"store"`
	Limits   LimitsConfig   `json:"limits"`
	Health   HealthConfig   `json:"health"`
	Checkin  CheckinConfig  `json:"checkin"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AdminChatIDs []int64 `json:"adminChatIds,omitempty"`
	Proxy        string  `json:"proxy,omitempty"`
}

type ClaudeConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model"`
	ModelFast      string `json:"modelFast"`
	MaxTokens      int    `json:"maxTokens"`
	MaxRetries     int    `json:"maxRetries"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type LimitsConfig struct {
	FreeMessagesPerDay    int `json:"freeMessagesPerDay"`
	BasicMessagesPerDay   int `json:"basicMessagesPerDay"`
	PremiumMessagesPerDay int `json:"premiumMessagesPerDay"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type CheckinConfig struct {
	Enabled         bool `json:"enabled"`
	MinInactiveDays int  `json:"minInactiveDays"`
	BatchSize       int  `json:"batchSize"`
}

func DefaultConfig() *Config {
	return &Config{
		Claude: ClaudeConfig{
			Model:          DefaultModel,
			ModelFast:      DefaultModelFast,
			MaxTokens:      DefaultMaxTokens,
			MaxRetries:     DefaultMaxRetries,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Limits: LimitsConfig{
			FreeMessagesPerDay:    DefaultFreeMessagesPerDay,
			BasicMessagesPerDay:   DefaultBasicMessagesPerDay,
			PremiumMessagesPerDay: DefaultPremiumMessagesPerDay,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    DefaultHealthHost,
			Port:    DefaultHealthPort,
		},
		Checkin: CheckinConfig{
			Enabled:         true,
			MinInactiveDays: DefaultCheckinMinInactiveDays,
			BatchSize:       DefaultCheckinBatchSize,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".ryadom")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func (c *Config) DBPath() string {
	if p := strings.TrimSpace(c.Store.DBPath); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "data", "ryadom.db")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("RYADOM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if token := os.Getenv("BOT_TOKEN"); token != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = token
	}
	if key := os.Getenv("RYADOM_API_KEY"); key != "" {
		cfg.Claude.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = key
	}
	if url := os.Getenv("RYADOM_BASE_URL"); url != "" {
		cfg.Claude.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Claude.BaseURL == "" {
		cfg.Claude.BaseURL = url
	}
	if model := os.Getenv("RYADOM_MODEL"); model != "" {
		cfg.Claude.Model = model
	}
	if model := os.Getenv("RYADOM_MODEL_FAST"); model != "" {
		cfg.Claude.ModelFast = model
	}
	if dbPath := os.Getenv("RYADOM_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if admins := os.Getenv("RYADOM_ADMIN_IDS"); admins != "" {
		cfg.Telegram.AdminChatIDs = parseAdminIDs(admins)
	}
	if v := os.Getenv("RYADOM_FREE_MESSAGES_PER_DAY"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Limits.FreeMessagesPerDay = parsed
		}
	}
	if v := os.Getenv("RYADOM_HEALTH_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Health.Port = parsed
		}
	}

	if cfg.Claude.Model == "" {
		cfg.Claude.Model = DefaultModel
	}
	if cfg.Claude.ModelFast == "" {
		cfg.Claude.ModelFast = DefaultModelFast
	}
	if cfg.Claude.MaxTokens <= 0 {
		cfg.Claude.MaxTokens = DefaultMaxTokens
	}
	if cfg.Claude.MaxRetries <= 0 {
		cfg.Claude.MaxRetries = DefaultMaxRetries
	}
	if cfg.Claude.TimeoutSeconds <= 0 {
		cfg.Claude.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Limits.FreeMessagesPerDay <= 0 {
		cfg.Limits.FreeMessagesPerDay = DefaultFreeMessagesPerDay
	}
	if cfg.Limits.BasicMessagesPerDay <= 0 {
		cfg.Limits.BasicMessagesPerDay = DefaultBasicMessagesPerDay
	}
	if cfg.Limits.PremiumMessagesPerDay <= 0 {
		cfg.Limits.PremiumMessagesPerDay = DefaultPremiumMessagesPerDay
	}
	if cfg.Checkin.MinInactiveDays <= 0 {
		cfg.Checkin.MinInactiveDays = DefaultCheckinMinInactiveDays
	}
	if cfg.Checkin.BatchSize <= 0 {
		cfg.Checkin.BatchSize = DefaultCheckinBatchSize
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

func parseAdminIDs(s string) []int64 {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Package config loads runtime configuration. Environment variables win;
// an optional YAML file (FOREMAN_CONFIG) fills in anything not set in the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	NatsURL     string `yaml:"nats_url"`
	NatsToken   string `yaml:"nats_token"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`

	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	LateThreshold string `yaml:"late_threshold"` // HH:MM, check-in cutoff
	Timezone      string `yaml:"timezone"`
	RetentionDays int    `yaml:"retention_days"`
	LexiconPath   string `yaml:"lexicon_path"`

	DigestSchedule     string `yaml:"digest_schedule"`
	CompactionSchedule string `yaml:"compaction_schedule"`

	APIToken string `yaml:"api_token"`
}

// Load resolves configuration: defaults, then the YAML file named by
// FOREMAN_CONFIG (if set), then environment variables on top.
func Load() (Config, error) {
	cfg := Config{
		Port:               8760,
		NatsURL:            "nats://localhost:4222",
		LogLevel:           "info",
		AnthropicModel:     "claude-sonnet-4-20250514",
		LateThreshold:      "08:05",
		Timezone:           "America/Chicago",
		RetentionDays:      30,
		DigestSchedule:     "0 18 * * *",
		CompactionSchedule: "30 3 * * *",
	}

	if path := os.Getenv("FOREMAN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envInt("FOREMAN_PORT", cfg.Port)
	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.SlackBotToken = envStr("SLACK_BOT_TOKEN", cfg.SlackBotToken)
	cfg.SlackChannel = envStr("SLACK_REVIEW_CHANNEL", cfg.SlackChannel)
	cfg.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envStr("FOREMAN_MODEL", cfg.AnthropicModel)
	cfg.LateThreshold = envStr("FOREMAN_LATE_THRESHOLD", cfg.LateThreshold)
	cfg.Timezone = envStr("FOREMAN_TIMEZONE", cfg.Timezone)
	cfg.RetentionDays = envInt("FOREMAN_RETENTION_DAYS", cfg.RetentionDays)
	cfg.LexiconPath = envStr("FOREMAN_LEXICON", cfg.LexiconPath)
	cfg.DigestSchedule = envStr("FOREMAN_DIGEST_SCHEDULE", cfg.DigestSchedule)
	cfg.CompactionSchedule = envStr("FOREMAN_COMPACTION_SCHEDULE", cfg.CompactionSchedule)
	cfg.APIToken = envStr("FOREMAN_API_TOKEN", cfg.APIToken)

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

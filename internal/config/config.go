// Package config loads application configuration.
//
// Sources, highest priority first: environment variables, an optional
// config.yaml in the working directory, built-in defaults. The OpenAI API
// key is required and validated at load time; the Telegram token and the
// event webhook are optional features that stay off when unset.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates OPENAI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidTokenBudget indicates a non-positive token budget.
	ErrInvalidTokenBudget = errors.New("invalid token budget")
)

type Config struct {
	// HTTP server
	HTTPAddr string `mapstructure:"http_addr"`

	// Persistence
	DBPath string `mapstructure:"db_path"`

	// OpenAI-compatible endpoint
	OpenAIAPIKey   string `mapstructure:"openai_api_key"` // SENSITIVE: masked in String
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`

	// Memory budgets (tokens)
	HistoryTokens int `mapstructure:"history_tokens"`
	QATokens      int `mapstructure:"qa_tokens"`

	// Optional surfaces
	TelegramToken string `mapstructure:"telegram_token"` // SENSITIVE: masked in String
	WebhookURL    string `mapstructure:"webhook_url"`
}

// Load reads configuration from the environment and an optional config.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; env and defaults carry everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("db_path", "memobot.db")
	v.SetDefault("model", "gpt-4.1-nano")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("history_tokens", 1200)
	v.SetDefault("qa_tokens", 800)
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("openai_base_url", "OPENAI_BASE_URL")
	mustBind("telegram_token", "TELEGRAM_TOKEN")
	mustBind("webhook_url", "WEBHOOK_URL")
	mustBind("http_addr", "MEMOBOT_HTTP_ADDR")
	mustBind("db_path", "MEMOBOT_DB_PATH")
	mustBind("model", "MEMOBOT_MODEL")
	mustBind("embedding_model", "MEMOBOT_EMBEDDING_MODEL")
	mustBind("history_tokens", "MEMOBOT_HISTORY_TOKENS")
	mustBind("qa_tokens", "MEMOBOT_QA_TOKENS")
}

// Validate fails fast on configuration the server cannot start with.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.HistoryTokens <= 0 {
		return fmt.Errorf("%w: history_tokens=%d", ErrInvalidTokenBudget, c.HistoryTokens)
	}
	if c.QATokens <= 0 {
		return fmt.Errorf("%w: qa_tokens=%d", ErrInvalidTokenBudget, c.QATokens)
	}
	return nil
}

// TelegramEnabled reports whether the bot surface should start.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// String masks secrets so the config can be logged safely.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{http_addr:%s db_path:%s model:%s embedding_model:%s history_tokens:%d qa_tokens:%d openai_api_key:%s telegram_token:%s webhook_url:%s}",
		c.HTTPAddr, c.DBPath, c.Model, c.EmbeddingModel, c.HistoryTokens, c.QATokens,
		maskSecret(c.OpenAIAPIKey), maskSecret(c.TelegramToken), c.WebhookURL)
}

func maskSecret(s string) string {
	if s == "" {
		return "<unset>"
	}
	return "<set>"
}

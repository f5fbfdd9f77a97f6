// Package config loads relay settings from the environment and an optional
// .env file. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/control"
)

const (
	ProviderProxy = "proxy"
	ProviderDummy = "dummy"

	CommanderTelegram = "telegram"
	CommanderDummy    = "dummy"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds configuration for every relay front-end.
type Config struct {
	Proxy    ProxyConfig
	History  HistoryConfig
	Telegram TelegramConfig
	Web      WebConfig
	Log      LogConfig
}

type ProxyConfig struct {
	Provider          string `env:"PROXY_PROVIDER" validate:"oneof=proxy dummy"`
	URL               string `env:"GAS_PROXY_URL" validate:"omitempty,url"`
	Token             string `env:"GAS_PROXY_TOKEN"`
	Model             string `env:"GEMINI_MODEL" validate:"required"`
	MaxRetries        int    `env:"MAX_RETRIES" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `env:"RETRY_DELAY_SECONDS" validate:"gte=0"`
	TimeoutSeconds    int    `env:"GEMINI_TIMEOUT_SECONDS" validate:"gt=0"`
	DummyScript       string `env:"DUMMY_PROVIDER_SCRIPT"`
}

// Policy converts the retry settings into a dispatch policy.
func (p ProxyConfig) Policy() control.Policy {
	return control.Policy{
		MaxRetries:     p.MaxRetries,
		RetryDelay:     time.Duration(p.RetryDelaySeconds) * time.Second,
		RequestTimeout: time.Duration(p.TimeoutSeconds) * time.Second,
	}
}

type HistoryConfig struct {
	MaxMessages int    `env:"MAX_HISTORY_MESSAGES" validate:"gte=0"`
	Store       string `env:"HISTORY_STORE" validate:"oneof=memory sqlite"`
	DBPath      string `env:"HISTORY_DB_PATH" validate:"required_if=Store sqlite"`
	TTLSeconds  int    `env:"SESSION_TTL_SECONDS" validate:"gte=0"`
}

// TTL is how long an idle session keeps its history. Zero disables expiry.
func (h HistoryConfig) TTL() time.Duration {
	return time.Duration(h.TTLSeconds) * time.Second
}

type TelegramConfig struct {
	Commander       string `env:"TG_COMMANDER" validate:"oneof=telegram dummy"`
	Token           string `env:"TELEGRAM_TOKEN"`
	APIBase         string `env:"TELEGRAM_API_BASE" validate:"required,url"`
	TimeoutSeconds  int    `env:"TG_TIMEOUT" validate:"gte=0,lte=50"`
	SleepSeconds    int    `env:"TG_SLEEP_SECONDS" validate:"gte=0"`
	Concurrency     int    `env:"TG_CONCURRENCY" validate:"gte=1,lte=64"`
	DummyPollScript string `env:"DUMMY_POLL_SCRIPT"`
	DummySendScript string `env:"DUMMY_SEND_SCRIPT"`
	DummyEditScript string `env:"DUMMY_EDIT_SCRIPT"`
}

// RequestTimeout is the HTTP timeout for Bot API calls. It leaves headroom
// over the long-poll timeout.
func (t TelegramConfig) RequestTimeout() time.Duration {
	return time.Duration(t.TimeoutSeconds+20) * time.Second
}

type WebConfig struct {
	Addr         string `env:"WEB_ADDR" validate:"required"`
	StaticDir    string `env:"WEB_STATIC_DIR"`
	MaxBodyBytes int64  `env:"WEB_MAX_BODY_BYTES" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" validate:"oneof=text json"`
}

var defaults = map[string]any{
	"PROXY_PROVIDER":         ProviderProxy,
	"GEMINI_MODEL":           "gemini-2.5-flash",
	"MAX_RETRIES":            3,
	"RETRY_DELAY_SECONDS":    1,
	"GEMINI_TIMEOUT_SECONDS": 60,
	"DUMMY_PROVIDER_SCRIPT":  "ok",
	"MAX_HISTORY_MESSAGES":   4,
	"HISTORY_STORE":          StoreMemory,
	"HISTORY_DB_PATH":        "state/history.db",
	"SESSION_TTL_SECONDS":    3600,
	"TG_COMMANDER":           CommanderTelegram,
	"TELEGRAM_API_BASE":      "https://api.telegram.org",
	"TG_TIMEOUT":             30,
	"TG_SLEEP_SECONDS":       1,
	"TG_CONCURRENCY":         8,
	"DUMMY_POLL_SCRIPT":      "ok",
	"DUMMY_SEND_SCRIPT":      "ok",
	"DUMMY_EDIT_SCRIPT":      "ok",
	"WEB_ADDR":               ":8080",
	"WEB_STATIC_DIR":         "static",
	"WEB_MAX_BODY_BYTES":     25 << 20,
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "text",
}

// Load reads configuration from the environment, falling back to envFile
// (dotenv format) and then to defaults. A missing envFile is not an error.
// The proxy URL is required unless the dummy provider is selected.
func Load(envFile string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
		}
	}
	v.AutomaticEnv()

	s := &source{v: v}
	cfg := Config{
		Proxy: ProxyConfig{
			Provider:          strings.ToLower(s.str("PROXY_PROVIDER")),
			URL:               s.str("GAS_PROXY_URL"),
			Token:             s.str("GAS_PROXY_TOKEN"),
			Model:             s.str("GEMINI_MODEL"),
			MaxRetries:        s.integer("MAX_RETRIES"),
			RetryDelaySeconds: s.integer("RETRY_DELAY_SECONDS"),
			TimeoutSeconds:    s.integer("GEMINI_TIMEOUT_SECONDS"),
			DummyScript:       s.str("DUMMY_PROVIDER_SCRIPT"),
		},
		History: HistoryConfig{
			MaxMessages: s.integer("MAX_HISTORY_MESSAGES"),
			Store:       strings.ToLower(s.str("HISTORY_STORE")),
			DBPath:      s.str("HISTORY_DB_PATH"),
			TTLSeconds:  s.integer("SESSION_TTL_SECONDS"),
		},
		Telegram: TelegramConfig{
			Commander:       strings.ToLower(s.str("TG_COMMANDER")),
			Token:           s.str("TELEGRAM_TOKEN"),
			APIBase:         s.str("TELEGRAM_API_BASE"),
			TimeoutSeconds:  s.integer("TG_TIMEOUT"),
			SleepSeconds:    s.integer("TG_SLEEP_SECONDS"),
			Concurrency:     s.integer("TG_CONCURRENCY"),
			DummyPollScript: s.str("DUMMY_POLL_SCRIPT"),
			DummySendScript: s.str("DUMMY_SEND_SCRIPT"),
			DummyEditScript: s.str("DUMMY_EDIT_SCRIPT"),
		},
		Web: WebConfig{
			Addr:         s.str("WEB_ADDR"),
			StaticDir:    s.str("WEB_STATIC_DIR"),
			MaxBodyBytes: int64(s.integer("WEB_MAX_BODY_BYTES")),
		},
		Log: LogConfig{
			Level:  strings.ToLower(s.str("LOG_LEVEL")),
			Format: strings.ToLower(s.str("LOG_FORMAT")),
		},
	}
	if err := errors.Join(s.errs...); err != nil {
		return Config{}, err
	}

	if err := NewValidator().Validate(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Proxy.Provider == ProviderProxy && cfg.Proxy.URL == "" {
		return Config{}, errors.New("GAS_PROXY_URL is required in environment when PROXY_PROVIDER=proxy")
	}
	return cfg, nil
}

// RequireBot checks the settings only the Telegram front-end needs.
func (c Config) RequireBot() error {
	if c.Telegram.Commander == CommanderTelegram && c.Telegram.Token == "" {
		return errors.New("TELEGRAM_TOKEN is required in environment when TG_COMMANDER=telegram")
	}
	return nil
}

// source reads trimmed values from viper and collects parse errors.
type source struct {
	v    *viper.Viper
	errs []error
}

func (s *source) str(key string) string {
	return strings.TrimSpace(s.v.GetString(key))
}

func (s *source) integer(key string) int {
	raw := s.str(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s must be an integer (got: %q)", key, raw))
		return 0
	}
	return n
}

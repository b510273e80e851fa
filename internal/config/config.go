package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration
	BatchTimeout       time.Duration
	SessionTTL         time.Duration
	GeminiBaseURL      string
	GeminiAPIVersion   string
	GeminiMaxRPM       int

	Pacing      time.Duration
	BackoffUnit time.Duration
	MaxAttempts int

	WebAddr string
}

// Load reads the environment. Nothing is required here; each binary checks
// what it needs, so the web studio runs without a bot token and without a
// server-side Gemini key.
func Load() (Config, error) {
	cfg := Config{
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		BatchTimeout:       time.Duration(getEnvInt("BATCH_TIMEOUT_MINUTES", 30)) * time.Minute,
		SessionTTL:         time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		GeminiBaseURL:      strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:   strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiMaxRPM:       getEnvInt("GEMINI_MAX_RPM", 0),
		Pacing:             time.Duration(getEnvInt("PACING_SECONDS", 20)) * time.Second,
		BackoffUnit:        time.Duration(getEnvInt("BACKOFF_SECONDS", 30)) * time.Second,
		MaxAttempts:        getEnvInt("MAX_ATTEMPTS", 4),
		WebAddr:            strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = 30 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.GeminiMaxRPM < 0 {
		cfg.GeminiMaxRPM = 0
	}

	return cfg, nil
}

// RequireTelegram fails when the bot token is missing.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// NewLogger builds the JSON logger both binaries write to w.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration, derived from the environment
// once at startup.
type Config struct {
	Port int

	Provider    string
	Model       string
	Temperature float64

	OpenAIKey     string
	GeminiKey     string
	AnthropicKey  string
	OpenRouterKey string

	RedisURL string

	TickInterval time.Duration
	RunTimeout   time.Duration

	SMTP SMTPConfig
}

// SMTPConfig configures outbound run-report delivery. Delivery is disabled
// when Server is empty.
type SMTPConfig struct {
	Server   string
	Port     int
	From     string
	Password string
	UseSSL   bool
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Server) != "" && strings.TrimSpace(c.From) != ""
}

func FromEnv() Config {
	cfg := Config{
		Port:          envInt("PORT", 8787),
		Provider:      envString("SYLVIA_PROVIDER", "openai"),
		Model:         envString("SYLVIA_MODEL", "gpt-4o-mini"),
		Temperature:   envFloat("SYLVIA_TEMPERATURE", 0.7),
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		GeminiKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		AnthropicKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		OpenRouterKey: strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		RedisURL:      strings.TrimSpace(os.Getenv("SYLVIA_REDIS_URL")),
		TickInterval:  envDuration("SYLVIA_TICK_INTERVAL", 60*time.Second),
		RunTimeout:    envDuration("SYLVIA_RUN_TIMEOUT", 5*time.Minute),
		SMTP: SMTPConfig{
			Server:   strings.TrimSpace(os.Getenv("SYLVIA_SMTP_SERVER")),
			Port:     envInt("SYLVIA_SMTP_PORT", 465),
			From:     strings.TrimSpace(os.Getenv("SYLVIA_SMTP_FROM")),
			Password: strings.TrimSpace(os.Getenv("SYLVIA_SMTP_PASSWORD")),
			UseSSL:   envBool("SYLVIA_SMTP_SSL", true),
		},
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}
	if cfg.Temperature > 1 {
		cfg.Temperature = 1
	}
	return cfg
}

func envString(name string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

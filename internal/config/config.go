package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration, loaded from the environment.
// Auth and session handling live in the gateway in hosted deployments; the
// core only consumes the identity headers it forwards.
type Config struct {
	// Environment
	Environment string
	Port        string

	// Persistence
	DatabaseURL string

	// LLM providers
	LLMProvider  string // "openai" or "gemini"
	OpenAIAPIKey string
	GeminiAPIKey string
	DefaultModel string

	// Default LLM rate limits, used when no per-user row exists
	LLMMinuteLimit int
	LLMDayLimit    int

	// Email delivery
	AWSRegion         string
	EmailFrom         string
	EmailDailyCap     int // standard tier
	EmailWorkspaceCap int // "workspace" tier

	// Public base URL for tracking + unsubscribe links
	BaseURL string

	// Observability
	SentryDSN         string
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseHost      string
	LangfuseEnabled   bool

	// Auth mode
	// - "none": No auth (self-hosted, local dev)
	// - "gateway": Trust X-User-* headers from the session gateway
	AuthMode string
}

const (
	defaultMinuteLimit  = 30
	defaultDayLimit     = 1000
	defaultDailyCap     = 450
	defaultWorkspaceCap = 1950
)

func Load() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		DefaultModel:      getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		LLMMinuteLimit:    getEnvInt("LLM_MINUTE_LIMIT", defaultMinuteLimit),
		LLMDayLimit:       getEnvInt("LLM_DAY_LIMIT", defaultDayLimit),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		EmailFrom:         getEnv("EMAIL_FROM", "CreatorPulse <noreply@creatorpulse.io>"),
		EmailDailyCap:     getEnvInt("EMAIL_DAILY_CAP", defaultDailyCap),
		EmailWorkspaceCap: getEnvInt("EMAIL_WORKSPACE_CAP", defaultWorkspaceCap),
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		LangfusePublicKey: getEnv("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey: getEnv("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:      getEnv("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		LangfuseEnabled:   getEnv("LANGFUSE_ENABLED", "false") == "true",
		AuthMode:          getEnv("AUTH_MODE", "none"),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// IsGatewayMode returns true if running behind the session gateway
func (c *Config) IsGatewayMode() bool {
	return c.AuthMode == "gateway"
}

package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quokkaworks/todo-sso/pkg/jwtx"
)

type Config struct {
	IssuerURL string // Required: identity provider base URL, must match token iss

	JWKSURL        string        // Optional: explicit JWKS URL (default: resolved via OIDC discovery)
	JWKSTTL        time.Duration // Optional: how long a fetched key set stays fresh (default: 24h)
	Audience       []string      // Optional: accepted aud values (default: none enforced)
	RequiredScopes []string      // Optional: scopes accepted on todo routes (default: any verified token)
	ClockLeeway    time.Duration // Optional: clock-skew grace on exp/nbf (default: 0)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	cfg := Config{
		IssuerURL:           os.Getenv("SSO_ISSUER_URL"),
		JWKSURL:             os.Getenv("SSO_JWKS_URL"),
		JWKSTTL:             getEnvDurationOrDefault("SSO_JWKS_TTL", jwtx.DefaultJWKSTTL),
		ClockLeeway:         getEnvDurationOrDefault("SSO_CLOCK_LEEWAY", 0),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if aud := os.Getenv("SSO_AUDIENCE"); aud != "" {
		cfg.Audience = strings.Fields(aud)
	}
	if scopes := os.Getenv("SSO_REQUIRED_SCOPES"); scopes != "" {
		cfg.RequiredScopes = strings.Fields(scopes)
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

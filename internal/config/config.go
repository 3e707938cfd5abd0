package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN)
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Base URL the server is reachable at (token issuer, SDK base URL)
	ServerURL string

	// Enable debug logging
	Debug bool

	// Identity provider configuration
	Auth AuthConfig

	// Telemetry configuration
	Observability ObservabilityConfig
}

// AuthConfig holds token issuance and credential settings for the embedded
// identity provider.
//
// The provider issues its own RS256-signed tokens; there is no external
// issuer. The signing key is persisted to disk so tokens remain valid across
// server restarts.
type AuthConfig struct {
	// Issuer is the value of the "iss" claim in issued tokens.
	// Defaults to ServerURL.
	Issuer string

	// Audience is the expected "aud" claim for issued and verified tokens.
	Audience string

	// SigningKeyPath is where the RSA signing key is persisted.
	// If empty, defaults to a system temp directory.
	SigningKeyPath string

	// AccessTokenTTL bounds the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL bounds the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration

	// BcryptCost is the bcrypt work factor for password hashes.
	BcryptCost int
}

// ObservabilityConfig holds OpenTelemetry export settings.
// Telemetry is disabled when OTLPEndpoint is empty.
type ObservabilityConfig struct {
	OTLPEndpoint string
	OTLPProtocol string
	ServiceName  string
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", "tule.db"),
		ServerAddr:  getEnv("SERVER_ADDR", "localhost:8080"),
		ServerURL:   getEnv("SERVER_URL", "http://localhost:8080"),
		Debug:       getEnvBool("DEBUG", false),
		Auth: AuthConfig{
			Issuer:          getEnv("AUTH_ISSUER", ""),
			Audience:        getEnv("AUTH_AUDIENCE", "tule-web"),
			SigningKeyPath:  getEnv("AUTH_SIGNING_KEY_PATH", ""),
			AccessTokenTTL:  getEnvDuration("AUTH_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getEnvDuration("AUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
			BcryptCost:      getEnvInt("AUTH_BCRYPT_COST", 12),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPProtocol: getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "tuleapi"),
		},
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL is required")
	}

	// The issuer defaults to the public server URL; tokens minted under one
	// issuer are rejected under another, so this must be stable per deployment.
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = cfg.ServerURL
	}

	if cfg.Auth.Audience == "" {
		return nil, fmt.Errorf("AUTH_AUDIENCE is required")
	}

	if cfg.Auth.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("AUTH_ACCESS_TOKEN_TTL must be positive")
	}

	if cfg.Auth.RefreshTokenTTL <= cfg.Auth.AccessTokenTTL {
		return nil, fmt.Errorf("AUTH_REFRESH_TOKEN_TTL must exceed AUTH_ACCESS_TOKEN_TTL")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Provider exposes configuration to the rest of the application without
// tying consumers to the concrete Config struct.
type Provider interface {
	GetBindAddr() string
	GetDBUrl() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetIdentityProviderURL() string
	Gateway() GatewayConfig
}

// GatewayConfig carries the tunables of the realtime core. Tests shrink
// the windows; production uses the defaults.
type GatewayConfig struct {
	// Token resolver
	TokenCacheTTL  time.Duration
	TokenCacheSize int
	// Invalid-token cache
	InvalidTokenTTL       time.Duration
	InvalidTokenCacheSize int
	// Abuse guard
	RateLimitWindow   time.Duration
	RateLimitMax      int
	RateLimitBlockFor time.Duration
	// Typing tracker
	TypingExpiry time.Duration
}

// DefaultGatewayConfig returns the production tunables.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		TokenCacheTTL:         5 * time.Minute,
		TokenCacheSize:        512,
		InvalidTokenTTL:       60 * time.Second,
		InvalidTokenCacheSize: 512,
		RateLimitWindow:       15 * time.Second,
		RateLimitMax:          20,
		RateLimitBlockFor:     30 * time.Second,
		TypingExpiry:          3 * time.Second,
	}
}

// Config holds all configuration for the application.
type Config struct {
	BindAddr            string `validate:"required"`
	DBUrl               string `validate:"required,url"`
	DBNs                string `validate:"required"`
	DBDb                string `validate:"required"`
	DBUser              string
	DBPass              string
	IdentityProviderURL string `validate:"required,url"`

	gateway GatewayConfig
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		BindAddr:            envOr("GATEWAY_ADDR", ":8080"),
		DBUrl:               os.Getenv("SURREAL_URL"),
		DBUser:              os.Getenv("SURREAL_USER"),
		DBPass:              os.Getenv("SURREAL_PASS"),
		DBNs:                os.Getenv("SURREAL_NS"),
		DBDb:                os.Getenv("SURREAL_DB"),
		IdentityProviderURL: os.Getenv("IDENTITY_PROVIDER_URL"),
		gateway:             DefaultGatewayConfig(),
	}

	gw := &cfg.gateway
	for _, o := range []struct {
		key string
		dst *time.Duration
	}{
		{"TOKEN_CACHE_TTL", &gw.TokenCacheTTL},
		{"INVALID_TOKEN_TTL", &gw.InvalidTokenTTL},
		{"RATE_LIMIT_WINDOW", &gw.RateLimitWindow},
		{"RATE_LIMIT_BLOCK_FOR", &gw.RateLimitBlockFor},
		{"TYPING_EXPIRY", &gw.TypingExpiry},
	} {
		if err := overrideDuration(o.key, o.dst); err != nil {
			return nil, err
		}
	}
	for _, o := range []struct {
		key string
		dst *int
	}{
		{"TOKEN_CACHE_SIZE", &gw.TokenCacheSize},
		{"INVALID_TOKEN_CACHE_SIZE", &gw.InvalidTokenCacheSize},
		{"RATE_LIMIT_MAX", &gw.RateLimitMax},
	} {
		if err := overrideInt(o.key, o.dst); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func overrideDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func overrideInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func (c *Config) GetBindAddr() string            { return c.BindAddr }
func (c *Config) GetDBUrl() string               { return c.DBUrl }
func (c *Config) GetDBNs() string                { return c.DBNs }
func (c *Config) GetDBDb() string                { return c.DBDb }
func (c *Config) GetDBUser() string              { return c.DBUser }
func (c *Config) GetDBPass() string              { return c.DBPass }
func (c *Config) GetIdentityProviderURL() string { return c.IdentityProviderURL }
func (c *Config) Gateway() GatewayConfig         { return c.gateway }

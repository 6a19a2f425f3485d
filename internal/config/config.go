// Package config loads server settings from the environment and client
// settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the API server.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabaseURL selects the store. postgres:// URLs use PostgreSQL,
	// anything else is treated as a SQLite DSN.
	DatabaseURL string

	// JWTSecret signs access tokens.
	JWTSecret string

	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration

	// AuthRateLimit is the number of signup/login/refresh requests a single
	// client may make per minute.
	AuthRateLimit int

	// MaxImageBytes caps the size of an uploaded post image.
	MaxImageBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	port, err := intEnv("PORT", 3000)
	if err != nil {
		return nil, err
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "file:postboard.db"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	ttl := time.Hour
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err = time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_TTL %q", v)
		}
	}

	rateLimit, err := intEnv("AUTH_RATE_LIMIT", 30)
	if err != nil {
		return nil, err
	}
	if rateLimit < 1 {
		return nil, fmt.Errorf("AUTH_RATE_LIMIT must be at least 1")
	}

	maxImage, err := intEnv("MAX_IMAGE_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	if maxImage < 1 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be at least 1")
	}

	return &Config{
		Port:          port,
		DatabaseURL:   dbURL,
		JWTSecret:     secret,
		TokenTTL:      ttl,
		AuthRateLimit: rateLimit,
		MaxImageBytes: int64(maxImage),
	}, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

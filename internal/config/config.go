package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigins []string

	AccessTokenSecret  string
	AccessTokenTTL     time.Duration
	RefreshTokenSecret string
	RefreshTokenTTL    time.Duration
	CookieSecure       bool

	UploadDir      string
	MaxUploadBytes int64

	LogLevel string
	LogDev   bool

	Media MediaConfig
}

// MediaConfig describes the S3-compatible bucket that stores uploaded images.
type MediaConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Enabled reports whether enough settings are present to talk to the media host.
func (m MediaConfig) Enabled() bool {
	return m.Bucket != "" && m.PublicBaseURL != ""
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:               fallback(os.Getenv("PORT"), "8000"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CORSOrigins:        parseCSV(fallback(os.Getenv("CORS_ORIGIN"), "*")),
		AccessTokenSecret:  strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET")),
		RefreshTokenSecret: strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET")),
		CookieSecure:       parseBool(os.Getenv("COOKIE_SECURE"), true),
		UploadDir:          fallback(os.Getenv("UPLOAD_DIR"), "./public/temp"),
		LogLevel:           fallback(os.Getenv("LOG_LEVEL"), "info"),
		LogDev:             parseBool(os.Getenv("LOG_DEV"), false),
		Media: MediaConfig{
			Bucket:        strings.TrimSpace(os.Getenv("MEDIA_BUCKET")),
			Region:        fallback(os.Getenv("MEDIA_REGION"), "us-east-1"),
			Endpoint:      strings.TrimSpace(os.Getenv("MEDIA_ENDPOINT")),
			AccessKey:     strings.TrimSpace(os.Getenv("MEDIA_ACCESS_KEY")),
			SecretKey:     strings.TrimSpace(os.Getenv("MEDIA_SECRET_KEY")),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MEDIA_PUBLIC_BASE_URL")), "/"),
		},
	}

	var err error
	if cfg.AccessTokenTTL, err = ParseExpiry(fallback(os.Getenv("ACCESS_TOKEN_EXPIRY"), "1d")); err != nil {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_EXPIRY: %w", err)
	}
	if cfg.RefreshTokenTTL, err = ParseExpiry(fallback(os.Getenv("REFRESH_TOKEN_EXPIRY"), "10d")); err != nil {
		return Config{}, fmt.Errorf("REFRESH_TOKEN_EXPIRY: %w", err)
	}

	megabytes := fallback(os.Getenv("MAX_UPLOAD_MB"), "10")
	if mb, err := strconv.Atoi(megabytes); err == nil && mb > 0 {
		cfg.MaxUploadBytes = int64(mb) << 20
	} else {
		cfg.MaxUploadBytes = 10 << 20
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.AccessTokenSecret == "" {
		return Config{}, errors.New("ACCESS_TOKEN_SECRET is required")
	}
	if cfg.RefreshTokenSecret == "" {
		return Config{}, errors.New("REFRESH_TOKEN_SECRET is required")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// ParseExpiry accepts Go durations ("15m", "2h") and whole days ("10d").
func ParseExpiry(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid expiry %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", value)
	}
	return d, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseBool(value string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return b
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

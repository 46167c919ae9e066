package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	SessionFile    string
	SessionKey     string
	RateLimitRPS   float64
	RateLimitBurst int
	SignInPath     string
	AdminEmails    []string
	AdminUsernames []string
	LogLevel       string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL:        getEnv("PORTAL_BASE_URL", "http://localhost:8000"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		SessionFile:    getEnv("SESSION_FILE", defaultSessionFile()),
		SessionKey:     strings.TrimSpace(os.Getenv("SESSION_KEY")),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 20),
		SignInPath:     getEnv("SIGN_IN_PATH", "/auth/signin"),
		AdminEmails:    splitCSV(strings.TrimSpace(os.Getenv("ADMIN_EMAILS"))),
		AdminUsernames: splitCSV(strings.TrimSpace(os.Getenv("ADMIN_USERNAMES"))),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("PORTAL_BASE_URL cannot be empty")
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("PORTAL_BASE_URL must be an absolute URL")
	}

	if strings.TrimSpace(c.SessionFile) == "" {
		return fmt.Errorf("SESSION_FILE cannot be empty")
	}

	if c.SessionKey != "" {
		key, err := hex.DecodeString(c.SessionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("SESSION_KEY must be 64 hex characters (32 bytes)")
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive")
	}

	return nil
}

// SessionKeyBytes returns the decoded session encryption key, or nil when
// encryption at rest is disabled.
func (c *Config) SessionKeyBytes() []byte {
	if c.SessionKey == "" {
		return nil
	}

	key, err := hex.DecodeString(c.SessionKey)
	if err != nil {
		return nil
	}

	return key
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".portal-session.json"
	}

	return filepath.Join(home, ".portal", "session.json")
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}

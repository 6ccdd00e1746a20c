package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the API server.
type Config struct {
	HTTPAddr       string
	DatabaseDriver string
	DatabaseURL    string
	JWTSecret      string
	TokenTTL       time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSOrigins       []string
	AuthRatePerMinute int
	AuthRateBurst     int

	TelegramToken     string
	DigestTime        string
	StreakRefreshTime string
	Location          *time.Location
}

// ClientConfig keeps settings for commands that talk to a running server.
type ClientConfig struct {
	APIURL      string
	SessionPath string
	Token       string
}

// Load reads server configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:          env("HTTP_ADDR"),
		DatabaseDriver:    strings.ToLower(env("DATABASE_DRIVER")),
		DatabaseURL:       env("DATABASE_URL"),
		JWTSecret:         env("JWT_SECRET"),
		TokenTTL:          parseHours(env("TOKEN_TTL_HOURS")),
		RedisAddr:         env("REDIS_ADDR"),
		RedisPassword:     env("REDIS_PASSWORD"),
		RedisDB:           parseInt(env("REDIS_DB"), 0),
		CORSOrigins:       parseList(env("CORS_ORIGINS")),
		AuthRatePerMinute: parseInt(env("AUTH_RATE_PER_MINUTE"), 30),
		AuthRateBurst:     parseInt(env("AUTH_RATE_BURST"), 10),
		TelegramToken:     env("TELEGRAM_TOKEN"),
		DigestTime:        env("DIGEST_TIME"),
		StreakRefreshTime: env("STREAK_REFRESH_TIME"),
		Location:          time.Local,
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3001"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "sqlite"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "flowstate.db"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.DigestTime == "" {
		cfg.DigestTime = "08:00"
	}
	if cfg.StreakRefreshTime == "" {
		cfg.StreakRefreshTime = "00:05"
	}

	if tz := env("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDriver != "postgres" {
		return cfg, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", cfg.DatabaseDriver)
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

// LoadClient reads client configuration from environment variables.
func LoadClient() ClientConfig {
	cfg := ClientConfig{
		APIURL:      strings.TrimRight(env("FLOWSTATE_API_URL"), "/"),
		SessionPath: env("FLOWSTATE_SESSION"),
		Token:       env("FLOWSTATE_TOKEN"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:3001"
	}
	if cfg.SessionPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.SessionPath = filepath.Join(home, ".flowstate", "session.json")
		}
	}
	return cfg
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	for _, key := range []string{"HTTP_ADDR", "DATABASE_DRIVER", "DATABASE_URL", "TOKEN_TTL_HOURS", "CORS_ORIGINS", "DIGEST_TIME", "TIMEZONE", "AUTH_RATE_PER_MINUTE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":3001" {
		t.Errorf("Expected HTTPAddr :3001, got %s", cfg.HTTPAddr)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabaseURL != "flowstate.db" {
		t.Errorf("Unexpected database defaults %s %s", cfg.DatabaseDriver, cfg.DatabaseURL)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Errorf("Expected 7 day token TTL, got %s", cfg.TokenTTL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS, got %v", cfg.CORSOrigins)
	}
	if cfg.DigestTime != "08:00" || cfg.StreakRefreshTime != "00:05" {
		t.Errorf("Unexpected schedule defaults %s %s", cfg.DigestTime, cfg.StreakRefreshTime)
	}
	if cfg.AuthRatePerMinute != 30 || cfg.AuthRateBurst != 10 {
		t.Errorf("Unexpected rate limit defaults %d/%d", cfg.AuthRatePerMinute, cfg.AuthRateBurst)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "  ")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error without JWT_SECRET")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/flow")
	t.Setenv("TOKEN_TTL_HOURS", "2")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("Expected 2h TTL, got %s", cfg.TokenTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("Unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Expected UTC location, got %v", cfg.Location)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DATABASE_DRIVER", "mysql")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("FLOWSTATE_API_URL", "http://api.test/")
	t.Setenv("FLOWSTATE_SESSION", "/tmp/s.json")
	t.Setenv("FLOWSTATE_TOKEN", "tok")

	cfg := LoadClient()
	if cfg.APIURL != "http://api.test" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if cfg.SessionPath != "/tmp/s.json" || cfg.Token != "tok" {
		t.Errorf("Unexpected client config %+v", cfg)
	}
}

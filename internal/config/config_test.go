package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	for _, key := range []string{"PORT", "GOAL_CACHE_TTL_SECONDS", "STORE_TIMEZONE", "KAFKA_BROKERS", "DEFAULT_STORE_ID"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.GoalCacheTTL() != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.GoalCacheTTL())
	}
	if cfg.StoreID != "main-store" || cfg.StoreTimezone != "UTC" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadMalformedNumbersFallBack(t *testing.T) {
	isolate(t)
	t.Setenv("GOAL_CACHE_TTL_SECONDS", "soon")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()
	if cfg.GoalCacheTTLSeconds != 300 {
		t.Fatalf("expected fallback ttl 300, got %d", cfg.GoalCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RedisDB != 2 {
		t.Fatalf("expected redis db 2, got %d", cfg.RedisDB)
	}
}

func TestLoadBrokerList(t *testing.T) {
	isolate(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "STORE_TIMEZONE=America/Sao_Paulo\nDEFAULT_STORE_ID=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("DEFAULT_STORE_ID", "from-env")
	// godotenv sets variables on the process; restore them afterwards.
	t.Setenv("STORE_TIMEZONE", "")
	os.Unsetenv("STORE_TIMEZONE")

	cfg := Load()
	if cfg.StoreID != "from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.StoreID)
	}
	if cfg.StoreTimezone != "America/Sao_Paulo" {
		t.Fatalf("expected timezone from file, got %q", cfg.StoreTimezone)
	}
	if _, err := cfg.Location(); err != nil {
		t.Fatalf("load location: %v", err)
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string `env:"PORT" envDefault:"8080"`
	AllowedOrigin         string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisAddr             string `env:"REDIS_ADDR"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB" envDefault:"0"`
	GoalCacheTTLSeconds   int    `env:"GOAL_CACHE_TTL_SECONDS" envDefault:"300"`
	StoreID               string `env:"DEFAULT_STORE_ID" envDefault:"main-store"`
	StoreTimezone         string `env:"STORE_TIMEZONE" envDefault:"UTC"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaSalesTopic string   `env:"KAFKA_SALES_TOPIC" envDefault:"store-sales"`
	KafkaGroupID    string   `env:"KAFKA_GROUP_ID" envDefault:"storegoals-ledger"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stdout"`
	LogFile   string `env:"LOG_FILE" envDefault:"logs/storegoals.log"`
}

var defaults = Config{
	Port:                  "8080",
	AllowedOrigin:         "http://127.0.0.1:3000",
	GoalCacheTTLSeconds:   300,
	StoreID:               "main-store",
	StoreTimezone:         "UTC",
	AccessTokenTTLMinutes: 480,
	KafkaSalesTopic:       "store-sales",
	KafkaGroupID:          "storegoals-ledger",
	LogLevel:              "info",
	LogFormat:             "json",
	LogOutput:             "stdout",
	LogFile:               "logs/storegoals.log",
}

// Load reads an optional dotenv file (ENV_FILE, default .env) and then the
// process environment. Variables already set in the environment win over
// the file. Malformed numbers fall back to their defaults.
func Load() Config {
	loadDotEnv(envOr("ENV_FILE", ".env"))

	environment := env.ToMap(os.Environ())
	for _, key := range numericKeys {
		if _, err := strconv.Atoi(strings.TrimSpace(environment[key])); err != nil {
			delete(environment, key)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v; using defaults\n", err)
		cfg = defaults
	}
	return normalize(cfg)
}

var numericKeys = []string{"REDIS_DB", "GOAL_CACHE_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES"}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
	}
}

func normalize(cfg Config) Config {
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.StoreTimezone = strings.TrimSpace(cfg.StoreTimezone)
	if cfg.StoreTimezone == "" {
		cfg.StoreTimezone = defaults.StoreTimezone
	}
	if cfg.GoalCacheTTLSeconds < 1 {
		cfg.GoalCacheTTLSeconds = defaults.GoalCacheTTLSeconds
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = defaults.AccessTokenTTLMinutes
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = defaults.RedisDB
	}
	brokers := cfg.KafkaBrokers[:0]
	for _, broker := range cfg.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.KafkaBrokers = brokers
	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) GoalCacheTTL() time.Duration {
	return time.Duration(c.GoalCacheTTLSeconds) * time.Second
}

// Location resolves STORE_TIMEZONE; sales timestamps are bucketed into days
// in this zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.StoreTimezone)
}

func envOr(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

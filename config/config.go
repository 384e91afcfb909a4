/*
Package config loads process configuration from the environment.

PURPOSE:
  One Config struct for both binaries. Values come from the process
  environment, optionally seeded from a .env file. Variables already set
  in the environment win over the file.

KEYS:
  PORT               HTTP port (default 8080)
  DB_DRIVER          sqlite | postgres | memory (default sqlite)
  DB_PATH            SQLite file, ":memory:" allowed (default recognition.db)
  DATABASE_URL       PostgreSQL DSN, required for the postgres driver
  JWT_SECRET         HMAC key for access tokens, required unless DB_DRIVER=memory
  JWT_ISSUER         Expected iss claim, empty skips the check
  ALLOWED_ORIGINS    Comma separated CORS origins
  REDIS_ADDR         Enables the Redis notification publisher when set
  REDIS_CHANNEL      Pub/sub channel for notifications
  DISTRIBUTION_CRON  Monthly allocation schedule (default "0 0 1 * *")
  SCHEDULER_ENABLED  Run the distribution job in-process (default true)
  SCENARIOS_ENABLED  Mount the demo scenario loader, which wipes data (default false)
  RATE_LIMIT_RPS     Per-user write rate (default 5)
  RATE_LIMIT_BURST   Per-user write burst (default 10)
  LOG_LEVEL          logrus level name (default info)
  LOG_FORMAT         text | json (default text)
  SEED_FILE          YAML/JSON seed applied at startup

SEE ALSO:
  - cmd/server/main.go
  - cmd/pointsctl
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/points"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        int    `env:"PORT,default=8080"`
	DBDriver    string `env:"DB_DRIVER,default=sqlite"`
	DBPath      string `env:"DB_PATH,default=recognition.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL,default=recognition:notifications"`

	DistributionCron string `env:"DISTRIBUTION_CRON,default=0 0 1 * *"`
	SchedulerEnabled bool   `env:"SCHEDULER_ENABLED,default=true"`
	ScenariosEnabled bool   `env:"SCENARIOS_ENABLED,default=false"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=10"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	SeedFile string `env:"SEED_FILE"`
}

// Load reads envFile into the environment (a missing file is fine), decodes
// Config from it and validates the result. An empty envFile means ".env".
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, points.Invalid("environment", "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return points.Invalid("PORT", "must be between 1 and 65535, got %d", c.Port)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return points.Invalid("DB_PATH", "required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return points.Invalid("DATABASE_URL", "required for the postgres driver")
		}
	case DriverMemory:
	default:
		return points.Invalid("DB_DRIVER", "unknown driver %q", c.DBDriver)
	}
	if c.JWTSecret == "" && c.DBDriver != DriverMemory {
		return points.Invalid("JWT_SECRET", "required unless DB_DRIVER=memory")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return points.Invalid("RATE_LIMIT", "rate and burst must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return points.Invalid("LOG_LEVEL", "%v", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return points.Invalid("LOG_FORMAT", "must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas, dropping blanks.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"HoneyHubUsers/internal/auth"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLitePath = "data/users.db"
	minInternalToken  = 32
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	Addr     string `env:"APP_ADDR" envDefault:"127.0.0.1:8080"`
	LogLevel string `env:"APP_LOG_LEVEL"`

	DBDriver      string `env:"APP_DB_DRIVER"`
	DBDSN         string `env:"APP_DB_DSN"`
	DBAutoMigrate bool   `env:"APP_DB_AUTO_MIGRATE" envDefault:"true"`
	DBMaxConns    int32  `env:"APP_DB_MAX_CONNS" envDefault:"10"`

	InternalToken  string `env:"APP_INTERNAL_TOKEN"`
	GoogleClientID string `env:"APP_GOOGLE_CLIENT_ID"`
	AppleServiceID string `env:"APP_APPLE_SERVICE_ID"`

	// Unset hash overrides keep the preset's value; a set value, zero
	// included, must pass policy validation.
	HashPreset        string `env:"APP_HASH_PRESET"`
	HashParallelism   *int   `env:"APP_HASH_PARALLELISM"`
	HashIterations    *int   `env:"APP_HASH_ITERATIONS"`
	HashMemoryBytes   *int   `env:"APP_HASH_MEMORY_BYTES"`
	HashKeyLength     *int   `env:"APP_HASH_KEY_LENGTH"`
	HashMemoryBudget  int64  `env:"APP_HASH_MEMORY_BUDGET" envDefault:"536870912"`
	HashMaxConcurrent int64  `env:"APP_HASH_MAX_CONCURRENT"`

	AdminBootstrapEmail    string `env:"APP_ADMIN_BOOTSTRAP_EMAIL"`
	AdminBootstrapUsername string `env:"APP_ADMIN_BOOTSTRAP_USERNAME"`
	AdminBootstrapPassword string `env:"APP_ADMIN_BOOTSTRAP_PASSWORD"`
}

// Load reads .env from the working directory, if present, then the process
// environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := loadDotEnvFile(".env", os.Setenv, os.Getenv); err != nil {
		return Config{}, err
	}
	return LoadFromEnv(env.ToMap(os.Environ()))
}

func LoadFromEnv(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverSQLite
		if cfg.IsProd() || strings.HasPrefix(cfg.DBDSN, "postgres://") || strings.HasPrefix(cfg.DBDSN, "postgresql://") {
			cfg.DBDriver = DriverPostgres
		}
	}
	switch cfg.DBDriver {
	case DriverPostgres:
	case DriverSQLite:
		if cfg.DBDSN == "" && !cfg.IsProd() {
			cfg.DBDSN = defaultSQLitePath
		}
	default:
		return Config{}, errors.New("APP_DB_DRIVER: must be postgres or sqlite")
	}

	cfg.InternalToken = strings.TrimSpace(cfg.InternalToken)
	cfg.AdminBootstrapEmail = strings.TrimSpace(cfg.AdminBootstrapEmail)
	cfg.AdminBootstrapUsername = strings.TrimSpace(cfg.AdminBootstrapUsername)

	if cfg.AdminBootstrapPassword != "" && cfg.AdminBootstrapEmail == "" {
		return Config{}, errors.New("APP_ADMIN_BOOTSTRAP_EMAIL: required when APP_ADMIN_BOOTSTRAP_PASSWORD is set")
	}
	if cfg.AdminBootstrapPassword != "" && cfg.AdminBootstrapUsername == "" {
		cfg.AdminBootstrapUsername = "admin"
	}

	if _, err := cfg.HashPolicy(); err != nil {
		return Config{}, err
	}
	if cfg.HashMemoryBudget < 0 || cfg.HashMaxConcurrent < 0 {
		return Config{}, errors.New("APP_HASH_MEMORY_BUDGET, APP_HASH_MAX_CONCURRENT: must not be negative")
	}

	if cfg.IsProd() {
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required in prod")
		}
		if len(cfg.InternalToken) < minInternalToken {
			return Config{}, fmt.Errorf("APP_INTERNAL_TOKEN: must be at least %d bytes in prod", minInternalToken)
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// HashPolicy builds the password hashing policy from the preset and any
// overrides. The preset defaults to prod in prod and dev elsewhere.
func (c Config) HashPolicy() (auth.HashingPolicy, error) {
	var base auth.HashingPolicy
	switch strings.ToLower(strings.TrimSpace(c.HashPreset)) {
	case "":
		base = auth.DevelopmentPolicy()
		if c.IsProd() {
			base = auth.ProductionPolicy()
		}
	case "dev", "development":
		base = auth.DevelopmentPolicy()
	case "prod", "production":
		base = auth.ProductionPolicy()
	default:
		return auth.HashingPolicy{}, errors.New("APP_HASH_PRESET: must be dev or prod")
	}

	p, err := auth.NewHashingPolicy(
		override(c.HashParallelism, base.Parallelism()),
		override(c.HashIterations, base.Iterations()),
		override(c.HashMemoryBytes, base.MemoryBytes()),
		override(c.HashKeyLength, base.KeyLength()),
	)
	if err != nil {
		return auth.HashingPolicy{}, fmt.Errorf("hash policy: %w", err)
	}
	return p, nil
}

// HasherOpts bounds concurrent hashing by APP_HASH_MEMORY_BUDGET divided by
// the policy's memory, unless APP_HASH_MAX_CONCURRENT sets the slot count.
func (c Config) HasherOpts() auth.HasherOpts {
	return auth.HasherOpts{
		MemoryBudget:  c.HashMemoryBudget,
		MaxConcurrent: c.HashMaxConcurrent,
	}
}

func override(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// loadDotEnvFile copies variables from a dotenv file into the environment
// without overriding ones that are already set. Empty values are skipped and
// a missing file is not an error.
func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

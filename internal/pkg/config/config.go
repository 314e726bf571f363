package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Store   StoreConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Session SessionConfig

	BcryptCost          int  `env:"BCRYPT_COST,           default=10"`
	SeedDefaultServices bool `env:"SEED_DEFAULT_SERVICES, default=true"`
}

type StoreConfig struct {
	Driver      string        `env:"STORE_DRIVER,       default=sqlite"`
	SQLitePath  string        `env:"SQLITE_PATH,        default=data/servicedesk.db"`
	LoadTimeout time.Duration `env:"STORE_LOAD_TIMEOUT, default=8s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=servicedesk"`
}

// RedisConfig configures the cross-process advisory lock. An empty Addr
// disables it. LockTTL is re-armed every LockTTL/3 while a lock is held, so
// it only bounds how long a crashed holder blocks other processes.
type RedisConfig struct {
	Addr    string        `env:"REDIS_ADDR"`
	DB      int           `env:"REDIS_DB, default=0"`
	LockTTL time.Duration `env:"LOCK_TTL, default=10s"`
}

type SessionConfig struct {
	TTL            time.Duration `env:"SESSION_TTL,             default=168h"`
	SnapshotSecret string        `env:"SESSION_SNAPSHOT_SECRET"`
}

// Load reads an optional .env file, then configuration from environment
// variables using go-envconfig. Variables already set in the environment win
// over the file.
func Load(ctx context.Context, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("config: STORE_DRIVER must be one of %s, %s, %s (got %q)", DriverMemory, DriverSQLite, DriverMongo, c.Store.Driver)
	}
	if c.Store.LoadTimeout <= 0 {
		return fmt.Errorf("config: STORE_LOAD_TIMEOUT must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	return nil
}

// Package persistence selects and opens a registry store from environment
// configuration. Four drivers are supported: the in-memory registry for
// ephemeral use, and the sqlite, postgres and redis snapshot stores.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	goredis "github.com/redis/go-redis/v9"

	"recordcore/internal/infra/persistence/postgres"
	"recordcore/internal/infra/persistence/redis"
	"recordcore/internal/infra/persistence/sqlite"
	"recordcore/internal/registry"
	"recordcore/pkg/record"
)

// Driver identifies a concrete registry store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverRedis    Driver = "redis"    // Redis server
)

// Store is the surface every opened driver provides: the full registry
// contract, the completion APIs, snapshot export/import, and durability
// control.
type Store interface {
	record.Registry
	registry.Authority
	ExportState() registry.Snapshot
	ImportState(snapshot registry.Snapshot) error
	Checkpoint(ctx context.Context) error
	Close() error
}

// Config carries the environment-driven store selection.
type Config struct {
	Driver      string `env:"RECORDCORE_STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath  string `env:"RECORDCORE_SQLITE_PATH"`
	PostgresDSN string `env:"RECORDCORE_POSTGRES_DSN"`

	Redis RedisConfig
}

// RedisConfig holds the redis driver connection settings.
type RedisConfig struct {
	Addr        string        `env:"RECORDCORE_REDIS_ADDR" envDefault:"localhost:6379"`
	Password    string        `env:"RECORDCORE_REDIS_PASSWORD"`
	DB          int           `env:"RECORDCORE_REDIS_DB" envDefault:"0"`
	Prefix      string        `env:"RECORDCORE_REDIS_PREFIX"`
	DialTimeout time.Duration `env:"RECORDCORE_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads the store configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse storage config: %w", err)
	}
	return cfg, nil
}

// memoryStore adapts the bare registry to the Store surface: there is nothing
// to flush and nothing to release.
type memoryStore struct {
	*registry.Registry
}

func (m memoryStore) Checkpoint(context.Context) error { return nil }
func (m memoryStore) Close() error                     { return nil }

// MaterializeRecord keeps facades bound to the wrapper for symmetry with the
// persistent drivers.
func (m memoryStore) MaterializeRecord(key record.StoreKey, t *record.Type) *record.Entity {
	return m.Registry.MaterializeFor(key, t, m)
}

// Open constructs the store named by cfg.Driver. Registry options (clock,
// logger, metrics, tracer, audit) pass through to the embedded registry.
func Open(cfg Config, opts ...registry.Option) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverMemory, "":
		return memoryStore{Registry: registry.New(opts...)}, nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath, opts...)
	case DriverPostgres:
		return postgres.NewStore(cfg.PostgresDSN, opts...)
	case DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		return redis.NewStore(client, cfg.Redis.Prefix, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// OpenFromEnv loads the environment configuration and opens the selected
// store.
//
//	RECORDCORE_STORAGE_DRIVER: memory|sqlite|postgres|redis (default memory)
//	RECORDCORE_SQLITE_PATH: path to sqlite file (default ./recordcore.db)
//	RECORDCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	RECORDCORE_REDIS_ADDR: redis address when driver=redis
func OpenFromEnv(opts ...registry.Option) (Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return Open(cfg, opts...)
}

package storage

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is one of memory, file, redis, sqlite, postgres, mysql.
	Driver string      `yaml:"driver" json:"driver"`
	Dir    string      `yaml:"dir" json:"dir"`
	DSN    string      `yaml:"dsn" json:"dsn"`
	Redis  RedisConfig `yaml:"redis" json:"redis"`
}

// DefaultConfig stores data as files under ./data.
func DefaultConfig() Config {
	return Config{
		Driver: "file",
		Dir:    "data",
		DSN:    "file:imagestudio.db",
		Redis:  DefaultRedisConfig(),
	}
}

// Open builds the backend named by cfg.Driver.
func Open(cfg Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.Dir)
	case "redis":
		return NewRedisBackend(cfg.Redis, logger)
	case "sqlite", "postgres", "mysql":
		return NewSQLBackend(cfg.Driver, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

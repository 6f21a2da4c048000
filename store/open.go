package store

import (
	"context"
	"fmt"
)

// Config selects and configures a Store implementation.
type Config struct {
	// Driver is "postgres", "sqlite" or "memory".
	Driver string `json:"driver" yaml:"driver"`

	// DSN is a Postgres connection string or a SQLite file path.
	DSN string `json:"dsn" yaml:"dsn"`

	MaxConns int32 `json:"maxConns,omitempty" yaml:"maxConns,omitempty"`
	MinConns int32 `json:"minConns,omitempty" yaml:"minConns,omitempty"`

	// AutoMigrate applies the schema when the store is opened.
	AutoMigrate bool `json:"autoMigrate,omitempty" yaml:"autoMigrate,omitempty"`
}

// Validate fills defaults and checks the driver settings.
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	switch c.Driver {
	case "postgres", "sqlite":
		if c.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	if c.MaxConns < 0 || c.MinConns < 0 {
		return fmt.Errorf("database pool sizes cannot be negative")
	}
	return nil
}

// Open creates the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s Store
	switch cfg.Driver {
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s = pg
	case "sqlite":
		lite, err := NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		s = lite
	case "memory":
		s = NewMemoryStore()
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating %s store: %w", cfg.Driver, err)
		}
	}
	return s, nil
}

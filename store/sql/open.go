package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-relay/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DatabaseConfig describes the ledger database. It satisfies the persistence
// client's config contract.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" mapstructure:"driver"`
	DSN             string        `koanf:"dsn" mapstructure:"dsn"`
	Debug           bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout     time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	OtelIdentifier  string        `koanf:"otel_identifier" mapstructure:"otel_identifier"`
	MaxOpenConns    int           `koanf:"max_open_conns" mapstructure:"max_open_conns"`
	AutoMigrate     bool          `koanf:"auto_migrate" mapstructure:"auto_migrate"`
	MigrationSource fs.FS         `koanf:"-" mapstructure:"-"`
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return c.Driver
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-relay"
	}
	return c.OtelIdentifier
}

// Open connects the persistence client for the configured driver, registers
// the relay schema for its dialect, and migrates when AutoMigrate is set.
func Open(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	cfg.Driver = strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}

	var dialect schema.Dialect
	switch cfg.Driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite, "sqlite":
		cfg.Driver = DriverSQLite
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	migrationDialect, err := migrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	switch {
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	case cfg.Driver == DriverSQLite:
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	var regOpts []migrations.Option
	if cfg.MigrationSource != nil {
		filesystems, err := migrations.Filesystems(cfg.MigrationSource)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		regOpts = append(regOpts, migrations.WithFilesystems(filesystems...))
	}
	if _, err := migrations.RegisterDialect(ctx, migrationDialect, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, regOpts...); err != nil {
		_ = client.Close()
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return client, nil
}

package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	glog "github.com/goliatone/go-logger/glog"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-resultlink/adapters/gologger"
	"github.com/goliatone/go-resultlink/core"
	resultlinkmigrations "github.com/goliatone/go-resultlink/migrations"
	sqlstore "github.com/goliatone/go-resultlink/store/sql"
)

const databasePingTimeout = 5 * time.Second

func loadConfig(ctx context.Context, opts *rootOptions) (core.Config, error) {
	loader := core.NewEnvRawConfigLoader()
	loader.Environment = opts.environment
	cfg, err := core.NewCfgxConfigProvider(loader).Load(ctx, core.DefaultConfig())
	if err != nil {
		return core.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app holds the process resources shared by the database-backed commands.
type app struct {
	config  core.Config
	logs    *gologger.ZapProvider
	logger  glog.Logger
	client  *persistence.Client
	dialect string
	stores  *sqlstore.RepositoryFactory
}

// bootstrap loads config, builds the logger and opens the database. When
// migrate is set pending migrations are applied before stores are built.
func bootstrap(ctx context.Context, opts *rootOptions, migrate bool) (*app, error) {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	logs, err := gologger.NewProductionProvider(opts.logLevel)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logs: logs, logger: logs.GetLogger("resultlinkd")}

	client, dialect, err := openPersistence(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client
	a.dialect = dialect

	if migrate {
		if err := runMigrations(ctx, client, dialect); err != nil {
			a.Close()
			return nil, err
		}
		a.logger.Info("migrations applied", "dialect", dialect)
	}

	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = stores
	return a, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err.Error())
		}
	}
	if a.logs != nil {
		_ = a.logs.Sync()
	}
}

type persistenceConfig struct {
	database    core.DatabaseConfig
	serviceName string
}

func (c persistenceConfig) GetDebug() bool                { return c.database.Debug }
func (c persistenceConfig) GetDriver() string             { return c.database.Driver }
func (c persistenceConfig) GetServer() string             { return c.database.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return databasePingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return c.serviceName }

// openPersistence opens the configured database and returns the client with
// the migrations dialect it speaks.
func openPersistence(cfg core.Config) (*persistence.Client, string, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	var (
		sqlDriver string
		dialect   schema.Dialect
		target    string
	)
	switch driver {
	case "postgres", "postgresql":
		sqlDriver, dialect, target = "postgres", pgdialect.New(), resultlinkmigrations.DialectPostgres
	case "sqlite", "sqlite3":
		sqlDriver, dialect, target = "sqlite3", sqlitedialect.New(), resultlinkmigrations.DialectSQLite
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.Database.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if target == resultlinkmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{
		database:    core.DatabaseConfig{Driver: sqlDriver, DSN: cfg.Database.DSN, Debug: cfg.Database.Debug},
		serviceName: cfg.ServiceName,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("connect database: %w", err)
	}
	return client, target, nil
}

func runMigrations(ctx context.Context, client *persistence.Client, dialect string) error {
	_, err := resultlinkmigrations.Register(ctx, func(_ context.Context, registered string, _ string, fsys fs.FS) error {
		if registered == dialect {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, resultlinkmigrations.WithValidationTargets(dialect))
	if err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

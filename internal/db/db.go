package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"student-records/internal/config"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const applicationName = "student-records"

// Open connects to the student database described by cfg, applies the pool
// settings and fails unless the server answers a ping within ctx.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*bun.DB, error) {
	db, err := OpenDSN(ctx, DSN(cfg), logger)
	if err != nil {
		return nil, err
	}

	pool := poolFromConfig(cfg)
	pool.apply(db.DB)
	logger.Info("database pool configured",
		"host", cfg.Host,
		"database", cfg.DBName,
		"max_open_conns", pool.maxOpen,
		"max_idle_conns", pool.maxIdle,
		"conn_max_lifetime", pool.maxLifetime,
		"conn_max_idle_time", pool.maxIdleTime,
	)
	return db, nil
}

// OpenDSN connects with a ready-made postgres:// URL, as handed out by test containers.
func OpenDSN(ctx context.Context, dsn string, logger *slog.Logger) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithApplicationName(applicationName),
	)
	db := bun.NewDB(sql.OpenDB(connector), pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected")
	return db, nil
}

// DSN builds a postgres:// URL from cfg. Credentials are escaped, so
// passwords containing '@' or '/' survive.
func DSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

// poolFromConfig falls back to 25 open / 10 idle connections, 5m lifetime
// and 1m idle time for unset values.
func poolFromConfig(cfg config.DatabaseConfig) poolSettings {
	orDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}

	return poolSettings{
		maxOpen:     orDefault(cfg.MaxOpenConns, 25),
		maxIdle:     orDefault(cfg.MaxIdleConns, 10),
		maxLifetime: time.Duration(orDefault(cfg.ConnMaxLifetime, 300)) * time.Second,
		maxIdleTime: time.Duration(orDefault(cfg.ConnMaxIdleTime, 60)) * time.Second,
	}
}

func (p poolSettings) apply(sqlDB *sql.DB) {
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxLifetime(p.maxLifetime)
	sqlDB.SetConnMaxIdleTime(p.maxIdleTime)
}

func Close(db *bun.DB) {
	if db != nil {
		db.Close()
	}
}

// Migrate creates the tables for models if they do not exist yet. Column
// constraints, such as the unique username, come from the bun tags.
func Migrate(ctx context.Context, db *bun.DB, logger *slog.Logger, models ...interface{}) error {
	for _, model := range models {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %s: %w", q.GetTableName(), err)
		}
	}
	logger.Info("database migrations completed", "tables", len(models))
	return nil
}

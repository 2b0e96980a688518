// Package db provides the two storage backends of the service: the dedicated
// transaction ledger (pgx) and the primary application database holding leads
// (gorm). The two never share a connection.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the subset of pgx.Tx the ledger needs. pgx.Tx satisfies it.
type Tx interface {
	DBTX
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner starts ledger transactions.
type TxBeginner func(ctx context.Context) (Tx, error)

// PoolBeginner adapts a pgx pool to TxBeginner.
func PoolBeginner(pool *pgxpool.Pool) TxBeginner {
	return func(ctx context.Context) (Tx, error) {
		return pool.Begin(ctx)
	}
}

// PoolOptions tunes the ledger connection pool.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
	AcquireTimeout    time.Duration
}

// OpenLedgerPool creates the pgx pool for the ledger store and verifies it
// with a ping bounded by AcquireTimeout.
func OpenLedgerPool(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing ledger database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating ledger pool: %w", err)
	}

	pingCtx := ctx
	if opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.AcquireTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging ledger database: %w", err)
	}
	return pool, nil
}

// PrimaryOptions tunes the primary database handle.
type PrimaryOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	Logger          *slog.Logger
}

// OpenPrimary opens the primary application database through gorm.
func OpenPrimary(dsn string, opts PrimaryOptions) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening primary database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing primary sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxConnLifetime)
	}

	if opts.Logger != nil {
		opts.Logger.Info("primary database opened", "max_open_conns", opts.MaxOpenConns)
	}
	return gdb, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingGorm checks the primary database connection behind a gorm handle.
func PingGorm(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

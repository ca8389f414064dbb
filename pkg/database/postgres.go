package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool knobs left at zero in Config fall back to these.
const (
	defaultMaxConns     = int32(20)
	defaultConnLifetime = 45 * time.Minute
	defaultConnIdleTime = 15 * time.Minute

	connectTimeout = 10 * time.Second
)

// Config carries the pool settings for one engine database.
type Config struct {
	URL            string
	MaxConnections int32
	ConnLifetime   time.Duration
	ConnIdleTime   time.Duration
}

// DB is the engine's connection pool. Repositories embed it directly.
type DB struct {
	*pgxpool.Pool
}

// NewConnection opens a pool against cfg.URL and verifies the database is
// reachable before returning it.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	applyPoolSettings(poolCfg, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func applyPoolSettings(poolCfg *pgxpool.Config, cfg *Config) {
	poolCfg.MaxConns = cfg.MaxConnections
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = defaultMaxConns
	}
	poolCfg.MaxConnLifetime = cfg.ConnLifetime
	if poolCfg.MaxConnLifetime <= 0 {
		poolCfg.MaxConnLifetime = defaultConnLifetime
	}
	poolCfg.MaxConnIdleTime = cfg.ConnIdleTime
	if poolCfg.MaxConnIdleTime <= 0 {
		poolCfg.MaxConnIdleTime = defaultConnIdleTime
	}
}

// Close releases the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

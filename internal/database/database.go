package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB owns the PostgreSQL connection pool. The pool is created lazily on
// first use and re-created on the next access after a failed health
// check, so a lost connection never sticks the process in a dead state.
type DB struct {
	url      string
	maxConns int32
	minConns int32

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func New(databaseURL string, maxConns int32, minConns int32) *DB {
	return &DB{
		url:      databaseURL,
		maxConns: maxConns,
		minConns: minConns,
	}
}

// Pool returns the live connection pool, connecting if necessary.
func (db *DB) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool != nil {
		return db.pool, nil
	}

	return db.connectLocked(ctx)
}

func (db *DB) connectLocked(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(db.url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = db.maxConns
	cfg.MinConns = db.minConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "max_conns", db.maxConns, "min_conns", db.minConns)
	db.pool = pool
	return pool, nil
}

// Health pings the database. On failure the pool is dropped so the next
// data-store operation re-attempts the connection.
func (db *DB) Health(ctx context.Context) error {
	pool, err := db.Pool(ctx)
	if err != nil {
		return err
	}

	if err := pool.Ping(ctx); err != nil {
		db.mu.Lock()
		if db.pool == pool {
			db.pool.Close()
			db.pool = nil
		}
		db.mu.Unlock()
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.pool != nil {
		db.pool.Close()
		db.pool = nil
	}
}

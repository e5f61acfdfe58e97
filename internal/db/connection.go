package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AppName is reported to Postgres as application_name.
const AppName = "trahn-swap"

const (
	maxConns    = 10
	minConns    = 1
	dialTimeout = 5 * time.Second
)

func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = AppName
	}
	return cfg, nil
}

// Connect opens the shared pool and pings it within dialTimeout.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	p, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := p.Ping(dialCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping %s:%d/%s: %w", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database, err)
	}
	return p, nil
}

// CheckConnection confirms the pool answers queries and logs which database
// and server it reached.
func CheckConnection(ctx context.Context, p *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		now     time.Time
		dbName  string
		version string
	)
	err := p.QueryRow(ctx, "SELECT now(), current_database(), current_setting('server_version')").
		Scan(&now, &dbName, &version)
	if err != nil {
		return fmt.Errorf("test query: %w", err)
	}
	stat := p.Stat()
	fmt.Printf("[DB] Connected to %s (Postgres %s) at %s, %d/%d conns\n",
		dbName, version, now.Format(time.RFC3339), stat.TotalConns(), stat.MaxConns())
	return nil
}

package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// Connect establishes a pgx connection pool and applies the schema.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	conf, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, err
	}
	conf.MaxConns = 4
	conf.MinConns = 0
	conf.MaxConnLifetime = 55 * time.Minute
	conf.MaxConnIdleTime = 10 * time.Minute
	conf.HealthCheckPeriod = 30 * time.Second

	p, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	pool := &Pool{Pool: p}
	if err := pool.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
create table if not exists check_run (
	id          uuid primary key,
	status      text not null default 'running',
	started_at  timestamptz not null,
	finished_at timestamptz,
	total       integer not null default 0,
	processed   integer not null default 0,
	available   integer not null default 0,
	export_uri  text,
	error       text
);
create index if not exists check_run_started_at_idx on check_run (started_at desc);
`

// Migrate creates the run history table when missing.
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := p.Exec(ctx, schema)
	return err
}

// Close closes the underlying pool.
func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/types"
)

// Postgres reads rows through a pgx connection pool.
type Postgres struct {
	pool    *pgxpool.Pool
	table   Table
	timeout time.Duration
	logger  *zap.Logger
}

// OpenPostgres creates a small pool for dsn and checks that the server is
// reachable.
func OpenPostgres(ctx context.Context, dsn string, maxConns int, table Table, timeout time.Duration, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Debug("postgres pool ready",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns))
	return &Postgres{pool: pool, table: table, timeout: timeout, logger: logger}, nil
}

func quotePostgres(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// FetchSince implements Source.
func (p *Postgres) FetchSince(ctx context.Context, since string) ([]types.Row, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	query := selectQuery(p.table, quotePostgres, "$1", since != "")
	var args []any
	if since != "" {
		args = append(args, since)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", p.table.Name, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.table.Name, err)
	}

	out := make([]types.Row, len(maps))
	for i, m := range maps {
		out[i] = types.Row(m)
	}
	p.logger.Info("fetched rows", zap.String("table", p.table.Name), zap.String("since", since), zap.Int("rows", len(out)))
	return out, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Package source reads request rows from the relational table the web form
// writes to.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/types"
)

// Source returns rows created on or after a date, oldest first.
type Source interface {
	// FetchSince returns rows whose creation column is >= since
	// (YYYY-MM-DD), ordered ascending by that column. An empty since
	// returns every row.
	FetchSince(ctx context.Context, since string) ([]types.Row, error)
	Close() error
}

// Table names the table and its creation-timestamp column.
type Table struct {
	Name          string // may be schema-qualified: public.phonerequest
	CreatedColumn string
}

// Open connects to the source selected by cfg.Source.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := Table{Name: cfg.Source.Table, CreatedColumn: cfg.Source.CreatedColumn}
	timeout := cfg.GetQueryTimeout()

	switch cfg.Source.Driver {
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.PostgresDSN(), cfg.Source.MaxConns, table, timeout, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case "sqlite":
		lite, err := OpenSQLite(cfg.Source.DSN, table, timeout, logger)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown source driver %q", cfg.Source.Driver)
	}
}

// selectQuery builds the incremental query. quote renders one identifier
// part; placeholder is the driver's bind marker, used only when withSince.
func selectQuery(t Table, quote func(string) string, placeholder string, withSince bool) string {
	parts := strings.Split(t.Name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	tbl := strings.Join(parts, ".")
	col := quote(t.CreatedColumn)

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(tbl)
	if withSince {
		b.WriteString(" WHERE ")
		b.WriteString(col)
		b.WriteString(" >= ")
		b.WriteString(placeholder)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(col)
	b.WriteString(" ASC")
	return b.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

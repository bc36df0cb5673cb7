package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/daviddao/deskflow/internal/types"
)

// SQLite reads rows from a local SQLite database file.
type SQLite struct {
	conn    *sql.DB
	path    string
	table   Table
	timeout time.Duration
	logger  *zap.Logger
}

// OpenSQLite opens an existing database file. It does not create one.
func OpenSQLite(path string, table Table, timeout time.Duration, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite source needs source.dsn set to a database file")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLite{conn: conn, path: path, table: table, timeout: timeout, logger: logger}, nil
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// FetchSince implements Source.
func (s *SQLite) FetchSince(ctx context.Context, since string) ([]types.Row, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := selectQuery(s.table, quoteSQLite, "?", since != "")
	var args []any
	if since != "" {
		args = append(args, since)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []types.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table.Name, err)
		}
		row := make(types.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table.Name, err)
	}

	s.logger.Info("fetched rows", zap.String("table", s.table.Name), zap.String("since", since), zap.Int("rows", len(out)))
	return out, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

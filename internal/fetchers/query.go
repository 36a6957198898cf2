// internal/fetchers/query.go
package fetchers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/navaccel/internal/prefetch"
)

// ErrMissingParam is returned when a query needs a param the caller did not
// supply
var ErrMissingParam = errors.New("fetchers: missing parameter")

// QueryFetcher runs one read query and returns its rows as maps keyed by
// column name
type QueryFetcher struct {
	DB        *sql.DB
	Key       string
	Query     string
	StaleTime time.Duration

	// Args builds the query arguments from the prefetch params. Nil means
	// the query takes none.
	Args func(prefetch.Params) ([]any, error)
}

// Fetcher adapts q for the data prefetcher
func (q *QueryFetcher) Fetcher() prefetch.Fetcher {
	return prefetch.Fetcher{
		Key:       q.Key,
		StaleTime: q.StaleTime,
		Fetch:     q.Fetch,
	}
}

// Fetch runs the query
func (q *QueryFetcher) Fetch(ctx context.Context, params prefetch.Params) (any, error) {
	var args []any
	if q.Args != nil {
		var err error
		if args, err = q.Args(params); err != nil {
			return nil, err
		}
	}

	rows, err := q.DB.QueryContext(ctx, q.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Key, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", q.Key, err)
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Key, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// drivers hand text back as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", q.Key, err)
	}
	return out, nil
}

// ParamArgs returns an Args func that reads the named params in order.
// Every name must be present.
func ParamArgs(names ...string) func(prefetch.Params) ([]any, error) {
	return func(p prefetch.Params) ([]any, error) {
		args := make([]any, 0, len(names))
		for _, name := range names {
			v, ok := p[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
			}
			args = append(args, v)
		}
		return args, nil
	}
}

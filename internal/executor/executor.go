package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/domain"
	"github.com/wenqu/procurement-assistant/internal/sqlguard"
)

// ExecError is a surfaced database failure carrying only the first line of
// the driver message.
type ExecError struct {
	Message string
	Err     error
}

func (e *ExecError) Error() string { return "database error: " + e.Message }

func (e *ExecError) Unwrap() error { return e.Err }

// Executor runs validated SELECTs against the read-only pool.
type Executor struct {
	pool    *pgxpool.Pool
	maxRows int
	timeout time.Duration
}

// New creates an executor. maxRows caps the materialized result set and
// timeout bounds each query.
func New(pool *pgxpool.Pool, maxRows int, timeout time.Duration) *Executor {
	if maxRows <= 0 {
		maxRows = 100
	}
	return &Executor{pool: pool, maxRows: maxRows, timeout: timeout}
}

// Run executes the SQL with autocommit semantics, no explicit transaction.
// The SELECT prefix is re-checked here independently of the synthesizer.
func (e *Executor) Run(ctx context.Context, sql string) (domain.QueryResult, error) {
	if !sqlguard.IsSelect(sql) {
		return domain.QueryResult{}, &ExecError{Message: "only SELECT statements are executed"}
	}

	sql = sqlguard.EnforceLimit(sql, e.maxRows)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return domain.QueryResult{}, wrapDBError(err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var result []domain.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return domain.QueryResult{}, wrapDBError(err)
		}

		row := make(domain.Row, len(values))
		for i, v := range values {
			row[columns[i]] = NormalizeValue(v)
		}
		result = append(result, row)

		if len(result) >= e.maxRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return domain.QueryResult{}, wrapDBError(err)
	}

	log.Debug().Str("sql", sql).Int("rows", len(result)).Msg("query executed")

	return domain.QueryResult{Columns: columns, Rows: result}, nil
}

// NormalizeValue converts driver types to plain Go values and decodes
// JSON-looking text cells to structured values.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return v
	case time.Time:
		return t
	default:
		return domain.DecodeCell(v)
	}
}

func wrapDBError(err error) error {
	msg := err.Error()
	if i := strings.IndexAny(msg, "\r\n"); i != -1 {
		msg = msg[:i]
	}
	return &ExecError{Message: msg, Err: fmt.Errorf("query failed: %w", err)}
}

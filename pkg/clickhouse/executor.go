package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/malbeclabs/pathsql/pkg/execution"
	"github.com/malbeclabs/pathsql/pkg/sqlvalidate"
)

// Executor runs candidate queries with per-query ceilings. It implements execution.Executor.
type Executor struct {
	conn Querier
	log  *slog.Logger
}

// NewExecutor returns an Executor over conn.
func NewExecutor(conn Querier, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{conn: conn, log: log}
}

// QuerySettings returns the ClickHouse settings that enforce limits. readonly=2 forbids writes and
// DDL while still allowing the per-query settings themselves.
func QuerySettings(limits execution.Limits) clickhouse.Settings {
	limits = limits.WithDefaults()
	return clickhouse.Settings{
		"readonly":             2,
		"max_execution_time":   executionSeconds(limits.MaxExecutionTime),
		"max_memory_usage":     limits.MaxMemoryBytes,
		"max_result_rows":      limits.MaxRows,
		"result_overflow_mode": "break",
	}
}

// executionSeconds rounds d up to whole seconds. The result is at least 1 because ClickHouse reads
// max_execution_time=0 as unlimited.
func executionSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// Execute runs sql and collects at most limits.MaxRows rows.
func (e *Executor) Execute(ctx context.Context, sql string, limits execution.Limits) (*execution.Result, error) {
	limits = limits.WithDefaults()

	if verbs := sqlvalidate.ForbiddenVerbs(sql); len(verbs) > 0 {
		return nil, &execution.Error{
			Code:    execution.UnknownExecutionError,
			Message: fmt.Sprintf("refusing to execute statement containing %s", strings.Join(verbs, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, limits.MaxExecutionTime)
	defer cancel()
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(QuerySettings(limits)))

	start := time.Now()
	rows, err := e.conn.Query(ctx, sql)
	if err != nil {
		return nil, execution.Classify(fmt.Errorf("failed to execute query: %w", err), time.Since(start))
	}
	defer rows.Close()

	res, err := scanRows(rows, limits.MaxRows)
	if err != nil {
		return nil, execution.Classify(err, time.Since(start))
	}
	res.ExecutionTime = time.Since(start)

	e.log.Debug("clickhouse: query executed", "rows", res.RowCount, "truncated", res.Truncated, "duration", res.ExecutionTime)
	return res, nil
}

func scanRows(rows driver.Rows, maxRows int) (*execution.Result, error) {
	types := rows.ColumnTypes()
	res := &execution.Result{Columns: make([]execution.Column, len(types))}
	for i, ct := range types {
		res.Columns[i] = execution.Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		if res.RowCount >= maxRows {
			res.Truncated = true
			break
		}
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]any, len(dest))
		for i, d := range dest {
			row[i] = reflect.ValueOf(d).Elem().Interface()
		}
		res.Rows = append(res.Rows, row)
		res.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return res, nil
}

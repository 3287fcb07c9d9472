package clickhouse

import (
	"context"
	"fmt"
	"strings"
)

// TracesTable is the span table generated queries read from.
const TracesTable = "traces"

// TracesTableDDL creates the span table in the given database.
const TracesTableDDL = `CREATE TABLE IF NOT EXISTS %s.traces
(
    trace_id String,
    span_id String,
    parent_span_id String COMMENT 'empty for root spans',
    service_name LowCardinality(String),
    operation_name LowCardinality(String),
    span_kind LowCardinality(String) COMMENT 'SERVER, CLIENT, INTERNAL, PRODUCER or CONSUMER',
    start_time DateTime64(9),
    duration_ns UInt64 COMMENT 'span duration in nanoseconds',
    status_code LowCardinality(String) COMMENT 'OK, ERROR or UNSET',
    http_status_code UInt16 COMMENT '0 when not an HTTP span',
    attributes Map(String, String)
)
ENGINE = MergeTree
ORDER BY (service_name, start_time)`

// CreateTracesTable creates the span table if it does not exist.
func CreateTracesTable(ctx context.Context, conn Querier, database string) error {
	if err := conn.Exec(ctx, fmt.Sprintf(TracesTableDDL, database)); err != nil {
		return fmt.Errorf("failed to create traces table: %w", err)
	}
	return nil
}

// Column is a column as reported by system.columns.
type Column struct {
	Name    string
	Type    string
	Comment string
}

// SchemaFetcher introspects a table to describe it to the model.
type SchemaFetcher struct {
	conn     Querier
	database string
	table    string
}

// NewSchemaFetcher returns a fetcher for database.table.
func NewSchemaFetcher(conn Querier, database, table string) *SchemaFetcher {
	if table == "" {
		table = TracesTable
	}
	return &SchemaFetcher{conn: conn, database: database, table: table}
}

// Columns lists the table columns in declaration order.
func (f *SchemaFetcher) Columns(ctx context.Context) ([]Column, error) {
	rows, err := f.conn.Query(ctx, `
		SELECT name, type, comment
		FROM system.columns
		WHERE database = $1 AND table = $2
		ORDER BY position
	`, f.database, f.table)
	if err != nil {
		return nil, fmt.Errorf("failed to query system.columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found or has no columns", f.database, f.table)
	}
	return cols, nil
}

// FetchSchema returns the table description in the format the prompt builder expects.
func (f *SchemaFetcher) FetchSchema(ctx context.Context) (string, error) {
	cols, err := f.Columns(ctx)
	if err != nil {
		return "", err
	}
	return FormatSchema(f.table, cols), nil
}

// FormatSchema renders a table description.
func FormatSchema(table string, cols []Column) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table %s:", table)
	for _, c := range cols {
		fmt.Fprintf(&sb, "\n- %s %s", c.Name, c.Type)
		if c.Comment != "" {
			fmt.Fprintf(&sb, ": %s", c.Comment)
		}
	}
	return sb.String()
}

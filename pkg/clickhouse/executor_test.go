package clickhouse

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/pathsql/pkg/execution"
)

type mockQuerier struct {
	queryErr error
	rows     *mockRows
	queries  []string
	args     [][]any
	execs    []string
}

func (m *mockQuerier) Query(_ context.Context, query string, args ...any) (driver.Rows, error) {
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

func (m *mockQuerier) Exec(_ context.Context, query string, _ ...any) error {
	m.execs = append(m.execs, query)
	return nil
}

func (m *mockQuerier) Ping(_ context.Context) error { return nil }

type mockColumnType struct {
	name     string
	dbType   string
	scanType reflect.Type
}

func (c mockColumnType) Name() string             { return c.name }
func (c mockColumnType) Nullable() bool           { return false }
func (c mockColumnType) ScanType() reflect.Type   { return c.scanType }
func (c mockColumnType) DatabaseTypeName() string { return c.dbType }

type mockRows struct {
	types   []driver.ColumnType
	data    [][]any
	index   int
	iterErr error
}

func (m *mockRows) Next() bool {
	if m.index >= len(m.data) {
		return false
	}
	m.index++
	return true
}

func (m *mockRows) Scan(dest ...any) error {
	if m.index == 0 || m.index > len(m.data) {
		return errors.New("no current row")
	}
	row := m.data[m.index-1]
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (m *mockRows) Close() error { return nil }
func (m *mockRows) Columns() []string {
	names := make([]string, len(m.types))
	for i, t := range m.types {
		names[i] = t.Name()
	}
	return names
}
func (m *mockRows) ColumnTypes() []driver.ColumnType { return m.types }
func (m *mockRows) Err() error                       { return m.iterErr }
func (m *mockRows) Totals(_ ...any) error            { return nil }
func (m *mockRows) ScanStruct(_ any) error           { return nil }

func serviceCountRows(n int) *mockRows {
	rows := &mockRows{types: []driver.ColumnType{
		mockColumnType{name: "service_name", dbType: "String", scanType: reflect.TypeOf("")},
		mockColumnType{name: "request_count", dbType: "UInt64", scanType: reflect.TypeOf(uint64(0))},
	}}
	for i := range n {
		rows.data = append(rows.data, []any{"svc", uint64(i)})
	}
	return rows
}

func TestExecutor_Execute(t *testing.T) {
	q := &mockQuerier{rows: serviceCountRows(3)}
	e := NewExecutor(q, nil)

	res, err := e.Execute(t.Context(), "SELECT service_name, count() AS request_count FROM traces GROUP BY service_name", execution.Limits{})
	require.NoError(t, err)
	require.Equal(t, 3, res.RowCount)
	require.False(t, res.Truncated)
	require.Equal(t, []string{"service_name", "request_count"}, res.ColumnNames())
	require.Equal(t, []execution.Column{{Name: "service_name", Type: "String"}, {Name: "request_count", Type: "UInt64"}}, res.Columns)
	require.Equal(t, []any{"svc", uint64(2)}, res.Rows[2])
}

func TestExecutor_TruncatesAtMaxRows(t *testing.T) {
	q := &mockQuerier{rows: serviceCountRows(10)}
	res, err := NewExecutor(q, nil).Execute(t.Context(), "SELECT 1 FROM traces", execution.Limits{MaxRows: 4})
	require.NoError(t, err)
	require.Equal(t, 4, res.RowCount)
	require.Len(t, res.Rows, 4)
	require.True(t, res.Truncated)
}

func TestExecutor_RejectsForbiddenVerbs(t *testing.T) {
	q := &mockQuerier{rows: serviceCountRows(1)}
	_, err := NewExecutor(q, nil).Execute(t.Context(), "SELECT 1 FROM t; DROP TABLE traces", execution.Limits{})
	var ee *execution.Error
	require.ErrorAs(t, err, &ee)
	require.Contains(t, ee.Message, "DROP")
	require.Empty(t, q.queries)
}

func TestExecutor_SendsVerbInsideLiteral(t *testing.T) {
	q := &mockQuerier{rows: serviceCountRows(1)}
	sql := "SELECT service_name, count() FROM traces WHERE attributes['db.operation'] = 'INSERT' GROUP BY service_name"
	_, err := NewExecutor(q, nil).Execute(t.Context(), sql, execution.Limits{})
	require.NoError(t, err)
	require.Equal(t, []string{sql}, q.queries)
}

func TestExecutor_ClassifiesEngineErrors(t *testing.T) {
	q := &mockQuerier{queryErr: &clickhouse.Exception{Code: 62, Message: "Syntax error: failed at position 80 ('HAVING')"}}
	_, err := NewExecutor(q, nil).Execute(t.Context(), "SELECT a FROM t ORDER BY a HAVING a > 1", execution.Limits{})
	var ee *execution.Error
	require.ErrorAs(t, err, &ee)
	require.Equal(t, execution.SyntaxError, ee.Code)
	require.EqualValues(t, 62, ee.EngineCode)
}

func TestExecutor_IterationError(t *testing.T) {
	rows := serviceCountRows(1)
	rows.iterErr = &clickhouse.Exception{Code: 241, Message: "Memory limit (for query) exceeded"}
	_, err := NewExecutor(&mockQuerier{rows: rows}, nil).Execute(t.Context(), "SELECT 1 FROM t", execution.Limits{})
	var ee *execution.Error
	require.ErrorAs(t, err, &ee)
	require.Equal(t, execution.MemoryLimitExceeded, ee.Code)
}

func TestQuerySettings(t *testing.T) {
	s := QuerySettings(execution.Limits{MaxRows: 50, MaxExecutionTime: 5 * time.Second, MaxMemoryBytes: 1 << 20})
	require.Equal(t, clickhouse.Settings{
		"readonly":             2,
		"max_execution_time":   5,
		"max_memory_usage":     int64(1 << 20),
		"max_result_rows":      50,
		"result_overflow_mode": "break",
	}, s)

	d := QuerySettings(execution.Limits{})
	require.Equal(t, 30, d["max_execution_time"])
	require.Equal(t, int64(1<<30), d["max_memory_usage"])
	require.Equal(t, 1000, d["max_result_rows"])

	for _, tc := range []struct {
		limit time.Duration
		want  int
	}{
		{500 * time.Millisecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{2 * time.Second, 2},
	} {
		s := QuerySettings(execution.Limits{MaxExecutionTime: tc.limit})
		require.Equal(t, tc.want, s["max_execution_time"], "limit %s", tc.limit)
	}
}

func TestSchemaFetcher(t *testing.T) {
	rows := &mockRows{
		types: []driver.ColumnType{
			mockColumnType{name: "name", scanType: reflect.TypeOf("")},
			mockColumnType{name: "type", scanType: reflect.TypeOf("")},
			mockColumnType{name: "comment", scanType: reflect.TypeOf("")},
		},
		data: [][]any{
			{"service_name", "LowCardinality(String)", ""},
			{"duration_ns", "UInt64", "span duration in nanoseconds"},
		},
	}
	q := &mockQuerier{rows: rows}
	schema, err := NewSchemaFetcher(q, "otel", "").FetchSchema(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Table traces:\n- service_name LowCardinality(String)\n- duration_ns UInt64: span duration in nanoseconds", schema)
	require.Equal(t, []any{"otel", "traces"}, q.args[0])
}

func TestSchemaFetcher_MissingTable(t *testing.T) {
	q := &mockQuerier{rows: &mockRows{}}
	_, err := NewSchemaFetcher(q, "otel", "spans").FetchSchema(t.Context())
	require.ErrorContains(t, err, "otel.spans not found")
}

func TestCreateTracesTable(t *testing.T) {
	q := &mockQuerier{}
	require.NoError(t, CreateTracesTable(t.Context(), q, "otel"))
	require.Len(t, q.execs, 1)
	require.Contains(t, q.execs[0], "CREATE TABLE IF NOT EXISTS otel.traces")
}

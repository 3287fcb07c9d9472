package sqlvalidate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	queries := []string{
		"SELECT service_name, count(*) FROM traces WHERE service_name IN ('a','b') GROUP BY service_name",
		"select 1 from system.one",
		`WITH per_service AS (
    SELECT service_name, quantile(0.95)(duration_ns) AS p95 FROM traces GROUP BY service_name
)
SELECT * FROM per_service ORDER BY p95 DESC`,
		"SELECT t1.trace_id FROM traces t1 JOIN traces t2 ON t1.trace_id = t2.trace_id",
		"SELECT service_name, row_number() OVER (PARTITION BY service_name ORDER BY start_time) FROM traces",
		"SELECT updated_at, created_by FROM traces",
		"-- generated\n-- error: DROP is not allowed\nSELECT count() FROM traces",
		"SELECT '--not a comment', 1 FROM traces",
		"SELECT trace_id FROM traces WHERE attributes['db.operation'] = 'INSERT'",
		"SELECT count() FROM traces WHERE service_name = 'drop' OR span_name = 'Update cart'",
		"SELECT 'it''s a DELETE', 1 FROM traces",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			res := Validate(q)
			require.True(t, res.Valid, res.Reasons)
			require.Empty(t, res.Error())
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		reason string
	}{
		{name: "empty", sql: "", reason: "query is empty"},
		{name: "only whitespace", sql: "  \n\t", reason: "query is empty"},
		{name: "only comments", sql: "-- SELECT x FROM y\n/* nothing */", reason: "query is empty"},
		{name: "no select", sql: "SHOW TABLES FROM default", reason: "missing SELECT"},
		{name: "no from", sql: "SELECT 1", reason: "missing FROM"},
		{name: "drop then select", sql: "DROP TABLE traces; SELECT * FROM traces", reason: "forbidden operation DROP"},
		{name: "lowercase delete", sql: "select * from traces; delete from traces where 1", reason: "forbidden operation DELETE"},
		{name: "mixed case truncate", sql: "SELECT 1 FROM t; TrUnCaTe TABLE t", reason: "forbidden operation TRUNCATE"},
		{name: "alter after newline", sql: "SELECT 1 FROM t;\n\tALTER TABLE t DELETE WHERE 1", reason: "forbidden operation ALTER"},
		{name: "create", sql: "CREATE TABLE x AS SELECT * FROM traces", reason: "forbidden operation CREATE"},
		{name: "insert select", sql: "INSERT INTO x SELECT * FROM traces", reason: "forbidden operation INSERT"},
		{name: "update", sql: "SELECT 1 FROM t WHERE 1;UPDATE t SET a=1", reason: "forbidden operation UPDATE"},
		{name: "verb after literal", sql: "SELECT 'x' FROM traces; DROP TABLE traces", reason: "forbidden operation DROP"},
		{name: "verb after escaped quote", sql: `SELECT 'a\'' FROM t; DELETE FROM t WHERE 1`, reason: "forbidden operation DELETE"},
		{name: "verb as quoted identifier", sql: "SELECT `drop` FROM traces", reason: "forbidden operation DROP"},
		{name: "from only inside literal", sql: "SELECT 'FROM traces'", reason: "missing FROM"},
		{name: "comment hides nothing after block", sql: "SELECT 1 FROM t /* x */ ; DROP TABLE t", reason: "forbidden operation DROP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.sql)
			require.False(t, res.Valid)
			require.Contains(t, res.Reasons, tt.reason)
			require.False(t, IsValid(tt.sql))
		})
	}
}

func TestValidate_ReasonsNameEveryToken(t *testing.T) {
	res := Validate("DROP TABLE a; DELETE FROM b; INSERT INTO c SELECT 1 FROM d")
	require.Equal(t, []string{
		"forbidden operation DROP",
		"forbidden operation DELETE",
		"forbidden operation INSERT",
	}, res.Reasons)
	require.Equal(t, "forbidden operation DROP; forbidden operation DELETE; forbidden operation INSERT", res.Error())
}

func TestForbiddenVerbs(t *testing.T) {
	require.Empty(t, ForbiddenVerbs("SELECT 1 FROM t -- DROP"))
	require.Empty(t, ForbiddenVerbs("SELECT 1 FROM t WHERE op = 'INSERT'"))
	require.Equal(t, []string{"DROP", "UPDATE"}, ForbiddenVerbs("update t; drop table t"))
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "line comment", in: "SELECT 1 -- trailing\nFROM t", want: "SELECT 1 \nFROM t"},
		{name: "comment at end", in: "SELECT 1 FROM t -- end", want: "SELECT 1 FROM t "},
		{name: "block comment", in: "SELECT /* a\nb */ 1 FROM t", want: "SELECT   1 FROM t"},
		{name: "unterminated block", in: "SELECT 1 FROM t /* open", want: "SELECT 1 FROM t  "},
		{name: "dashes in string", in: "SELECT '--x' FROM t", want: "SELECT '--x' FROM t"},
		{name: "doubled quote", in: "SELECT 'it''s -- fine' FROM t -- gone", want: "SELECT 'it''s -- fine' FROM t "},
		{name: "escaped quote", in: `SELECT 'a\'--b' FROM t`, want: `SELECT 'a\'--b' FROM t`},
		{name: "block marker in identifier", in: "SELECT `/*col*/` FROM t", want: "SELECT `/*col*/` FROM t"},
		{name: "double quoted identifier", in: `SELECT "a--b" FROM t`, want: `SELECT "a--b" FROM t`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripComments(tt.in))
		})
	}
}

func TestStripLiterals(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "SELECT a FROM t WHERE b = 'DROP'", want: "SELECT a FROM t WHERE b = ''"},
		{name: "doubled quote", in: "SELECT 'it''s' FROM t", want: "SELECT '' FROM t"},
		{name: "escaped quote", in: `SELECT 'a\'b', c FROM t`, want: "SELECT '', c FROM t"},
		{name: "identifiers kept", in: "SELECT `x`, \"y\" FROM t", want: "SELECT `x`, \"y\" FROM t"},
		{name: "unterminated", in: "SELECT 'open FROM t", want: "SELECT ''"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, StripLiterals(tt.in))
		})
	}
}

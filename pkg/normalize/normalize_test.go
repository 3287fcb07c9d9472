package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/pathsql/pkg/capability"
)

func TestNormalize_SQLSpecialized(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare", raw: "SELECT count() FROM traces", want: "SELECT count() FROM traces"},
		{name: "fenced with tag", raw: "```sql\nSELECT count() FROM traces\n```", want: "SELECT count() FROM traces"},
		{name: "fenced with prose", raw: "Here you go:\n```\nSELECT 1 FROM t\n```\nHope that helps", want: "SELECT 1 FROM t"},
		{name: "unterminated fence", raw: "```sql\nSELECT 1 FROM t", want: "SELECT 1 FROM t"},
		{name: "sql label line", raw: "sql\nSELECT 1 FROM t", want: "SELECT 1 FROM t"},
		{name: "inline fence", raw: "```SELECT 1 FROM t```", want: "SELECT 1 FROM t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(tt.raw, capability.SQLSpecialized)
			require.NoError(t, err)
			require.Equal(t, tt.want, res.SQL)
			require.Equal(t, RawSQLDescription, res.Description)
			require.Equal(t, RawSQLReasoning, res.Reasoning)
			require.Nil(t, res.ExpectedColumns)
		})
	}
}

func TestNormalize_SQLSpecializedAnswersWithJSON(t *testing.T) {
	res, err := Normalize(`{"sql": "SELECT 1 FROM t", "description": "one"}`, capability.SQLSpecialized)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1 FROM t", res.SQL)
	require.Equal(t, "one", res.Description)
	require.Equal(t, RawSQLReasoning, res.Reasoning)
}

func TestNormalize_GeneralPurpose(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "strict json with column map",
			raw:  `{"sql":"SELECT service_name FROM traces","description":"d","expectedColumns":{"service_name":"String"},"reasoning":"r"}`,
			want: Result{SQL: "SELECT service_name FROM traces", Description: "d", ExpectedColumns: map[string]string{"service_name": "String"}, Reasoning: "r"},
		},
		{
			name: "column list",
			raw:  `{"sql":"SELECT a, b FROM t","expectedColumns":[{"name":"a","type":"UInt64"},{"name":"b","type":"Float64"}]}`,
			want: Result{SQL: "SELECT a, b FROM t", ExpectedColumns: map[string]string{"a": "UInt64", "b": "Float64"}},
		},
		{
			name: "non string column type",
			raw:  `{"sql":"SELECT a FROM t","expectedColumns":{"a":42}}`,
			want: Result{SQL: "SELECT a FROM t", ExpectedColumns: map[string]string{"a": "42"}},
		},
		{
			name: "object embedded in prose",
			raw:  "Sure! Here is the query:\n{\"sql\": \"SELECT 1 FROM t\", \"description\": \"has } brace\"}\nLet me know.",
			want: Result{SQL: "SELECT 1 FROM t", Description: "has } brace"},
		},
		{
			name: "body wrapper",
			raw:  `{"statusCode":200,"body":{"sql":"SELECT 2 FROM t","reasoning":"wrapped"}}`,
			want: Result{SQL: "SELECT 2 FROM t", Reasoning: "wrapped"},
		},
		{
			name: "body as encoded string",
			raw:  `{"body":"{\"sql\":\"SELECT 3 FROM t\"}"}`,
			want: Result{SQL: "SELECT 3 FROM t"},
		},
		{
			name: "broken json falls back to sql field",
			raw:  `{"sql": "SELECT a,\n  b FROM \"t\"", "description": "trailing comma",}`,
			want: Result{SQL: "SELECT a,\n  b FROM \"t\""},
		},
		{
			name: "leading sql label in field",
			raw:  `{"sql":"sql\nSELECT 4 FROM t"}`,
			want: Result{SQL: "SELECT 4 FROM t"},
		},
		{
			name: "sql field holding another response",
			raw:  `{"sql":"{\"sql\":\"SELECT 5 FROM t\",\"reasoning\":\"inner\"}","description":"outer"}`,
			want: Result{SQL: "SELECT 5 FROM t", Description: "outer", Reasoning: "inner"},
		},
		{
			name: "raw sql from a general model",
			raw:  "WITH x AS (SELECT 1 AS a) SELECT a FROM x",
			want: Result{SQL: "WITH x AS (SELECT 1 AS a) SELECT a FROM x", Description: RawSQLDescription, Reasoning: RawSQLReasoning},
		},
		{
			name: "fenced sql from a general model",
			raw:  "```sql\nSELECT 6 FROM t\n```",
			want: Result{SQL: "SELECT 6 FROM t", Description: RawSQLDescription, Reasoning: RawSQLReasoning},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize(tt.raw, capability.GeneralPurpose)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, res); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		class capability.Class
	}{
		{name: "empty general", raw: "", class: capability.GeneralPurpose},
		{name: "empty specialized", raw: "  \n", class: capability.SQLSpecialized},
		{name: "empty fence", raw: "```sql\n```", class: capability.SQLSpecialized},
		{name: "null sql", raw: `{"sql": null, "description": "nothing"}`, class: capability.GeneralPurpose},
		{name: "empty sql", raw: `{"sql": "   "}`, class: capability.GeneralPurpose},
		{name: "prose", raw: "I am unable to write that query.", class: capability.GeneralPurpose},
		{name: "selection is not select", raw: "Selection of services follows", class: capability.GeneralPurpose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tt.class)
			var perr *ResponseParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			require.Equal(t, tt.class, perr.Class)
		})
	}
}

func TestResponseParseError_PreviewIsBounded(t *testing.T) {
	raw := strings.Repeat("x", 500)
	_, err := Normalize(raw, capability.GeneralPurpose)
	var perr *ResponseParseError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Preview, previewLen+3)
	require.Contains(t, perr.Error(), "general-purpose")
}

func TestNormalize_FenceIdempotent(t *testing.T) {
	bodies := []string{
		`{"sql":"SELECT 1 FROM t","description":"d","expectedColumns":{"x":"UInt8"},"reasoning":"r"}`,
		"SELECT service_name, count() FROM traces GROUP BY service_name",
		`{"body":{"sql":"SELECT 2 FROM t"}}`,
	}
	for _, class := range []capability.Class{capability.GeneralPurpose, capability.SQLSpecialized} {
		for _, body := range bodies {
			plain, err := Normalize(body, class)
			require.NoError(t, err)
			for _, fenced := range []string{
				"```\n" + body + "\n```",
				"```json\n" + body + "\n```",
				"Answer:\n```sql\n" + body + "\n```\n",
			} {
				got, err := Normalize(fenced, class)
				require.NoError(t, err)
				if diff := cmp.Diff(plain, got); diff != "" {
					t.Fatalf("%s: fenced result differs (-plain +fenced):\n%s", class, diff)
				}
			}
		}
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	results := []Result{
		{SQL: "SELECT 1 FROM t"},
		{
			SQL:             "SELECT service_name, quantile(0.95)(duration_ns) AS p95\nFROM traces\nWHERE service_name IN ('a', 'b''c')\nGROUP BY service_name",
			Description:     "p95 per service <fast & slow>",
			ExpectedColumns: map[string]string{"service_name": "String", "p95": "Float64"},
			Reasoning:       "Uses \"quantile\" with a tab\tand unicode é",
		},
	}
	for _, r := range results {
		encoded, err := Serialize(r)
		require.NoError(t, err)
		got, err := Normalize(encoded, capability.GeneralPurpose)
		require.NoError(t, err)
		if diff := cmp.Diff(r, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/execution"
)

func checkoutPath() criticalpath.CriticalPath {
	return criticalpath.CriticalPath{
		ID:       "checkout",
		Name:     "Checkout Flow",
		Services: []string{"frontend", "cart", "payment"},
		Edges:    []criticalpath.Edge{{Source: "frontend", Target: "cart"}, {Source: "cart", Target: "payment"}},
		Metrics:  &criticalpath.PathMetrics{RequestCount: 1200, P95Ms: 340.5, ErrorRate: 0.0125},
		Priority: criticalpath.PriorityCritical,
	}
}

func TestBuild_SQLSpecialized(t *testing.T) {
	goal := criticalpath.NewGoal("latency", "p95 per hop")
	p := Build(checkoutPath(), goal, capability.SQLSpecialized)

	require.Contains(t, p, "latency: p95 per hop")
	require.Contains(t, p, "Services: ['frontend', 'cart', 'payment']")
	require.Contains(t, p, "service_name IN ('frontend', 'cart', 'payment')")
	require.Contains(t, p, "Answer with SQL only.")
	require.Contains(t, p, "quantile(0.95)(duration_ns)")
	require.Contains(t, p, "Table traces")
	require.NotContains(t, p, "JSON Schema")
	require.NotContains(t, p, "$SERVICES")
}

func TestBuild_GeneralPurpose(t *testing.T) {
	goal := criticalpath.NewGoal("errors", "which hop fails most")
	p := Build(checkoutPath(), goal, capability.GeneralPurpose)

	require.Contains(t, p, "- Type: errors")
	require.Contains(t, p, "- Description: which hop fails most")
	require.Contains(t, p, "- Priority: critical")
	require.Contains(t, p, "- Service chain: frontend -> cart -> payment")
	require.Contains(t, p, "  - cart -> payment")
	require.Contains(t, p, "| p95 (ms) | 340.50 |")
	require.Contains(t, p, "| error rate | 0.0125 |")
	require.Contains(t, p, "countIf(status_code = 'ERROR')")
	require.Contains(t, p, "`expectedColumns`")
	require.Contains(t, p, `"expectedColumns"`)
	require.Contains(t, p, `"reasoning"`)
}

func TestBuild_OmitsMissingMetrics(t *testing.T) {
	path := criticalpath.CriticalPath{ID: "search", Services: []string{"frontend", "search"}}
	p := Build(path, criticalpath.AnalysisGoal{}, capability.GeneralPurpose)
	require.NotContains(t, p, "Observed traffic")
	require.NotContains(t, p, "Priority")
	require.Contains(t, p, "- Name: search")
	require.Contains(t, p, "- Type: custom")
	require.Contains(t, p, "- Entry service: frontend")
	require.Contains(t, p, "- Terminal service: search")
}

func TestBuild_Deterministic(t *testing.T) {
	goal := criticalpath.NewGoal("bottlenecks", "")
	for _, class := range []capability.Class{capability.SQLSpecialized, capability.GeneralPurpose} {
		first := Build(checkoutPath(), goal, class)
		for range 5 {
			require.Equal(t, first, Build(checkoutPath(), goal, class))
		}
	}
}

func TestBuild_EscapesServiceNames(t *testing.T) {
	path := criticalpath.CriticalPath{
		ID:       "inject",
		Services: []string{"frontend' OR '1'='1", "cart"},
		Edges:    []criticalpath.Edge{{Source: "frontend' OR '1'='1", Target: "cart"}},
	}
	for _, class := range []capability.Class{capability.SQLSpecialized, capability.GeneralPurpose} {
		p := Build(path, criticalpath.NewGoal("latency", ""), class)
		require.Contains(t, p, "'frontend'' OR ''1''=''1', 'cart'")
		require.NotContains(t, strings.ReplaceAll(p, "''", ""), "frontend' OR")
	}
}

func TestWithSchema(t *testing.T) {
	custom := "Table spans:\n- svc String"
	p := Build(checkoutPath(), criticalpath.NewGoal("latency", ""), capability.SQLSpecialized, WithSchema(custom))
	require.Contains(t, p, custom)
	require.NotContains(t, p, "Table traces")

	p = Build(checkoutPath(), criticalpath.NewGoal("latency", ""), capability.SQLSpecialized, WithSchema("  "))
	require.Contains(t, p, "Table traces")
}

func TestResponseSchema(t *testing.T) {
	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(ResponseSchema()), &s))
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	for _, field := range []string{"sql", "description", "expectedColumns", "reasoning"} {
		require.Contains(t, props, field)
	}
}

func TestBuildRepair(t *testing.T) {
	in := RepairInput{
		Path:         checkoutPath(),
		Goal:         criticalpath.NewGoal("latency", "p95 per hop"),
		Class:        capability.GeneralPurpose,
		PreviousSQL:  "SELECT service_name, count() AS request_count FROM traces GROUP BY service_name ORDER BY request_count DESC HAVING request_count > 100",
		ErrorCode:    execution.SyntaxError,
		ErrorMessage: "Syntax error: failed at position 98 ('HAVING')",
		Attempt:      1,
		MaxAttempts:  3,
	}
	p := BuildRepair(in)
	require.Contains(t, p, "Attempt 1 of 3")
	require.Contains(t, p, "latency: p95 per hop")
	require.Contains(t, p, in.PreviousSQL)
	require.Contains(t, p, "- Class: SYNTAX_ERROR")
	require.Contains(t, p, "- Message: Syntax error: failed at position 98 ('HAVING')")
	require.Contains(t, p, "HAVING must come before ORDER BY")
	require.Contains(t, p, "service_name IN ('frontend', 'cart', 'payment')")

	in.Class = capability.SQLSpecialized
	in.ErrorCode = execution.NotAnAggregate
	p = BuildRepair(in)
	require.Contains(t, p, "NOT_AN_AGGREGATE: Syntax error")
	require.Contains(t, p, "must appear in GROUP BY")
	require.Contains(t, p, "Answer with the corrected SQL only.")
	require.NotContains(t, p, "JSON object")
}

func TestHintsFor(t *testing.T) {
	for _, code := range []execution.ErrorCode{
		execution.SyntaxError, execution.UnknownIdentifier, execution.NotAnAggregate,
		execution.Timeout, execution.MemoryLimitExceeded, execution.UnknownExecutionError,
	} {
		require.NotEmpty(t, HintsFor(code), code)
	}
	require.Empty(t, HintsFor("OTHER"))
}

func TestBuildParseRetry(t *testing.T) {
	original := Build(checkoutPath(), criticalpath.NewGoal("throughput", ""), capability.GeneralPurpose)
	p := BuildParseRetry(original, capability.GeneralPurpose)
	require.True(t, strings.HasSuffix(p, original))
	require.Contains(t, p, `non-empty "sql" field`)

	p = BuildParseRetry("PROMPT", capability.SQLSpecialized)
	require.Contains(t, p, "SELECT statement only")
	require.True(t, strings.HasSuffix(p, "PROMPT\n"))
}

func TestSystem(t *testing.T) {
	require.Contains(t, System(capability.SQLSpecialized), "nothing else")
	require.Contains(t, System(capability.GeneralPurpose), "JSON object")
}

func TestExamplesFor(t *testing.T) {
	for _, g := range criticalpath.GoalTypes {
		ex := ExamplesFor(g, "'a'")
		require.NotEmpty(t, ex)
		for _, e := range ex {
			require.Contains(t, e.SQL, "IN ('a')")
		}
	}
	require.Len(t, ExamplesFor(criticalpath.GoalCustom, "'a'"), 1)
}

package prompt

import (
	"strings"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/execution"
)

// RepairInput is everything the model needs to fix a failed query.
type RepairInput struct {
	Path         criticalpath.CriticalPath
	Goal         criticalpath.AnalysisGoal
	Class        capability.Class
	PreviousSQL  string
	ErrorCode    execution.ErrorCode
	ErrorMessage string
	Attempt      int
	MaxAttempts  int
}

var hints = map[execution.ErrorCode][]string{
	execution.SyntaxError: {
		"Clause order is SELECT, FROM, WHERE, GROUP BY, HAVING, ORDER BY, LIMIT. HAVING must come before ORDER BY.",
		"Check for unbalanced parentheses, missing commas and trailing commas before FROM.",
		"String literals use single quotes.",
	},
	execution.UnknownIdentifier: {
		"Use only the tables and columns listed in the schema.",
		"Use ClickHouse function names, for example quantile(0.95)(x) rather than percentile_cont.",
		"Double quotes denote identifiers in ClickHouse. Use single quotes for string values.",
	},
	execution.NotAnAggregate: {
		"Every selected column that is not inside an aggregate function must appear in GROUP BY.",
		"Alternatively wrap the column in an aggregate such as any() or max().",
	},
	execution.Timeout: {
		"Narrow the time window with a tighter filter on start_time.",
		"Aggregate before joining and avoid self-joins over the whole table.",
	},
	execution.MemoryLimitExceeded: {
		"Reduce GROUP BY cardinality, for example by dropping trace_id or span_id from the grouping.",
		"Prefer approximate functions such as uniq and quantile over uniqExact and quantileExact.",
		"Narrow the time window with a tighter filter on start_time.",
	},
	execution.UnknownExecutionError: {
		"Re-check the query against the schema and simplify it.",
	},
}

// HintsFor returns the repair hints for an error class.
func HintsFor(code execution.ErrorCode) []string {
	return hints[code]
}

// BuildRepair renders the prompt asking the model to fix a query that failed to execute.
func BuildRepair(in RepairInput, opts ...Option) string {
	o := buildOptions(opts)
	data := newGenerateData(in.Path, in.Goal, o)
	maxAttempts := in.MaxAttempts
	if maxAttempts < in.Attempt {
		maxAttempts = in.Attempt
	}
	return render("repair.md", struct {
		generateData
		PreviousSQL  string
		ErrorCode    execution.ErrorCode
		ErrorMessage string
		Hints        []string
		Attempt      int
		MaxAttempts  int
	}{
		generateData: withClass(data, in.Class),
		PreviousSQL:  strings.TrimSpace(in.PreviousSQL),
		ErrorCode:    in.ErrorCode,
		ErrorMessage: strings.TrimSpace(in.ErrorMessage),
		Hints:        HintsFor(in.ErrorCode),
		Attempt:      in.Attempt,
		MaxAttempts:  maxAttempts,
	})
}

func withClass(d generateData, class capability.Class) generateData {
	d.SQLOnly = class == capability.SQLSpecialized
	return d
}

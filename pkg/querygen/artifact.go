package querygen

import (
	"time"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/evaluator"
	"github.com/malbeclabs/pathsql/pkg/gateway"
)

// Artifact is a generated query with its provenance.
type Artifact struct {
	ID          string
	Name        string
	Description string

	// SQL is the query with its provenance comment block. RawSQL is the bare query.
	SQL    string
	RawSQL string

	ExpectedColumns map[string]string
	Reasoning       string

	Model       string
	Class       capability.Class
	Usage       gateway.Usage
	Latency     time.Duration
	RetryCount  int
	Cached      bool
	GeneratedAt time.Time

	Path criticalpath.CriticalPath
	Goal criticalpath.AnalysisGoal

	// Evaluation is set when the query went through the repair loop.
	Evaluation *evaluator.Result
}

// Resolved reports whether the query is known to execute. Queries that were never executed report
// false.
func (a *Artifact) Resolved() bool {
	return a.Evaluation != nil && a.Evaluation.Resolved
}

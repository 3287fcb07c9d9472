package evaluator

import (
	"time"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/execution"
	"github.com/malbeclabs/pathsql/pkg/gateway"
)

// DefaultMaxAttempts bounds executions per run when the request sets no bound.
const DefaultMaxAttempts = 3

// StopReason says why a run ended.
type StopReason string

const (
	StopValid             StopReason = "valid"
	StopMaxAttempts       StopReason = "max_attempts"
	StopGatewayError      StopReason = "gateway_error"
	StopUnparseableRepair StopReason = "unparseable_repair"
	StopRejectedRepair    StopReason = "rejected_repair"
	StopCancelled         StopReason = "cancelled"
)

// SuccessInfo describes a successful execution.
type SuccessInfo struct {
	RowCount      int
	Columns       []string
	Truncated     bool
	ExecutionTime time.Duration
}

// Attempt is one execution of a candidate query. Exactly one of Error and Success is set.
type Attempt struct {
	Number  int
	SQL     string
	Valid   bool
	Error   *execution.Error
	Success *SuccessInfo
}

// Optimization is a repair the model applied between two attempts.
type Optimization struct {
	// Attempt is the number of the failed attempt this repair addresses.
	Attempt     int
	Explanation string
	Changes     []string
}

// RepairContext is the original generation context carried into every repair prompt.
type RepairContext struct {
	Path        criticalpath.CriticalPath
	Goal        criticalpath.AnalysisGoal
	Model       string
	Class       capability.Class
	Preferences gateway.Preferences
}

// Request is the input to Optimize.
type Request struct {
	InitialSQL  string
	Context     RepairContext
	MaxAttempts int
}

// Result is the outcome of a run.
type Result struct {
	FinalSQL      string
	Attempts      []Attempt
	Optimizations []Optimization
	Resolved      bool
	StopReason    StopReason

	// StopError is the gateway, parse or validation failure that ended the run early.
	StopError error

	// RepairUsage sums the token usage of repair calls.
	RepairUsage gateway.Usage
}

// LastAttempt returns the most recent attempt, or nil when nothing was executed.
func (r *Result) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

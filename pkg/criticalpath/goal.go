package criticalpath

import "strings"

// GoalType enumerates the kinds of analysis a generated query can target.
type GoalType string

const (
	GoalLatency     GoalType = "latency"
	GoalErrors      GoalType = "errors"
	GoalBottlenecks GoalType = "bottlenecks"
	GoalThroughput  GoalType = "throughput"
	GoalComparison  GoalType = "comparison"
	GoalCustom      GoalType = "custom"
)

// GoalTypes lists every known goal type in a stable order.
var GoalTypes = []GoalType{GoalLatency, GoalErrors, GoalBottlenecks, GoalThroughput, GoalComparison, GoalCustom}

// ParseGoalType matches s case-insensitively against the known goal types. Anything else is
// treated as a custom goal.
func ParseGoalType(s string) GoalType {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "error", "error-rate", "error_rate":
		return GoalErrors
	case "bottleneck":
		return GoalBottlenecks
	case "time-comparison", "time_comparison", "compare":
		return GoalComparison
	}
	for _, t := range GoalTypes {
		if string(t) == s {
			return t
		}
	}
	return GoalCustom
}

// AnalysisGoal describes what the generated query must reveal.
type AnalysisGoal struct {
	Type        GoalType `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
}

// NewGoal builds a goal from a type string and free-text description.
func NewGoal(goalType, description string) AnalysisGoal {
	return AnalysisGoal{Type: ParseGoalType(goalType), Description: strings.TrimSpace(description)}
}

// Kind returns the goal type, defaulting to custom when unset.
func (g AnalysisGoal) Kind() GoalType {
	if g.Type == "" {
		return GoalCustom
	}
	return ParseGoalType(string(g.Type))
}

// Summary is a short human-readable rendering used in logs and provenance comments.
func (g AnalysisGoal) Summary() string {
	if g.Description == "" {
		return string(g.Kind())
	}
	return string(g.Kind()) + ": " + g.Description
}

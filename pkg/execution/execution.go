// Package execution defines the contract between the repair loop and the analytics backend that
// serves as its correctness oracle.
package execution

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxRows          = 1000
	DefaultMaxExecutionTime = 30 * time.Second
	DefaultMaxMemoryBytes   = int64(1 << 30)
)

// Limits bound a single query execution. Backends enforce them at the engine level.
type Limits struct {
	MaxRows          int
	MaxExecutionTime time.Duration
	MaxMemoryBytes   int64
	ReadOnly         bool
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxRows:          DefaultMaxRows,
		MaxExecutionTime: DefaultMaxExecutionTime,
		MaxMemoryBytes:   DefaultMaxMemoryBytes,
		ReadOnly:         true,
	}
}

// WithDefaults fills zero fields from DefaultLimits. ReadOnly is always forced on.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRows <= 0 {
		l.MaxRows = d.MaxRows
	}
	if l.MaxExecutionTime <= 0 {
		l.MaxExecutionTime = d.MaxExecutionTime
	}
	if l.MaxMemoryBytes <= 0 {
		l.MaxMemoryBytes = d.MaxMemoryBytes
	}
	l.ReadOnly = true
	return l
}

// Column describes a result column.
type Column struct {
	Name string
	Type string
}

// Result is a successful execution.
type Result struct {
	Columns       []Column
	Rows          [][]any
	RowCount      int
	Truncated     bool
	ExecutionTime time.Duration
}

// ColumnNames returns the result column names in order.
func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Executor runs one read-only statement under the given limits.
type Executor interface {
	Execute(ctx context.Context, sql string, limits Limits) (*Result, error)
}

// Error is a classified execution failure.
type Error struct {
	Code          ErrorCode
	EngineCode    int32
	Message       string
	ExecutionTime time.Duration
	Err           error
}

func (e *Error) Error() string {
	if e.EngineCode != 0 {
		return fmt.Sprintf("%s (engine code %d): %s", e.Code, e.EngineCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

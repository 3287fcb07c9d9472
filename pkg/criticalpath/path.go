// Package criticalpath holds the inputs to query generation: the service chain of a business
// transaction and the analysis goal a query must answer.
package criticalpath

import (
	"errors"
	"fmt"
	"strings"
)

// Priority ranks a critical path for analysis.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Edge is a directed call between two services on the path.
type Edge struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// PathMetrics are traffic statistics observed for the path, when known.
type PathMetrics struct {
	RequestCount int64   `yaml:"requestCount" json:"requestCount"`
	AvgLatencyMs float64 `yaml:"avgLatencyMs" json:"avgLatencyMs"`
	P50Ms        float64 `yaml:"p50Ms" json:"p50Ms"`
	P95Ms        float64 `yaml:"p95Ms" json:"p95Ms"`
	P99Ms        float64 `yaml:"p99Ms" json:"p99Ms"`
	ErrorRate    float64 `yaml:"errorRate" json:"errorRate"`
}

// CriticalPath is a named, ordered chain of services for one business transaction.
type CriticalPath struct {
	ID           string       `yaml:"id" json:"id"`
	Name         string       `yaml:"name" json:"name"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty"`
	Services     []string     `yaml:"services" json:"services"`
	StartService string       `yaml:"startService,omitempty" json:"startService,omitempty"`
	EndService   string       `yaml:"endService,omitempty" json:"endService,omitempty"`
	Edges        []Edge       `yaml:"edges,omitempty" json:"edges,omitempty"`
	Metrics      *PathMetrics `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Priority     Priority     `yaml:"priority,omitempty" json:"priority,omitempty"`
	Severity     float64      `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// Validate checks the path is usable for prompt construction.
func (p CriticalPath) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("critical path id is required")
	}
	if len(p.Services) == 0 {
		return fmt.Errorf("critical path %q has no services", p.ID)
	}
	for i, s := range p.Services {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("critical path %q has an empty service name at position %d", p.ID, i)
		}
	}
	switch p.Priority {
	case "", PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("critical path %q has unknown priority %q", p.ID, p.Priority)
	}
	if p.Severity < 0 || p.Severity > 1 {
		return fmt.Errorf("critical path %q severity must be within [0, 1], got %v", p.ID, p.Severity)
	}
	return nil
}

// Start returns the entry service, defaulting to the first service in the chain.
func (p CriticalPath) Start() string {
	if p.StartService != "" {
		return p.StartService
	}
	if len(p.Services) == 0 {
		return ""
	}
	return p.Services[0]
}

// End returns the terminal service, defaulting to the last service in the chain.
func (p CriticalPath) End() string {
	if p.EndService != "" {
		return p.EndService
	}
	if len(p.Services) == 0 {
		return ""
	}
	return p.Services[len(p.Services)-1]
}

// DisplayName is the name if set, otherwise the id.
func (p CriticalPath) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

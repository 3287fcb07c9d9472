// Package gateway is the model gateway: a provider-neutral request/response contract, adapters for
// Anthropic and Ollama, and a router that picks the adapter by model name, retries transient
// failures and caches deterministic responses.
package gateway

import "context"

// TaskType labels what a request is for.
type TaskType string

const (
	TaskSQLGeneration TaskType = "sql_generation"
	TaskSQLRepair     TaskType = "sql_repair"
)

// Preferences are per-request model settings. Zero values defer to the provider defaults.
type Preferences struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
}

// Temp returns a pointer to t, for Preferences.Temperature.
func Temp(t float64) *float64 {
	return &t
}

// Request is a single prompt for a model.
type Request struct {
	Prompt      string
	System      string
	TaskType    TaskType
	Preferences Preferences
}

// Usage is the token accounting of a response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Metadata describes how a response was obtained.
type Metadata struct {
	Provider   string
	LatencyMs  int64
	RetryCount int
	Cached     bool
}

// Response is a model reply.
type Response struct {
	Content  string
	Model    string
	Usage    Usage
	Metadata Metadata
}

// Client sends a request to a model.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

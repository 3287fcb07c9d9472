// Package querygen orchestrates query generation: it resolves the model's capability class, builds
// the prompt, calls the gateway, normalizes and validates the reply, optionally drives the repair
// loop, and renders the result with provenance comments.
package querygen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/evaluator"
	"github.com/malbeclabs/pathsql/pkg/gateway"
	"github.com/malbeclabs/pathsql/pkg/metrics"
	"github.com/malbeclabs/pathsql/pkg/normalize"
	"github.com/malbeclabs/pathsql/pkg/prompt"
	"github.com/malbeclabs/pathsql/pkg/sqlvalidate"
)

// Optimizer runs the execute and repair loop on a generated query.
type Optimizer interface {
	Optimize(ctx context.Context, req evaluator.Request) (*evaluator.Result, error)
}

type Config struct {
	Logger   *slog.Logger
	Gateway  gateway.Client
	Registry *capability.Registry
	Clock    clockwork.Clock

	// Optimizer is required only by GenerateAndOptimize.
	Optimizer Optimizer

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// MaxAttempts bounds executions in the repair loop. Zero takes the evaluator default.
	MaxAttempts int

	PromptOptions []prompt.Option
}

func (cfg *Config) Validate() error {
	if cfg.Gateway == nil {
		return errors.New("gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = capability.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxAttempts < 0 {
		return errors.New("max attempts must not be negative")
	}
	return nil
}

// Generator produces query artifacts. It holds no per-request state and is safe for concurrent
// use.
type Generator struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate generator config: %w", err)
	}
	return &Generator{log: cfg.Logger, cfg: cfg}, nil
}

// Generate asks the model for a query answering goal over path. The returned artifact's SQL has
// passed validation but has not been executed.
func (g *Generator) Generate(ctx context.Context, path criticalpath.CriticalPath, goal criticalpath.AnalysisGoal, pref gateway.Preferences) (*Artifact, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("invalid critical path: %w", err)
	}

	pref = g.preferences(pref)
	if pref.Model == "" {
		return nil, &Error{Kind: KindGateway, Message: "no model configured", Err: &gateway.Error{Kind: gateway.ConfigurationError, Err: errors.New("model is required")}}
	}
	class := g.cfg.Registry.Resolve(pref.Model)
	log := g.log.With("path", path.ID, "goal", string(goal.Kind()), "model", pref.Model, "class", string(class))

	start := g.cfg.Clock.Now()
	a := &Artifact{
		ID:          fmt.Sprintf("%s-%s-%d", path.ID, goal.Kind(), start.UnixNano()),
		Name:        fmt.Sprintf("%s %s analysis", path.DisplayName(), goal.Kind()),
		Model:       pref.Model,
		Class:       class,
		GeneratedAt: start,
		Path:        path,
		Goal:        goal,
	}

	p := prompt.Build(path, goal, class, g.cfg.PromptOptions...)
	system := prompt.System(class)

	raw, err := g.call(ctx, a, p, system, pref)
	if err != nil {
		g.record(a, "gateway_error")
		return nil, &Error{Kind: KindGateway, Message: "model request failed", Err: err}
	}

	res, err := normalize.Normalize(raw, class)
	var parseErr *normalize.ResponseParseError
	if errors.As(err, &parseErr) {
		log.Warn("querygen: unparseable response, retrying once", "error", err)
		raw, err = g.call(ctx, a, prompt.BuildParseRetry(p, class), system, pref)
		if err != nil {
			g.record(a, "gateway_error")
			return nil, &Error{Kind: KindGateway, Message: "model request failed on parse retry", Err: err}
		}
		res, err = normalize.Normalize(raw, class)
	}
	if err != nil {
		g.record(a, "response_shape_error")
		return nil, &Error{Kind: KindResponseShape, Message: "no SQL found in model response", Err: err}
	}
	a.Latency = g.cfg.Clock.Since(start)

	if v := sqlvalidate.Validate(res.SQL); !v.Valid {
		g.record(a, "validation_error")
		return nil, &Error{Kind: KindValidation, Message: "generated query rejected", Reasons: v.Reasons, SQLFragment: fragment(res.SQL), Err: errors.New(v.Error())}
	}

	a.RawSQL = res.SQL
	a.Description = res.Description
	a.Reasoning = res.Reasoning
	a.ExpectedColumns = res.ExpectedColumns
	if err := g.render(a); err != nil {
		g.record(a, "validation_error")
		return nil, err
	}

	g.record(a, "success")
	log.Info("querygen: generated query", "id", a.ID, "tokens", a.Usage.TotalTokens, "latency", a.Latency, "cached", a.Cached)
	return a, nil
}

// GenerateAndOptimize generates a query and, when useEvaluator is set, executes and repairs it
// before rendering. An unresolved repair loop still returns the best-effort query; the provenance
// comments say so. On cancellation the partially evaluated artifact is returned with the error.
func (g *Generator) GenerateAndOptimize(ctx context.Context, path criticalpath.CriticalPath, goal criticalpath.AnalysisGoal, pref gateway.Preferences, useEvaluator bool) (*Artifact, error) {
	if useEvaluator && g.cfg.Optimizer == nil {
		return nil, errors.New("query optimization requested but no optimizer is configured")
	}

	a, err := g.Generate(ctx, path, goal, pref)
	if err != nil || !useEvaluator {
		return a, err
	}

	ev, optErr := g.cfg.Optimizer.Optimize(ctx, evaluator.Request{
		InitialSQL: a.RawSQL,
		Context: evaluator.RepairContext{
			Path:        path,
			Goal:        goal,
			Model:       a.Model,
			Class:       a.Class,
			Preferences: g.preferences(pref),
		},
		MaxAttempts: g.cfg.MaxAttempts,
	})
	if ev == nil {
		return nil, fmt.Errorf("failed to optimize query: %w", optErr)
	}

	a.Evaluation = ev
	a.RawSQL = ev.FinalSQL
	a.Usage.PromptTokens += ev.RepairUsage.PromptTokens
	a.Usage.CompletionTokens += ev.RepairUsage.CompletionTokens
	a.Usage.TotalTokens += ev.RepairUsage.TotalTokens
	if err := g.render(a); err != nil {
		return nil, err
	}
	if optErr != nil {
		return a, fmt.Errorf("failed to optimize query: %w", optErr)
	}

	if !ev.Resolved {
		g.log.Warn("querygen: query unresolved after repair loop", "id", a.ID, "attempts", len(ev.Attempts), "stop", ev.StopReason)
	}
	return a, nil
}

func (g *Generator) preferences(pref gateway.Preferences) gateway.Preferences {
	if pref.Model == "" {
		pref.Model = g.cfg.DefaultModel
	}
	profile := capability.ProfileFor(g.cfg.Registry.Resolve(pref.Model))
	if pref.MaxTokens <= 0 {
		pref.MaxTokens = profile.MaxTokens
	}
	if pref.Temperature == nil {
		pref.Temperature = gateway.Temp(profile.Temperature)
	}
	return pref
}

func (g *Generator) call(ctx context.Context, a *Artifact, p, system string, pref gateway.Preferences) (string, error) {
	resp, err := g.cfg.Gateway.Generate(ctx, gateway.Request{
		Prompt:      p,
		System:      system,
		TaskType:    gateway.TaskSQLGeneration,
		Preferences: pref,
	})
	if err != nil {
		return "", err
	}
	a.Usage.PromptTokens += resp.Usage.PromptTokens
	a.Usage.CompletionTokens += resp.Usage.CompletionTokens
	a.Usage.TotalTokens += resp.Usage.TotalTokens
	a.RetryCount += resp.Metadata.RetryCount
	a.Cached = resp.Metadata.Cached
	if resp.Model != "" {
		a.Model = resp.Model
	}
	return resp.Content, nil
}

// render sets a.SQL and checks the rendered text still passes validation.
func (g *Generator) render(a *Artifact) error {
	sql := Render(a)
	if v := sqlvalidate.Validate(sql); !v.Valid {
		return &Error{Kind: KindValidation, Message: "rendered query rejected", Reasons: v.Reasons, SQLFragment: fragment(a.RawSQL), Err: errors.New(v.Error())}
	}
	a.SQL = sql
	return nil
}

func (g *Generator) record(a *Artifact, status string) {
	metrics.RecordGeneration(a.Model, string(a.Class), status)
}

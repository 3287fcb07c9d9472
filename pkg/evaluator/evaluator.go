// Package evaluator drives the bounded execute, classify, repair loop that turns a first-draft
// query into one the database executes without error.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/pathsql/pkg/execution"
	"github.com/malbeclabs/pathsql/pkg/gateway"
	"github.com/malbeclabs/pathsql/pkg/metrics"
	"github.com/malbeclabs/pathsql/pkg/normalize"
	"github.com/malbeclabs/pathsql/pkg/prompt"
	"github.com/malbeclabs/pathsql/pkg/sqlvalidate"
)

type Config struct {
	Logger   *slog.Logger
	Executor execution.Executor
	Gateway  gateway.Client
	Clock    clockwork.Clock

	// Limits applies to every execution. Zero fields take the execution defaults.
	Limits execution.Limits

	// PromptOptions are passed to the repair prompt builder.
	PromptOptions []prompt.Option
}

func (cfg *Config) Validate() error {
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Gateway == nil {
		return errors.New("gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	return nil
}

// Optimizer runs the repair loop. It holds no per-run state and is safe for concurrent use.
type Optimizer struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate evaluator config: %w", err)
	}
	return &Optimizer{log: cfg.Logger, cfg: cfg}, nil
}

// Optimize executes req.InitialSQL and, while it fails and attempts remain, asks the model for a
// repair and executes that. Attempts are strictly sequential.
//
// A non-nil error is returned only for an empty initial query or a cancelled context. On
// cancellation the partial result is returned alongside the error.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	if req.InitialSQL == "" {
		return nil, errors.New("initial SQL is required")
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	res := &Result{FinalSQL: req.InitialSQL}
	sql := req.InitialSQL
	log := o.log.With("path", req.Context.Path.ID, "goal", string(req.Context.Goal.Kind()), "model", req.Context.Model)

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return o.cancelled(res, err)
		}

		attempt := o.execute(ctx, n, sql)
		res.Attempts = append(res.Attempts, attempt)
		res.FinalSQL = sql

		if attempt.Valid {
			res.Resolved = true
			res.StopReason = StopValid
			if n > 1 {
				log.Info("evaluator: query repaired", "attempts", n, "rows", attempt.Success.RowCount)
			}
			return res, nil
		}

		log.Warn("evaluator: query execution failed",
			"attempt", n,
			"maxAttempts", maxAttempts,
			"code", attempt.Error.Code,
			"engineCode", attempt.Error.EngineCode,
			"error", attempt.Error.Message)

		if err := ctx.Err(); err != nil {
			return o.cancelled(res, err)
		}
		if n >= maxAttempts {
			res.StopReason = StopMaxAttempts
			log.Warn("evaluator: attempts exhausted", "attempts", n, "code", attempt.Error.Code)
			return res, nil
		}

		next, opt, stop, err := o.repair(ctx, req, n, maxAttempts, sql, attempt.Error, &res.RepairUsage)
		if stop != "" {
			if stop == StopCancelled {
				return o.cancelled(res, err)
			}
			res.StopReason = stop
			res.StopError = err
			log.Warn("evaluator: repair failed, stopping", "attempt", n, "reason", stop, "error", err)
			return res, nil
		}
		res.Optimizations = append(res.Optimizations, opt)
		sql = next
	}
}

func (o *Optimizer) cancelled(res *Result, err error) (*Result, error) {
	res.StopReason = StopCancelled
	res.StopError = err
	return res, fmt.Errorf("optimization cancelled: %w", err)
}

func (o *Optimizer) execute(ctx context.Context, n int, sql string) Attempt {
	start := o.cfg.Clock.Now()
	out, err := o.cfg.Executor.Execute(ctx, sql, o.cfg.Limits)
	elapsed := o.cfg.Clock.Since(start)

	if err != nil {
		ee := execution.Classify(err, elapsed)
		metrics.RecordExecution(elapsed, string(ee.Code))
		return Attempt{Number: n, SQL: sql, Error: ee}
	}

	execTime := out.ExecutionTime
	if execTime == 0 {
		execTime = elapsed
	}
	metrics.RecordExecution(execTime, "")
	return Attempt{
		Number: n,
		SQL:    sql,
		Valid:  true,
		Success: &SuccessInfo{
			RowCount:      out.RowCount,
			Columns:       out.ColumnNames(),
			Truncated:     out.Truncated,
			ExecutionTime: execTime,
		},
	}
}

// repair asks the model to fix sql. A non-empty StopReason ends the run.
func (o *Optimizer) repair(ctx context.Context, req Request, n, maxAttempts int, sql string, failure *execution.Error, usage *gateway.Usage) (string, Optimization, StopReason, error) {
	rc := req.Context
	p := prompt.BuildRepair(prompt.RepairInput{
		Path:         rc.Path,
		Goal:         rc.Goal,
		Class:        rc.Class,
		PreviousSQL:  sql,
		ErrorCode:    failure.Code,
		ErrorMessage: failure.Message,
		Attempt:      n,
		MaxAttempts:  maxAttempts,
	}, o.cfg.PromptOptions...)

	prefs := rc.Preferences
	if prefs.Model == "" {
		prefs.Model = rc.Model
	}
	resp, err := o.cfg.Gateway.Generate(ctx, gateway.Request{
		Prompt:      p,
		System:      prompt.System(rc.Class),
		TaskType:    gateway.TaskSQLRepair,
		Preferences: prefs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", Optimization{}, StopCancelled, ctx.Err()
		}
		metrics.RecordRepair(string(StopGatewayError))
		return "", Optimization{}, StopGatewayError, err
	}
	usage.PromptTokens += resp.Usage.PromptTokens
	usage.CompletionTokens += resp.Usage.CompletionTokens
	usage.TotalTokens += resp.Usage.TotalTokens

	norm, err := normalize.Normalize(resp.Content, rc.Class)
	if err != nil {
		metrics.RecordRepair(string(StopUnparseableRepair))
		return "", Optimization{}, StopUnparseableRepair, err
	}
	if v := sqlvalidate.Validate(norm.SQL); !v.Valid {
		metrics.RecordRepair(string(StopRejectedRepair))
		return "", Optimization{}, StopRejectedRepair, fmt.Errorf("repaired query rejected: %s", v.Error())
	}

	metrics.RecordRepair("applied")
	return norm.SQL, Optimization{
		Attempt:     n,
		Explanation: explanation(norm, failure),
		Changes:     Changes(sql, norm.SQL),
	}, "", nil
}

func explanation(r normalize.Result, failure *execution.Error) string {
	switch {
	case r.Reasoning != "" && r.Reasoning != normalize.RawSQLReasoning:
		return r.Reasoning
	case r.Description != "" && r.Description != normalize.RawSQLDescription:
		return r.Description
	}
	return fmt.Sprintf("Rewrote query after %s", failure.Code)
}

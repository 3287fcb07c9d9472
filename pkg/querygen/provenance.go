package querygen

import (
	"fmt"
	"strings"
	"time"

	"github.com/malbeclabs/pathsql/pkg/evaluator"
)

// Render returns the artifact's query preceded by its provenance comments. Every comment line
// starts with "-- " and no content is truncated.
func Render(a *Artifact) string {
	var b strings.Builder
	writeHeader(&b, a)
	if ev := a.Evaluation; ev != nil {
		writeAttempts(&b, ev)
		if len(ev.Optimizations) > 0 {
			writeOptimizations(&b, ev.Optimizations)
		}
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(a.RawSQL))
	b.WriteString("\n")
	return b.String()
}

func writeHeader(b *strings.Builder, a *Artifact) {
	comment(b, "Generated by pathsql")
	comment(b, fmt.Sprintf("Model: %s (%s)", a.Model, a.Class))
	comment(b, "Generated: "+a.GeneratedAt.UTC().Format(time.RFC3339))
	comment(b, "Goal: "+a.Goal.Summary())
	comment(b, fmt.Sprintf("Path: %s (%s)", a.Path.DisplayName(), a.Path.ID))
	comment(b, "Services: "+strings.Join(a.Path.Services, " -> "))
	comment(b, fmt.Sprintf("Tokens: prompt=%d completion=%d total=%d", a.Usage.PromptTokens, a.Usage.CompletionTokens, a.Usage.TotalTokens))
	comment(b, fmt.Sprintf("Latency: %d ms", a.Latency.Milliseconds()))
	comment(b, fmt.Sprintf("Gateway: retries=%d cached=%t", a.RetryCount, a.Cached))
	if a.Description != "" {
		comment(b, "Description: "+a.Description)
	}
	if a.Reasoning != "" {
		comment(b, "Reasoning: "+a.Reasoning)
	}
}

func writeAttempts(b *strings.Builder, ev *evaluator.Result) {
	comment(b, "")
	comment(b, "VALIDATION ATTEMPTS")
	for _, at := range ev.Attempts {
		switch {
		case at.Valid && at.Success != nil:
			line := fmt.Sprintf("Attempt %d: VALID (%d ms) rows=%d", at.Number, at.Success.ExecutionTime.Milliseconds(), at.Success.RowCount)
			if at.Success.Truncated {
				line += " (truncated)"
			}
			comment(b, line)
		case at.Error != nil:
			comment(b, fmt.Sprintf("Attempt %d: INVALID %s (%d ms): %s", at.Number, at.Error.Code, at.Error.ExecutionTime.Milliseconds(), at.Error.Message))
		default:
			comment(b, fmt.Sprintf("Attempt %d: INVALID", at.Number))
		}
	}
	comment(b, StatusLine(ev))
}

func writeOptimizations(b *strings.Builder, opts []evaluator.Optimization) {
	comment(b, "")
	comment(b, "OPTIMIZATIONS APPLIED")
	for _, o := range opts {
		comment(b, fmt.Sprintf("Fix for attempt %d: %s", o.Attempt, o.Explanation))
		for _, c := range o.Changes {
			comment(b, "  "+c)
		}
	}
}

// StatusLine summarizes how a repair loop ended.
func StatusLine(ev *evaluator.Result) string {
	n := len(ev.Attempts)
	if ev.Resolved {
		return fmt.Sprintf("Status: RESOLVED after %d attempt(s)", n)
	}
	return fmt.Sprintf("Status: UNRESOLVED after %d attempt(s) (stop: %s) - query may have issues", n, ev.StopReason)
}

// comment writes text as one or more "-- " lines.
func comment(b *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r ")
		if line == "" {
			b.WriteString("--\n")
			continue
		}
		b.WriteString("-- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

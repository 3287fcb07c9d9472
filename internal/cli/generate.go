package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/pathsql/pkg/clickhouse"
	"github.com/malbeclabs/pathsql/pkg/config"
	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/evaluator"
	"github.com/malbeclabs/pathsql/pkg/gateway"
	"github.com/malbeclabs/pathsql/pkg/prompt"
	"github.com/malbeclabs/pathsql/pkg/querygen"
)

type GenerateCmd struct {
	cfg   *config.Config
	build BuildInfo
}

func NewGenerateCmd(cfg *config.Config, build BuildInfo) *GenerateCmd {
	return &GenerateCmd{cfg: cfg, build: build}
}

func (c *GenerateCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a query for every path and goal in a paths file",
		RunE: func(cmd *cobra.Command, args []string) error {
			pathsFile, err := cmd.Flags().GetString("paths")
			if err != nil {
				return fmt.Errorf("failed to get paths flag: %w", err)
			}
			outDir, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			evaluate, err := cmd.Flags().GetBool("evaluate")
			if err != nil {
				return fmt.Errorf("failed to get evaluate flag: %w", err)
			}
			schemaFromDB, err := cmd.Flags().GetBool("schema-from-db")
			if err != nil {
				return fmt.Errorf("failed to get schema-from-db flag: %w", err)
			}
			return c.run(cmd.Context(), cmd.OutOrStdout(), pathsFile, outDir, evaluate, schemaFromDB)
		},
	}

	cmd.Flags().StringP("paths", "p", "", "YAML file of critical paths and analysis goals")
	cmd.Flags().StringP("out", "o", "queries", "directory the generated .sql files are written to")
	cmd.Flags().Bool("evaluate", true, "execute each query against ClickHouse and repair it on failure")
	cmd.Flags().Bool("schema-from-db", false, "describe the traces table to the model from system.columns")
	_ = cmd.MarkFlagRequired("paths")

	return cmd
}

func (c *GenerateCmd) run(ctx context.Context, out io.Writer, pathsFile, outDir string, evaluate, schemaFromDB bool) error {
	log := newLogger(c.cfg)

	entries, err := criticalpath.LoadFile(pathsFile)
	if err != nil {
		return err
	}
	registry, err := c.cfg.Registry()
	if err != nil {
		return err
	}

	if err := serveMetrics(ctx, log, c.cfg.MetricsAddr, c.build); err != nil {
		return err
	}

	routerCfg, err := c.cfg.RouterConfig(log)
	if err != nil {
		return fmt.Errorf("failed to configure model gateway: %w", err)
	}
	router, err := gateway.NewRouter(routerCfg)
	if err != nil {
		return err
	}
	defer router.Close()

	var promptOpts []prompt.Option
	var optimizer querygen.Optimizer
	if evaluate || schemaFromDB {
		if err := c.cfg.RequireClickHouse(); err != nil {
			return err
		}
		client, err := clickhouse.Open(ctx, c.cfg.ClickHouseOptions(log)...)
		if err != nil {
			return err
		}
		defer client.Close()

		if schemaFromDB {
			schema, err := clickhouse.NewSchemaFetcher(client.Conn(), client.Database(), clickhouse.TracesTable).FetchSchema(ctx)
			if err != nil {
				return err
			}
			promptOpts = append(promptOpts, prompt.WithSchema(schema))
		}
		if evaluate {
			optimizer, err = evaluator.New(evaluator.Config{
				Logger:        log,
				Executor:      clickhouse.NewExecutor(client.Conn(), log),
				Gateway:       router,
				Limits:        c.cfg.Limits,
				PromptOptions: promptOpts,
			})
			if err != nil {
				return err
			}
		}
	}

	gen, err := querygen.New(querygen.Config{
		Logger:        log,
		Gateway:       router,
		Registry:      registry,
		Optimizer:     optimizer,
		DefaultModel:  c.cfg.Model,
		MaxAttempts:   c.cfg.MaxAttempts,
		PromptOptions: promptOpts,
	})
	if err != nil {
		return err
	}

	jobs := jobsFromEntries(entries, gateway.Preferences{Model: c.cfg.Model}, evaluate)
	log.Info("generating queries", "paths", len(entries), "jobs", len(jobs), "concurrency", c.cfg.Concurrency, "evaluate", evaluate)
	results := gen.RunBatch(ctx, jobs, c.cfg.Concurrency)

	files, err := writeArtifacts(outDir, results)
	if err != nil {
		return err
	}
	renderSummary(out, results, files)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(results))
	}
	return nil
}

func jobsFromEntries(entries []criticalpath.Entry, pref gateway.Preferences, optimize bool) []querygen.Job {
	var jobs []querygen.Job
	for _, e := range entries {
		for _, g := range e.Goals {
			jobs = append(jobs, querygen.Job{Path: e.CriticalPath, Goal: g, Preferences: pref, Optimize: optimize})
		}
	}
	return jobs
}

// artifactBaseName is "<path-id>-<goal-type>" with every rune outside [A-Za-z0-9._-] replaced by
// '_' and leading dots dropped, so the name always stays inside the output directory.
func artifactBaseName(a *querygen.Artifact) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '-' || r == '_',
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, fmt.Sprintf("%s-%s", a.Path.ID, a.Goal.Kind()))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "query"
	}
	return name
}

// writeArtifacts writes each successful result's SQL into dir and returns the file per result
// index. Failed results get "". Results sharing a path and goal type get "-2", "-3", ... suffixes
// in batch order.
func writeArtifacts(dir string, results []querygen.JobResult) ([]string, error) {
	files := make([]string, len(results))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	used := make(map[string]bool)
	var errs []error
	for i, r := range results {
		if r.Artifact == nil || r.Artifact.SQL == "" {
			continue
		}
		base := artifactBaseName(r.Artifact)
		file := base + ".sql"
		for n := 2; used[file]; n++ {
			file = fmt.Sprintf("%s-%d.sql", base, n)
		}
		used[file] = true
		name := filepath.Join(dir, file)
		if err := os.WriteFile(name, []byte(r.Artifact.SQL), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("failed to write %s: %w", name, err))
			continue
		}
		files[i] = name
	}
	return files, errors.Join(errs...)
}

func status(r querygen.JobResult) string {
	switch {
	case r.Artifact == nil:
		var qe *querygen.Error
		if errors.As(r.Err, &qe) {
			return "FAILED (" + string(qe.Kind) + ")"
		}
		return "FAILED"
	case r.Artifact.Evaluation == nil:
		return "NOT EXECUTED"
	case r.Artifact.Resolved():
		return "RESOLVED"
	default:
		return "UNRESOLVED (" + string(r.Artifact.Evaluation.StopReason) + ")"
	}
}

func renderSummary(w io.Writer, results []querygen.JobResult, files []string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Path", "Goal", "Model", "Class", "Status", "Attempts", "Tokens", "File"})

	for i, r := range results {
		row := []string{r.Job.Path.ID, string(r.Job.Goal.Kind()), "", "", status(r), "", "", files[i]}
		if a := r.Artifact; a != nil {
			row[2] = a.Model
			row[3] = string(a.Class)
			if a.Evaluation != nil {
				row[5] = strconv.Itoa(len(a.Evaluation.Attempts))
			}
			row[6] = strconv.Itoa(a.Usage.TotalTokens)
		}
		table.Append(row)
	}
	table.Render()
}

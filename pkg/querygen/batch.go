package querygen

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"

	"github.com/malbeclabs/pathsql/pkg/criticalpath"
	"github.com/malbeclabs/pathsql/pkg/gateway"
)

// Job is one generation request in a batch.
type Job struct {
	Path        criticalpath.CriticalPath
	Goal        criticalpath.AnalysisGoal
	Preferences gateway.Preferences
	Optimize    bool
}

// JobResult is the outcome of a Job. Exactly one of Artifact and Err is set, except that a
// cancelled optimization may carry both.
type JobResult struct {
	Job      Job
	Artifact *Artifact
	Err      error
}

var errJobNotRun = errors.New("job not run")

// RunBatch runs independent jobs with at most concurrency in flight. A failing job never stops the
// others. Results are in job order.
func (g *Generator) RunBatch(ctx context.Context, jobs []Job, concurrency int) []JobResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	pool := pond.NewResultPool[JobResult](concurrency)

	results := make([]JobResult, len(jobs))
	group := pool.NewGroupContext(ctx)
	for i, job := range jobs {
		results[i] = JobResult{Job: job, Err: errJobNotRun}
		group.Submit(func() JobResult {
			a, err := g.GenerateAndOptimize(ctx, job.Path, job.Goal, job.Preferences, job.Optimize)
			if err != nil {
				g.log.Warn("querygen: batch job failed", "path", job.Path.ID, "goal", string(job.Goal.Kind()), "error", err)
			}
			results[i] = JobResult{Job: job, Artifact: a, Err: err}
			return results[i]
		})
	}

	out, err := group.Wait()
	pool.StopAndWait()
	if err != nil {
		// Jobs that never started keep errJobNotRun.
		for i := range results {
			if errors.Is(results[i].Err, errJobNotRun) {
				results[i].Err = err
			}
		}
		return results
	}
	return out
}

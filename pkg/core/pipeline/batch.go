package pipeline

import (
	"context"
	"time"

	"filing_screener/pkg/core/ingest"
	"filing_screener/pkg/core/registry"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Job is one filing to resolve.
type Job struct {
	Company registry.Company
	Filing  ingest.Filing
}

// JobResult pairs a job with its outcome. Exactly one of Result and Err is set.
type JobResult struct {
	Job    Job
	Result *Result
	Err    error
}

// RunBatch processes jobs with at most Concurrency in flight. Results come
// back in job order. A failing job is recorded and never stops the others;
// jobs not yet started when ctx is cancelled report ctx.Err().
func (e *Engine) RunBatch(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	limit := e.Concurrency
	if limit < 1 {
		limit = 1
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(limit)
	for i, job := range jobs {
		results[i].Job = job
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			res, err := e.ProcessFiling(ctx, job.Company, job.Filing)
			if err != nil {
				log.Warn().Str("component", "pipeline").Str("ticker", job.Company.Ticker).
					Str("accession", job.Filing.AccessionNumber).Err(err).Msg("filing failed")
				results[i].Err = err
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Str("component", "pipeline").Int("jobs", len(jobs)).Int("failed", failed).
		Dur("elapsed", time.Since(start)).Msg("batch complete")
	return results
}

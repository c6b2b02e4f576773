package report

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stress defaults.
var (
	DefaultStressSteps = []int{20000, 50000, 100000}

	stressBaseQueries = []string{
		"technology and software development",
		"global economic trends and analysis",
		"artificial intelligence impact on society",
	}
	stressWords = []string{
		"data", "ai", "system", "model", "search", "knowledge", "base", "integration",
		"performance", "analysis", "hackernews", "story", "comment", "user", "developer",
	}
)

// Latencies above these thresholds are reported as degradation points.
const (
	SlowBatch        = 10 * time.Minute
	SlowRowRate      = time.Second
	SlowQuery        = 10 * time.Second
	SlowComplexQuery = 20 * time.Second
)

// Failure modes collected in the stress summary.
const (
	FailureCreate       = "kb_creation_failure"
	FailureIngest       = "kb_insertion_failure"
	FailureQuery        = "query_failure"
	FailureComplexQuery = "complex_query_failure"
	FailureWorker       = "worker_connection_failure"
)

// OpenFunc opens an executor for one concurrent query worker. The returned
// func releases it.
type OpenFunc func(ctx context.Context) (Executor, func(), error)

// StressOptions configures Stress.
type StressOptions struct {
	Fixture     Fixture `json:"fixture" yaml:"fixture"`
	InitialLoad int     `json:"initial_load" yaml:"initial_load"`
	Steps       []int   `json:"incremental_steps" yaml:"incremental_steps"`
	// MaxRows stops incremental ingestion once reached.
	MaxRows          int   `json:"max_rows" yaml:"max_rows"`
	Workers          int   `json:"workers" yaml:"workers"`
	QueriesPerWorker int   `json:"queries_per_worker" yaml:"queries_per_worker"`
	ComplexQueries   int   `json:"complex_queries" yaml:"complex_queries"`
	MaxTerms         int   `json:"max_terms" yaml:"max_terms"`
	Seed             int64 `json:"seed" yaml:"seed"`
	// Open gives each worker its own executor. Nil runs the workers one
	// after another on the runner's executor.
	Open OpenFunc `json:"-" yaml:"-"`
}

// StressSummary aggregates a stress run.
type StressSummary struct {
	// Ingested sums the requested rows of the batches that succeeded.
	Ingested          int      `json:"rows_ingested" yaml:"rows_ingested"`
	IngestionFailures int      `json:"ingestion_failures" yaml:"ingestion_failures"`
	Queries           int      `json:"queries" yaml:"queries"`
	QueryFailures     int      `json:"query_failures" yaml:"query_failures"`
	Degradation       []string `json:"degradation_points" yaml:"degradation_points"`
	FailureModes      []string `json:"failure_modes" yaml:"failure_modes"`
}

// StressReport is the outcome of Stress.
type StressReport struct {
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Options   StressOptions `json:"parameters" yaml:"parameters"`
	Summary   StressSummary `json:"summary" yaml:"summary"`
	Steps     []Step        `json:"steps" yaml:"steps"`
}

// Stress grows a knowledge base in batches, then runs concurrent short
// queries and long random queries against it. Only a failed setup ends
// the run early; every later failure is recorded and the run continues.
func (r *Runner) Stress(ctx context.Context, opts StressOptions) (*StressReport, error) {
	if opts.Steps == nil {
		opts.Steps = DefaultStressSteps
	}
	if opts.InitialLoad <= 0 {
		return nil, fmt.Errorf("initial load must be positive")
	}
	if opts.MaxTerms < 2 {
		return nil, fmt.Errorf("max terms must be at least 2")
	}
	if opts.Workers < 0 || opts.QueriesPerWorker < 0 || opts.ComplexQueries < 0 {
		return nil, fmt.Errorf("worker and query counts must not be negative")
	}
	for _, n := range opts.Steps {
		if n <= 0 {
			return nil, fmt.Errorf("ingestion step %d must be positive", n)
		}
	}

	rep := &StressReport{StartedAt: time.Now().UTC(), Options: opts}
	sum := &rep.Summary
	defer func() {
		rep.Steps = r.Steps()
		slices.Sort(sum.FailureModes)
		sum.FailureModes = slices.Compact(sum.FailureModes)
	}()

	if err := r.prepare(ctx, opts.Fixture); err != nil {
		sum.FailureModes = append(sum.FailureModes, FailureCreate)
		return rep, err
	}

	batch := func(n int, name string) {
		d, err := r.ingest(ctx, opts.Fixture, n, name)
		if d > SlowBatch {
			sum.Degradation = append(sum.Degradation, fmt.Sprintf("%s took %s", name, d.Round(time.Second)))
		}
		if err != nil {
			sum.IngestionFailures++
			sum.FailureModes = append(sum.FailureModes, FailureIngest)
			return
		}
		sum.Ingested += n
		if perRow := d / time.Duration(n); perRow > SlowRowRate {
			sum.Degradation = append(sum.Degradation, fmt.Sprintf("%s averaged %s per row", name, perRow))
		}
	}

	batch(opts.InitialLoad, "ingest initial batch")
	for i, n := range opts.Steps {
		if opts.MaxRows > 0 && sum.Ingested >= opts.MaxRows {
			r.record(Step{Name: "incremental ingestion", Status: StatusSkipped,
				Detail: fmt.Sprintf("reached %d rows", opts.MaxRows)})
			break
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		batch(n, fmt.Sprintf("ingest batch %d", i+1))
	}

	if sum.Ingested == 0 {
		r.record(Step{Name: "queries", Status: StatusSkipped, Detail: "no rows ingested"})
		return rep, nil
	}
	if err := r.wait(ctx); err != nil {
		return rep, err
	}

	if err := r.concurrentQueries(ctx, opts, sum); err != nil {
		return rep, err
	}
	r.complexQueries(ctx, opts, sum)
	return rep, ctx.Err()
}

// workerResult is what one query worker hands back after the group ends.
type workerResult struct {
	steps       []Step
	failures    int
	degradation []string
	openErr     error
}

func (r *Runner) concurrentQueries(ctx context.Context, opts StressOptions, sum *StressSummary) error {
	results := make([]workerResult, opts.Workers)

	run := func(ctx context.Context, w int, exec Executor) {
		rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(w)))
		res := &results[w]
		for i := range opts.QueriesPerWorker {
			q := Query{Text: stressBaseQueries[rng.IntN(len(stressBaseQueries))] + " " + randomWord(rng, 5)}
			hits, d, err := search(ctx, exec, opts.Fixture.KnowledgeBase, q, 1)
			s := Step{
				Name:    fmt.Sprintf("worker %d query %d", w+1, i+1),
				Status:  StatusSuccess,
				Seconds: seconds(d),
				Detail:  fmt.Sprintf("%q, %d hits", q.Text, len(hits)),
			}
			if err != nil {
				s.Status = StatusFailure
				s.Error = err.Error()
				res.failures++
			} else if d > SlowQuery {
				res.degradation = append(res.degradation, fmt.Sprintf("query %q took %s", q.Text, d.Round(time.Millisecond)))
			}
			res.steps = append(res.steps, s)
			if ctx.Err() != nil {
				return
			}
		}
	}

	if opts.Open == nil {
		for w := range opts.Workers {
			run(ctx, w, r.exec)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for w := range opts.Workers {
			g.Go(func() error {
				exec, release, err := opts.Open(gctx)
				if err != nil {
					results[w].openErr = err
					return nil
				}
				defer release()
				run(gctx, w, exec)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	for w, res := range results {
		if res.openErr != nil {
			r.record(Step{Name: fmt.Sprintf("worker %d connect", w+1), Status: StatusFailure, Error: res.openErr.Error()})
			sum.FailureModes = append(sum.FailureModes, FailureWorker)
			continue
		}
		for _, s := range res.steps {
			r.record(s)
		}
		sum.Queries += len(res.steps)
		sum.QueryFailures += res.failures
		if res.failures > 0 {
			sum.FailureModes = append(sum.FailureModes, FailureQuery)
		}
		sum.Degradation = append(sum.Degradation, res.degradation...)
	}
	return nil
}

func (r *Runner) complexQueries(ctx context.Context, opts StressOptions, sum *StressSummary) {
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Workers)+1))
	for i := range opts.ComplexQueries {
		if ctx.Err() != nil {
			return
		}
		terms := opts.MaxTerms/2 + rng.IntN(opts.MaxTerms-opts.MaxTerms/2+1)
		words := make([]string, terms)
		for j := range words {
			words[j] = stressWords[rng.IntN(len(stressWords))]
		}
		q := Query{Text: strings.Join(words, " ")}

		hits, d, err := search(ctx, r.exec, opts.Fixture.KnowledgeBase, q, 1)
		s := Step{
			Name:    fmt.Sprintf("complex query %d", i+1),
			Status:  StatusSuccess,
			Seconds: seconds(d),
			Detail:  fmt.Sprintf("%d terms, %d hits", terms, len(hits)),
		}
		sum.Queries++
		if err != nil {
			s.Status = StatusFailure
			s.Error = err.Error()
			sum.QueryFailures++
			sum.FailureModes = append(sum.FailureModes, FailureComplexQuery)
		} else if d > SlowComplexQuery {
			sum.Degradation = append(sum.Degradation, fmt.Sprintf("complex query with %d terms took %s", terms, d.Round(time.Millisecond)))
		}
		r.record(s)
	}
}

func randomWord(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.IntN(26))
	}
	return string(b)
}

package report

import (
	"context"
	"fmt"
	"time"
)

// Benchmark defaults.
var (
	DefaultBenchmarkSizes   = []int{100, 1000, 5000, 10000}
	DefaultBenchmarkQueries = []Query{
		{ID: "ai_trends", Text: "artificial intelligence trends"},
		{ID: "python_libs", Text: "python programming new libraries"},
		{ID: "db_performance_popular", Text: "database performance",
			Filter: map[string]any{"score": map[string]any{"$gt": 100}}},
		{ID: "startup_funding_discussed", Text: "startup funding",
			Filter: map[string]any{"descendants": map[string]any{"$gte": 50}}},
	}
)

// BenchmarkOptions configures Benchmark.
type BenchmarkOptions struct {
	Fixture Fixture `json:"fixture" yaml:"fixture"`
	// Sizes are ingested in order into the same knowledge base.
	Sizes      []int   `json:"sizes" yaml:"sizes"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	Limit      int     `json:"limit" yaml:"limit"`
	Queries    []Query `json:"queries" yaml:"queries"`
}

// Ingestion is the timing of one batch.
type Ingestion struct {
	Rows         int     `json:"rows" yaml:"rows"`
	Seconds      float64 `json:"seconds" yaml:"seconds"`
	SecondsPer1k float64 `json:"seconds_per_1k" yaml:"seconds_per_1k"`
	Error        string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// QueryLatency is the latency summary of one benchmark query.
type QueryLatency struct {
	Query   Query   `json:"query" yaml:"query"`
	Latency Latency `json:"latency" yaml:"latency"`
	Error   string  `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// BenchmarkReport is the outcome of Benchmark.
type BenchmarkReport struct {
	StartedAt    time.Time        `json:"started_at" yaml:"started_at"`
	Options      BenchmarkOptions `json:"parameters" yaml:"parameters"`
	SetupSeconds float64          `json:"setup_seconds" yaml:"setup_seconds"`
	Ingestion    []Ingestion      `json:"ingestion" yaml:"ingestion"`
	Latency      []QueryLatency   `json:"latency" yaml:"latency"`
	Steps        []Step           `json:"steps" yaml:"steps"`
}

// Benchmark times knowledge base setup, ingestion at each size, and the
// latency of every query over Iterations runs. Ingestion failures are
// reported per batch and do not stop the run.
func (r *Runner) Benchmark(ctx context.Context, opts BenchmarkOptions) (*BenchmarkReport, error) {
	if len(opts.Sizes) == 0 {
		opts.Sizes = DefaultBenchmarkSizes
	}
	if len(opts.Queries) == 0 {
		opts.Queries = DefaultBenchmarkQueries
	}
	if opts.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive")
	}
	for _, n := range opts.Sizes {
		if n <= 0 {
			return nil, fmt.Errorf("ingestion size %d must be positive", n)
		}
	}

	rep := &BenchmarkReport{StartedAt: time.Now().UTC(), Options: opts}
	defer func() { rep.Steps = r.Steps() }()

	start := time.Now()
	if err := r.prepare(ctx, opts.Fixture); err != nil {
		return rep, err
	}
	rep.SetupSeconds = seconds(time.Since(start))

	for _, n := range opts.Sizes {
		d, err := r.ingest(ctx, opts.Fixture, n, fmt.Sprintf("ingest %d rows", n))
		ing := Ingestion{Rows: n, Seconds: seconds(d), SecondsPer1k: seconds(d) * 1000 / float64(n)}
		if err != nil {
			ing.Error = err.Error()
		}
		rep.Ingestion = append(rep.Ingestion, ing)
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
	}
	if err := r.wait(ctx); err != nil {
		return rep, err
	}

	for _, q := range opts.Queries {
		ql := QueryLatency{Query: q}
		var samples []time.Duration
		failures := 0
		for range opts.Iterations {
			_, d, err := search(ctx, r.exec, opts.Fixture.KnowledgeBase, q, opts.Limit)
			if err != nil {
				failures++
				ql.Error = err.Error()
				continue
			}
			samples = append(samples, d)
		}
		ql.Latency = summarize(samples, failures)
		status := StatusSuccess
		if failures > 0 {
			status = StatusWarning
			if len(samples) == 0 {
				status = StatusFailure
			}
		}
		r.record(Step{
			Name:    "latency " + queryLabel(q),
			Status:  status,
			Seconds: ql.Latency.Mean,
			Detail:  fmt.Sprintf("%d runs, %d failed", ql.Latency.Runs, failures),
			Error:   ql.Error,
		})
		rep.Latency = append(rep.Latency, ql)
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
	}
	return rep, nil
}

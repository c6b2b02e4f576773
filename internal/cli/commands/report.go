package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/hackernews"
	"github.com/kleos-cli/kleos/internal/report"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
)

// DefaultSettle is the pause after indexing and ingestion while the server
// computes embeddings.
const DefaultSettle = 30 * time.Second

// NewReportCommand creates the report command group.
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run reranking, benchmark, and stress reports against a knowledge base",
		Long: `Build throwaway knowledge bases from the HackerNews datasource and measure
them. Each report drops and recreates its knowledge bases, so point it at
names you do not use for anything else.`,
	}
	cmd.AddCommand(
		newReportRerankingCommand(),
		newReportBenchmarkCommand(),
		newReportStressCommand(),
	)
	return cmd
}

// reportFlags are shared by every report.
type reportFlags struct {
	Datasource string
	Table      string
	Embedding  modelFlags
	Settle     time.Duration
	Save       string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Datasource, "hn-datasource", "", "HackerNews datasource name (default from config, hackernews)")
	fs.StringVar(&f.Table, "table", hackernews.DefaultTable, "HackerNews table to ingest")
	f.Embedding.bind(fs, "embedding", "embedding-model", "Embedding")
	fs.DurationVar(&f.Settle, "settle", DefaultSettle, "Pause after indexing and ingestion")
	fs.StringVar(&f.Save, "save", "", "Also write the report as JSON to this file")
}

// fixture resolves the knowledge base fixture for kb and makes sure the
// datasource exists.
func (f *reportFlags) fixture(ctx context.Context, c *CommandContext, kb string) (report.Fixture, error) {
	if f.Settle < 0 {
		return report.Fixture{}, flagErrorf("settle", "must not be negative")
	}
	mapping, ok := hackernews.Default(f.Table)
	if !ok {
		return report.Fixture{}, flagErrorf("table", "no default mapping for %q", f.Table)
	}
	embedding := f.Embedding.resolve(c.Cfg.Embedding)
	if embedding.Provider == "" {
		return report.Fixture{}, flagErrorf("embedding-provider", "no provider given and none configured")
	}
	if embedding.Model == "" {
		return report.Fixture{}, flagErrorf("embedding-model", "is required for provider %q", embedding.Provider)
	}

	ds := c.datasourceName(f.Datasource)
	created, err := c.ensureDatasource(ctx, ds)
	if err != nil {
		return report.Fixture{}, err
	}
	if created {
		c.Renderer.Info(fmt.Sprintf("Created datasource %q", ds))
	}
	return report.Fixture{
		KnowledgeBase: kb,
		Datasource:    ds,
		Table:         f.Table,
		Embedding:     embedding,
		Mapping:       mapping,
	}, nil
}

func (f *reportFlags) runner(c *CommandContext) *report.Runner {
	return report.NewRunner(c.Session, c.Logger, f.Settle)
}

// finish saves and renders rep, then returns runErr so a partial report
// is still shown when a step failed.
func (f *reportFlags) finish(c *CommandContext, rep any, runErr error, render func()) error {
	if f.Save != "" {
		if err := saveReport(f.Save, rep); err != nil {
			return err
		}
		c.Renderer.Info("Report saved to " + f.Save)
	}
	if c.Renderer.Structured() {
		if err := c.Renderer.Data(rep); err != nil {
			return err
		}
		return runErr
	}
	render()
	return runErr
}

func saveReport(path string, rep any) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ReportRerankingOptions holds options for the report reranking command.
type ReportRerankingOptions struct {
	reportFlags
	Reranking  modelFlags
	PlainKB    string
	RerankedKB string
	Rows       int
	Limit      int
	Queries    []string
}

func newReportRerankingCommand() *cobra.Command {
	opts := &ReportRerankingOptions{}

	cmd := &cobra.Command{
		Use:   "reranking",
		Short: "Compare search results with and without a reranking model",
		Long: `Create two knowledge bases over the same HackerNews rows, one with a
reranking model, and show each query's results side by side.

The reranking model defaults to the reranking section of the config.`,
		Example: `  # Ollama reranking with the built-in queries
  kleos report reranking --reranking-model llama3

  # Custom queries, saved for later comparison
  kleos report reranking --query "rust web frameworks" --query "database outages" --save rerank.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportReranking(cmd, opts)
		},
	}

	opts.reportFlags.bind(cmd)
	f := cmd.Flags()
	opts.Reranking.bind(f, "reranking", "reranking-model", "Reranking")
	f.StringVar(&opts.PlainKB, "kb-plain", "rerank_eval_kb_no_reranker", "Knowledge base searched without reranking")
	f.StringVar(&opts.RerankedKB, "kb-reranked", "rerank_eval_kb_with_reranker", "Knowledge base searched with reranking")
	f.IntVar(&opts.Rows, "rows", 500, "Rows ingested into each knowledge base")
	f.IntVar(&opts.Limit, "limit", 5, "Results per query")
	f.StringArrayVar(&opts.Queries, "query", nil, "Query text (repeatable, replaces the built-in queries)")

	return cmd
}

func runReportReranking(cmd *cobra.Command, opts *ReportRerankingOptions) error {
	if opts.Rows <= 0 {
		return flagErrorf("rows", "must be positive")
	}
	if opts.Limit <= 0 {
		return flagErrorf("limit", "must be positive")
	}
	if opts.PlainKB == opts.RerankedKB {
		return flagErrorf("kb-reranked", "must differ from --kb-plain")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	embedding := opts.Embedding.resolve(cmdCtx.Cfg.Embedding)
	reranking, err := opts.Reranking.resolveReranking(cmdCtx.Cfg.Reranking, embedding)
	if err != nil {
		return err
	}
	if reranking.IsZero() {
		return flagErrorf("reranking-model", "is required: set it here or in the reranking section of the config")
	}

	plain, err := opts.fixture(ctx, cmdCtx, opts.PlainKB)
	if err != nil {
		return err
	}
	reranked := plain
	reranked.KnowledgeBase = opts.RerankedKB
	reranked.Reranking = reranking

	var queries []report.Query
	for i, q := range opts.Queries {
		queries = append(queries, report.Query{ID: "q" + strconv.Itoa(i+1), Text: q})
	}

	cmdCtx.Renderer.Muted("Building knowledge bases, this can take several minutes")
	rep, runErr := opts.runner(cmdCtx).Reranking(ctx, report.RerankingOptions{
		Plain:    plain,
		Reranked: reranked,
		Rows:     opts.Rows,
		Limit:    opts.Limit,
		Queries:  queries,
	})
	if rep == nil {
		return runErr
	}
	return opts.finish(cmdCtx, rep, runErr, func() { renderReranking(cmdCtx, rep) })
}

func renderReranking(c *CommandContext, rep *report.RerankingReport) {
	r := c.Renderer
	r.Header(1, "Reranking evaluation")
	for _, cmp := range rep.Comparisons {
		r.Header(2, cmp.Query.Text)
		if cmp.Query.Description != "" {
			r.Muted(cmp.Query.Description)
		}
		if cmp.PlainError != "" {
			r.Error("Without reranker: " + cmp.PlainError)
		}
		if cmp.RerankedError != "" {
			r.Error("With reranker: " + cmp.RerankedError)
		}
		_ = r.Table(comparisonTable(cmp))
		r.Muted(fmt.Sprintf("%d shared results, %d moved", cmp.Shared, cmp.Moved))
	}
	renderSteps(c, rep.Steps)
}

func comparisonTable(cmp report.Comparison) *core.Table {
	t := &core.Table{Columns: []string{"rank", "without reranker", "plain score", "with reranker", "reranked score"}}
	for i := range max(len(cmp.Plain), len(cmp.Reranked)) {
		row := []any{i + 1, "", "", "", ""}
		if i < len(cmp.Plain) {
			row[1], row[2] = cmp.Plain[i].Content, cmp.Plain[i].Score
		}
		if i < len(cmp.Reranked) {
			row[3], row[4] = cmp.Reranked[i].Content, cmp.Reranked[i].Score
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ReportBenchmarkOptions holds options for the report benchmark command.
type ReportBenchmarkOptions struct {
	reportFlags
	KB         string
	Sizes      []int
	Iterations int
	Limit      int
}

func newReportBenchmarkCommand() *cobra.Command {
	opts := &ReportBenchmarkOptions{}

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Time knowledge base setup, ingestion, and query latency",
		Long: `Create a knowledge base, ingest batches of increasing size into it, and
run each benchmark query repeatedly. Latency is reported as mean, p95,
p99, min, and max seconds.`,
		Example: `  kleos report benchmark
  kleos report benchmark --sizes 100,500 --iterations 5 --settle 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportBenchmark(cmd, opts)
		},
	}

	opts.reportFlags.bind(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.KB, "kb", "benchmark_kb", "Knowledge base to create and measure")
	f.IntSliceVar(&opts.Sizes, "sizes", report.DefaultBenchmarkSizes, "Batch sizes ingested in order")
	f.IntVar(&opts.Iterations, "iterations", 20, "Runs per latency query")
	f.IntVar(&opts.Limit, "limit", 5, "Results per query")

	return cmd
}

func runReportBenchmark(cmd *cobra.Command, opts *ReportBenchmarkOptions) error {
	if opts.Iterations <= 0 {
		return flagErrorf("iterations", "must be positive")
	}
	for _, n := range opts.Sizes {
		if n <= 0 {
			return flagErrorf("sizes", "must be positive, got %d", n)
		}
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	fixture, err := opts.fixture(ctx, cmdCtx, opts.KB)
	if err != nil {
		return err
	}

	cmdCtx.Renderer.Muted("Running benchmark, this can take several minutes")
	rep, runErr := opts.runner(cmdCtx).Benchmark(ctx, report.BenchmarkOptions{
		Fixture:    fixture,
		Sizes:      opts.Sizes,
		Iterations: opts.Iterations,
		Limit:      opts.Limit,
	})
	if rep == nil {
		return runErr
	}
	return opts.finish(cmdCtx, rep, runErr, func() { renderBenchmark(cmdCtx, rep) })
}

func renderBenchmark(c *CommandContext, rep *report.BenchmarkReport) {
	r := c.Renderer
	r.Header(1, "Benchmark: "+rep.Options.Fixture.KnowledgeBase)
	_ = r.KeyValues("", []output.KV{
		{Key: "source", Value: rep.Options.Fixture.Source()},
		{Key: "setup", Value: formatSeconds(rep.SetupSeconds)},
	})

	r.Header(2, "Ingestion")
	ing := &core.Table{Columns: []string{"rows", "seconds", "seconds per 1k", "error"}}
	for _, i := range rep.Ingestion {
		ing.Rows = append(ing.Rows, []any{i.Rows, formatSeconds(i.Seconds), formatSeconds(i.SecondsPer1k), i.Error})
	}
	_ = r.Table(ing)

	r.Header(2, "Query latency")
	lat := &core.Table{Columns: []string{"query", "runs", "failed", "avg", "p95", "p99", "min", "max"}}
	for _, q := range rep.Latency {
		l := q.Latency
		lat.Rows = append(lat.Rows, []any{q.Query.Text, l.Runs, l.Failures,
			formatSeconds(l.Mean), formatSeconds(l.P95), formatSeconds(l.P99), formatSeconds(l.Min), formatSeconds(l.Max)})
	}
	_ = r.Table(lat)
	renderSteps(c, rep.Steps)
}

// ReportStressOptions holds options for the report stress command.
type ReportStressOptions struct {
	reportFlags
	KB               string
	InitialLoad      int
	Steps            []int
	MaxRows          int
	Workers          int
	QueriesPerWorker int
	ComplexQueries   int
	MaxTerms         int
	Seed             int64
}

func newReportStressCommand() *cobra.Command {
	opts := &ReportStressOptions{}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Grow a knowledge base and load it with concurrent queries",
		Long: `Ingest an initial batch and incremental batches up to --max-rows, then
run short queries from several concurrent connections and long random
queries. The summary lists slow steps and the failure modes seen.`,
		Example: `  kleos report stress
  kleos report stress --initial 1000 --steps 2000,5000 --workers 10 --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportStress(cmd, opts)
		},
	}

	opts.reportFlags.bind(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.KB, "kb", "stress_test_kb", "Knowledge base to create and load")
	f.IntVar(&opts.InitialLoad, "initial", 10000, "Rows in the initial batch")
	f.IntSliceVar(&opts.Steps, "steps", report.DefaultStressSteps, "Incremental batch sizes")
	f.IntVar(&opts.MaxRows, "max-rows", 200000, "Stop incremental ingestion at this many rows (0 for no limit)")
	f.IntVar(&opts.Workers, "workers", 5, "Concurrent query connections")
	f.IntVar(&opts.QueriesPerWorker, "queries-per-worker", 10, "Queries sent by each connection")
	f.IntVar(&opts.ComplexQueries, "complex-queries", 20, "Long random queries to run")
	f.IntVar(&opts.MaxTerms, "max-terms", 50, "Most terms in a long query")
	f.Int64Var(&opts.Seed, "seed", 0, "Random seed for generated queries (0 picks one)")

	return cmd
}

func runReportStress(cmd *cobra.Command, opts *ReportStressOptions) error {
	switch {
	case opts.InitialLoad <= 0:
		return flagErrorf("initial", "must be positive")
	case opts.MaxRows < 0:
		return flagErrorf("max-rows", "must not be negative")
	case opts.Workers < 0:
		return flagErrorf("workers", "must not be negative")
	case opts.QueriesPerWorker < 0:
		return flagErrorf("queries-per-worker", "must not be negative")
	case opts.ComplexQueries < 0:
		return flagErrorf("complex-queries", "must not be negative")
	case opts.MaxTerms < 2:
		return flagErrorf("max-terms", "must be at least 2")
	}
	for _, n := range opts.Steps {
		if n <= 0 {
			return flagErrorf("steps", "must be positive, got %d", n)
		}
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx := cmd.Context()

	fixture, err := opts.fixture(ctx, cmdCtx, opts.KB)
	if err != nil {
		return err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cmdCtx.Renderer.Muted("Running stress test, this can take a long time")
	rep, runErr := opts.runner(cmdCtx).Stress(ctx, report.StressOptions{
		Fixture:          fixture,
		InitialLoad:      opts.InitialLoad,
		Steps:            opts.Steps,
		MaxRows:          opts.MaxRows,
		Workers:          opts.Workers,
		QueriesPerWorker: opts.QueriesPerWorker,
		ComplexQueries:   opts.ComplexQueries,
		MaxTerms:         opts.MaxTerms,
		Seed:             seed,
		Open:             cmdCtx.openWorker,
	})
	if rep == nil {
		return runErr
	}
	return opts.finish(cmdCtx, rep, runErr, func() { renderStress(cmdCtx, rep) })
}

// openWorker opens a separate session with the command's connection
// settings, so concurrent queries do not share one transport.
func (c *CommandContext) openWorker(ctx context.Context) (report.Executor, func(), error) {
	s := session.New(c.Session.Config(), c.Logger)
	if !s.Connect(ctx) {
		return nil, nil, s.LastError()
	}
	return s, func() { _ = s.Close() }, nil
}

func renderStress(c *CommandContext, rep *report.StressReport) {
	r := c.Renderer
	sum := rep.Summary
	r.Header(1, "Stress test: "+rep.Options.Fixture.KnowledgeBase)
	_ = r.KeyValues("", []output.KV{
		{Key: "rows ingested", Value: strconv.Itoa(sum.Ingested)},
		{Key: "ingestion failures", Value: strconv.Itoa(sum.IngestionFailures)},
		{Key: "queries", Value: strconv.Itoa(sum.Queries)},
		{Key: "query failures", Value: strconv.Itoa(sum.QueryFailures)},
		{Key: "seed", Value: strconv.FormatInt(rep.Options.Seed, 10)},
	})
	for _, d := range sum.Degradation {
		r.Warning(d)
	}
	for _, m := range sum.FailureModes {
		r.Error("Failure mode: " + m)
	}
	if len(sum.Degradation) == 0 && len(sum.FailureModes) == 0 {
		r.Success("No degradation or failures observed")
	}
	renderSteps(c, rep.Steps)
}

func renderSteps(c *CommandContext, steps []report.Step) {
	r := c.Renderer
	r.Header(2, "Steps")
	t := &core.Table{Columns: []string{"step", "status", "seconds", "detail", "error"}}
	for _, s := range steps {
		t.Rows = append(t.Rows, []any{s.Name, string(s.Status), formatSeconds(s.Seconds), s.Detail, s.Error})
	}
	_ = r.Table(t)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

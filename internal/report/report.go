// Package report runs multi-step knowledge base reports against a MindsDB
// server: a reranking comparison, an ingestion and latency benchmark, and
// a stress test. Each report returns a plain struct for the CLI to render
// and keeps a timed log of every step it took.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kleos-cli/kleos/internal/hackernews"
	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// Executor sends one statement. *session.Session implements it.
type Executor interface {
	Execute(ctx context.Context, sql string) (*core.Table, error)
}

// Status is the outcome of one step.
type Status string

// Step statuses.
const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Step is one entry of a report's step log.
type Step struct {
	Name    string  `json:"step" yaml:"step"`
	Status  Status  `json:"status" yaml:"status"`
	Seconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	Detail  string  `json:"detail,omitempty" yaml:"detail,omitempty"`
	Error   string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Fixture is a knowledge base filled from a HackerNews table.
type Fixture struct {
	KnowledgeBase string              `json:"knowledge_base" yaml:"knowledge_base"`
	Datasource    string              `json:"datasource" yaml:"datasource"`
	Table         string              `json:"table" yaml:"table"`
	Embedding     mindsql.ModelConfig `json:"-" yaml:"-"`
	Reranking     mindsql.ModelConfig `json:"-" yaml:"-"`
	Mapping       hackernews.Mapping  `json:"-" yaml:"-"`
}

// Source returns datasource.table.
func (f Fixture) Source() string {
	return f.Datasource + "." + f.Table
}

// Query is one search issued by a report.
type Query struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Text        string         `json:"text" yaml:"text"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Filter      map[string]any `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Runner executes report steps and records them.
type Runner struct {
	exec   Executor
	logger *slog.Logger
	settle time.Duration
	steps  []Step
}

// NewRunner returns a runner. settle is the pause after building an index
// or ingesting rows, while the server embeds asynchronously.
func NewRunner(exec Executor, logger *slog.Logger, settle time.Duration) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{exec: exec, logger: logger, settle: settle}
}

// Steps returns the step log so far.
func (r *Runner) Steps() []Step {
	return append([]Step(nil), r.steps...)
}

func (r *Runner) record(s Step) {
	r.steps = append(r.steps, s)
	level := slog.LevelInfo
	switch s.Status {
	case StatusWarning:
		level = slog.LevelWarn
	case StatusFailure:
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "report step",
		"step", s.Name, "status", string(s.Status), "seconds", s.Seconds, "error", s.Error)
}

// timed runs fn as a step. Failures are recorded with failStatus.
func (r *Runner) timed(name, detail string, failStatus Status, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	s := Step{Name: name, Status: StatusSuccess, Seconds: seconds(d), Detail: detail}
	if err != nil {
		s.Status = failStatus
		s.Error = err.Error()
	}
	r.record(s)
	return d, err
}

func (r *Runner) wait(ctx context.Context) error {
	if r.settle <= 0 {
		return nil
	}
	r.logger.Debug("waiting for the server to settle", "for", r.settle)
	t := time.NewTimer(r.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// prepare drops and recreates the fixture's knowledge base, then builds
// its index. A failed drop or index is a warning; a failed create is not.
func (r *Runner) prepare(ctx context.Context, f Fixture) error {
	create, err := mindsql.CreateKnowledgeBase(mindsql.KnowledgeBaseSpec{
		Name:            f.KnowledgeBase,
		Embedding:       f.Embedding,
		Reranking:       f.Reranking,
		ContentColumns:  []string{f.Mapping.Content},
		MetadataColumns: metadataTargets(f.Mapping),
	})
	if err != nil {
		return err
	}

	_, _ = r.timed("drop "+f.KnowledgeBase, "", StatusWarning, func() error {
		_, err := r.exec.Execute(ctx, mindsql.DropKnowledgeBase(f.KnowledgeBase))
		if session.IsNotFound(err) {
			return nil
		}
		return err
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if _, err := r.timed("create "+f.KnowledgeBase, describeModels(f), StatusFailure, func() error {
		_, err := r.exec.Execute(ctx, create)
		return err
	}); err != nil {
		return fmt.Errorf("create knowledge base %q: %w", f.KnowledgeBase, err)
	}

	_, _ = r.timed("index "+f.KnowledgeBase, "", StatusWarning, func() error {
		_, err := r.exec.Execute(ctx, mindsql.CreateIndex(f.KnowledgeBase))
		return err
	})
	return r.wait(ctx)
}

// ingest loads up to limit rows of the fixture's source, newest first.
func (r *Runner) ingest(ctx context.Context, f Fixture, limit int, name string) (time.Duration, error) {
	sql, err := mindsql.InsertFromSource(hackernews.IngestSpec(f.KnowledgeBase, f.Datasource, f.Table, f.Mapping, limit))
	if err != nil {
		return 0, err
	}
	detail := fmt.Sprintf("%d rows from %s", limit, f.Source())
	return r.timed(name, detail, StatusFailure, func() error {
		_, err := r.exec.Execute(ctx, sql)
		return err
	})
}

// Hit is one row of a similarity search.
type Hit struct {
	Rank    int    `json:"rank" yaml:"rank"`
	Content string `json:"content" yaml:"content"`
	Score   string `json:"score,omitempty" yaml:"score,omitempty"`
}

// search runs q against kb through exec.
func search(ctx context.Context, exec Executor, kb string, q Query, limit int) ([]Hit, time.Duration, error) {
	sql, err := mindsql.QueryKnowledgeBase(mindsql.KBQuerySpec{
		KnowledgeBase: kb,
		Text:          q.Text,
		Filter:        q.Filter,
		Limit:         limit,
	})
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	t, err := exec.Execute(ctx, sql)
	d := time.Since(start)
	if err != nil {
		return nil, d, err
	}
	return hits(t), d, nil
}

func hits(t *core.Table) []Hit {
	ci, _, cerr := normalize.ResolveColumn(t, normalize.ContentColumns...)
	si, _, serr := normalize.ResolveColumn(t, normalize.ScoreColumns...)
	out := make([]Hit, 0, t.Len())
	for i, row := range t.Rows {
		h := Hit{Rank: i + 1}
		if cerr == nil && ci < len(row) {
			h.Content = normalize.Text(row[ci])
		}
		if serr == nil && si < len(row) {
			h.Score = normalize.Text(row[si])
		}
		out = append(out, h)
	}
	return out
}

func metadataTargets(m hackernews.Mapping) []string {
	out := make([]string, 0, len(m.Metadata))
	for _, c := range m.Metadata {
		name := c.Target
		if name == "" {
			name = c.Source
		}
		out = append(out, name)
	}
	return out
}

func describeModels(f Fixture) string {
	s := "embedding " + modelName(f.Embedding)
	if !f.Reranking.IsZero() {
		s += ", reranking " + modelName(f.Reranking)
	}
	return s
}

func modelName(m mindsql.ModelConfig) string {
	return m.Provider + "/" + m.Model
}

func seconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1e6
}

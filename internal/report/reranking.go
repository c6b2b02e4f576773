package report

import (
	"context"
	"errors"
	"time"

	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// DefaultRerankingQueries compare retrieval with and without a reranker.
var DefaultRerankingQueries = []Query{
	{ID: "ai_ethics", Text: "ethical considerations of advanced artificial intelligence",
		Description: "abstract topic where keyword overlap is weak"},
	{ID: "remote_work", Text: "impact of remote work on software development team productivity",
		Description: "long query with several concepts"},
	{ID: "apple_products", Text: "apple new products",
		Description: "ambiguous short query"},
	{ID: "climate_ml", Text: "startups using machine learning for climate change solutions",
		Description: "intersection of two topics"},
}

// RerankingOptions configures Reranking.
type RerankingOptions struct {
	// Plain is searched without reranking; Reranked must set Reranking.
	Plain    Fixture `json:"plain" yaml:"plain"`
	Reranked Fixture `json:"reranked" yaml:"reranked"`
	// Rows is the number of source rows ingested into each knowledge base.
	Rows    int     `json:"rows" yaml:"rows"`
	Limit   int     `json:"limit" yaml:"limit"`
	Queries []Query `json:"queries" yaml:"queries"`
}

// Comparison is one query answered by both knowledge bases.
type Comparison struct {
	Query         Query  `json:"query" yaml:"query"`
	Plain         []Hit  `json:"without_reranker" yaml:"without_reranker"`
	Reranked      []Hit  `json:"with_reranker" yaml:"with_reranker"`
	PlainError    string `json:"without_reranker_error,omitempty" yaml:"without_reranker_error,omitempty"`
	RerankedError string `json:"with_reranker_error,omitempty" yaml:"with_reranker_error,omitempty"`
	// Shared counts hits returned by both; Moved counts shared hits whose
	// rank differs.
	Shared int `json:"shared" yaml:"shared"`
	Moved  int `json:"moved" yaml:"moved"`
}

// RerankingReport is the outcome of Reranking.
type RerankingReport struct {
	StartedAt   time.Time        `json:"started_at" yaml:"started_at"`
	Options     RerankingOptions `json:"parameters" yaml:"parameters"`
	Comparisons []Comparison     `json:"comparisons" yaml:"comparisons"`
	Steps       []Step           `json:"steps" yaml:"steps"`
}

// ErrNoReranker is returned when the reranked fixture has no reranking model.
var ErrNoReranker = errors.New("reranking model is required")

// Reranking builds two knowledge bases over the same rows, one with a
// reranking model, and runs every query against both. Setup failures end
// the report early; the partial report is returned with the error.
func (r *Runner) Reranking(ctx context.Context, opts RerankingOptions) (*RerankingReport, error) {
	if opts.Reranked.Reranking.IsZero() {
		return nil, ErrNoReranker
	}
	opts.Plain.Reranking = mindsql.ModelConfig{}
	if len(opts.Queries) == 0 {
		opts.Queries = DefaultRerankingQueries
	}
	rep := &RerankingReport{StartedAt: time.Now().UTC(), Options: opts}
	defer func() { rep.Steps = r.Steps() }()

	for _, f := range []Fixture{opts.Plain, opts.Reranked} {
		if err := r.prepare(ctx, f); err != nil {
			return rep, err
		}
		if _, err := r.ingest(ctx, f, opts.Rows, "ingest "+f.KnowledgeBase); err != nil {
			return rep, err
		}
	}
	if err := r.wait(ctx); err != nil {
		return rep, err
	}

	for _, q := range opts.Queries {
		c := Comparison{Query: q}
		var err error
		if c.Plain, _, err = search(ctx, r.exec, opts.Plain.KnowledgeBase, q, opts.Limit); err != nil {
			c.PlainError = err.Error()
		}
		if c.Reranked, _, err = search(ctx, r.exec, opts.Reranked.KnowledgeBase, q, opts.Limit); err != nil {
			c.RerankedError = err.Error()
		}
		c.Shared, c.Moved = overlap(c.Plain, c.Reranked)
		r.recordQuery(q, c.PlainError, c.RerankedError)
		rep.Comparisons = append(rep.Comparisons, c)
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
	}
	return rep, nil
}

func (r *Runner) recordQuery(q Query, errs ...string) {
	s := Step{Name: "query " + queryLabel(q), Status: StatusSuccess}
	for _, e := range errs {
		if e != "" {
			s.Status = StatusFailure
			s.Error = e
			break
		}
	}
	r.record(s)
}

func queryLabel(q Query) string {
	if q.ID != "" {
		return q.ID
	}
	return q.Text
}

func overlap(a, b []Hit) (shared, moved int) {
	rank := make(map[string]int, len(a))
	for _, h := range a {
		if _, ok := rank[h.Content]; !ok {
			rank[h.Content] = h.Rank
		}
	}
	for _, h := range b {
		if ra, ok := rank[h.Content]; ok {
			shared++
			if ra != h.Rank {
				moved++
			}
			delete(rank, h.Content)
		}
	}
	return shared, moved
}

package mindsql

import (
	"fmt"
	"strings"
)

// ModelConfig is an embedding, reranking, or LLM model reference.
type ModelConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// IsZero reports whether no model was configured.
func (m ModelConfig) IsZero() bool {
	return m.Provider == "" && m.Model == "" && m.BaseURL == "" && m.APIKey == ""
}

// Literal renders the object literal MindsDB's DDL parser expects. Keys are
// exactly provider and model_name, plus base_url and api_key when set.
func (m ModelConfig) Literal() (string, error) {
	if strings.TrimSpace(m.Provider) == "" {
		return "", fmt.Errorf("model provider is required")
	}
	if strings.TrimSpace(m.Model) == "" {
		return "", fmt.Errorf("model name is required")
	}
	fields := []Field{
		{Key: "provider", Value: m.Provider},
		{Key: "model_name", Value: m.Model},
	}
	if u := TrimBaseURL(m.BaseURL); u != "" {
		fields = append(fields, Field{Key: "base_url", Value: u})
	}
	if m.APIKey != "" {
		fields = append(fields, Field{Key: "api_key", Value: m.APIKey})
	}
	return Object(fields...), nil
}

// KnowledgeBaseSpec describes CREATE KNOWLEDGE_BASE.
type KnowledgeBaseSpec struct {
	Name            string
	Embedding       ModelConfig
	Reranking       ModelConfig
	ContentColumns  []string
	MetadataColumns []string
	IDColumn        string
}

// CreateKnowledgeBase builds CREATE KNOWLEDGE_BASE. Reranking is omitted
// when no reranking model is configured.
func CreateKnowledgeBase(spec KnowledgeBaseSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("knowledge base name is required")
	}

	embedding, err := spec.Embedding.Literal()
	if err != nil {
		return "", fmt.Errorf("embedding_model: %w", err)
	}
	opts := []Option{{Key: "embedding_model", Value: embedding}}

	if spec.Reranking.Model != "" {
		reranking, err := spec.Reranking.Literal()
		if err != nil {
			return "", fmt.Errorf("reranking_model: %w", err)
		}
		opts = append(opts, Option{Key: "reranking_model", Value: reranking})
	}
	if len(SplitAll(spec.ContentColumns)) > 0 {
		v, err := StringOrList(spec.ContentColumns)
		if err != nil {
			return "", fmt.Errorf("content_columns: %w", err)
		}
		opts = append(opts, Option{Key: "content_columns", Value: v})
	}
	if len(SplitAll(spec.MetadataColumns)) > 0 {
		v, err := StringOrList(spec.MetadataColumns)
		if err != nil {
			return "", fmt.Errorf("metadata_columns: %w", err)
		}
		opts = append(opts, Option{Key: "metadata_columns", Value: v})
	}
	if id := strings.TrimSpace(spec.IDColumn); id != "" {
		opts = append(opts, Option{Key: "id_column", Value: Quote(id)})
	}

	return "CREATE KNOWLEDGE_BASE " + Ident(spec.Name) + usingClause(opts) + ";", nil
}

// SplitAll drops blank entries from a list.
func SplitAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CreateIndex builds CREATE INDEX ON KNOWLEDGE_BASE.
func CreateIndex(kb string) string {
	return fmt.Sprintf("CREATE INDEX ON KNOWLEDGE_BASE %s;", Ident(kb))
}

// DropKnowledgeBase builds DROP KNOWLEDGE_BASE.
func DropKnowledgeBase(kb string) string {
	return fmt.Sprintf("DROP KNOWLEDGE_BASE %s;", Ident(kb))
}

// ListKnowledgeBases lists knowledge bases in a project.
func ListKnowledgeBases(project string) string {
	return fmt.Sprintf("SELECT * FROM %s;", Qualified(project, "knowledge_bases"))
}

// ColumnMapping maps a knowledge base column to a source column.
type ColumnMapping struct {
	Target string
	Source string
}

func (c ColumnMapping) selectExpr() string {
	if c.Target == "" || c.Target == c.Source {
		return Ident(c.Source)
	}
	return Ident(c.Source) + " AS " + Ident(c.Target)
}

// InsertSpec describes INSERT INTO kb SELECT ... FROM datasource.table.
type InsertSpec struct {
	KnowledgeBase string
	Datasource    string
	Table         string
	ContentColumn string
	Metadata      []ColumnMapping
	// OrderColumn defaults to "id".
	OrderColumn string
	// Limit of 0 ingests every row.
	Limit int
	// OnlyNew restricts the source to rows newer than the last job run.
	OnlyNew bool
}

// InsertFromSource builds an INSERT-SELECT that populates a knowledge base.
func InsertFromSource(spec InsertSpec) (string, error) {
	switch {
	case strings.TrimSpace(spec.KnowledgeBase) == "":
		return "", fmt.Errorf("knowledge base name is required")
	case strings.TrimSpace(spec.Datasource) == "" || strings.TrimSpace(spec.Table) == "":
		return "", fmt.Errorf("source datasource and table are required")
	case strings.TrimSpace(spec.ContentColumn) == "":
		return "", fmt.Errorf("content column is required")
	case spec.Limit < 0:
		return "", fmt.Errorf("limit must not be negative")
	}

	order := spec.OrderColumn
	if order == "" {
		order = "id"
	}

	cols := []string{Ident(spec.ContentColumn)}
	for _, m := range spec.Metadata {
		if m.Source == "" {
			return "", fmt.Errorf("metadata column %q has no source column", m.Target)
		}
		cols = append(cols, m.selectExpr())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s\nSELECT %s\nFROM %s.%s",
		Ident(spec.KnowledgeBase), strings.Join(cols, ", "), Ident(spec.Datasource), Ident(spec.Table))
	if spec.OnlyNew {
		fmt.Fprintf(&b, "\nWHERE %s > LAST", Ident(order))
	}
	if spec.Limit > 0 {
		fmt.Fprintf(&b, "\nORDER BY %s DESC\nLIMIT %d", Ident(order), spec.Limit)
	}
	b.WriteString(";")
	return b.String(), nil
}

// KBQuerySpec describes a semantic search over a knowledge base.
type KBQuerySpec struct {
	KnowledgeBase string
	Text          string
	Filter        map[string]any
	Limit         int
}

// QueryKnowledgeBase builds a content-similarity search with optional
// metadata predicates.
func QueryKnowledgeBase(spec KBQuerySpec) (string, error) {
	if strings.TrimSpace(spec.KnowledgeBase) == "" {
		return "", fmt.Errorf("knowledge base name is required")
	}
	if strings.TrimSpace(spec.Text) == "" {
		return "", fmt.Errorf("query text is required")
	}

	conds := []string{"content LIKE " + Quote(spec.Text)}
	filter, err := CompileFilter(spec.Filter)
	if err != nil {
		return "", err
	}
	conds = append(conds, filter...)

	sql := fmt.Sprintf("SELECT *\nFROM %s\nWHERE %s", Ident(spec.KnowledgeBase), strings.Join(conds, "\n  AND "))
	if spec.Limit > 0 {
		sql += fmt.Sprintf("\nLIMIT %d", spec.Limit)
	}
	return sql + ";", nil
}

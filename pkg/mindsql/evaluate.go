package mindsql

import (
	"fmt"
	"strings"
)

// Evaluation versions accepted by EVALUATE KNOWLEDGE_BASE.
const (
	EvalDocID        = "doc_id"
	EvalLLMRelevancy = "llm_relevancy"
)

// EvaluateSpec describes EVALUATE KNOWLEDGE_BASE.
type EvaluateSpec struct {
	KnowledgeBase string
	// TestTable is datasource.table holding (or receiving) test questions.
	TestTable string
	Version   string
	// GenerateData asks the server to synthesize test data first.
	GenerateData bool
	// GenerateFromSQL and GenerateCount narrow data generation. Either one
	// implies GenerateData.
	GenerateFromSQL string
	GenerateCount   int
	// SkipEvaluate only generates data.
	SkipEvaluate bool
	LLM          ModelConfig
	SaveTo       string
}

// EvaluateKnowledgeBase builds EVALUATE KNOWLEDGE_BASE.
func EvaluateKnowledgeBase(spec EvaluateSpec) (string, error) {
	if strings.TrimSpace(spec.KnowledgeBase) == "" {
		return "", fmt.Errorf("knowledge base name is required")
	}
	if strings.TrimSpace(spec.TestTable) == "" {
		return "", fmt.Errorf("test table is required")
	}
	version := spec.Version
	if version == "" {
		version = EvalDocID
	}
	if version != EvalDocID && version != EvalLLMRelevancy {
		return "", fmt.Errorf("version must be %s or %s, got %q", EvalDocID, EvalLLMRelevancy, version)
	}
	if spec.GenerateCount < 0 {
		return "", fmt.Errorf("generate count must not be negative")
	}

	opts := []Option{
		{Key: "test_table", Value: Ident(spec.TestTable)},
		{Key: "version", Value: Quote(version)},
	}

	switch {
	case spec.GenerateFromSQL != "" || spec.GenerateCount > 0:
		var fields []Field
		if spec.GenerateFromSQL != "" {
			fields = append(fields, Field{Key: "from_sql", Value: spec.GenerateFromSQL})
		}
		if spec.GenerateCount > 0 {
			fields = append(fields, Field{Key: "count", Value: spec.GenerateCount})
		}
		opts = append(opts, Option{Key: "generate_data", Value: Object(fields...)})
	case spec.GenerateData:
		opts = append(opts, Option{Key: "generate_data", Value: "true"})
	}

	if spec.SkipEvaluate {
		opts = append(opts, Option{Key: "evaluate", Value: "false"})
	}

	if !spec.LLM.IsZero() {
		llm, err := spec.LLM.Literal()
		if err != nil {
			return "", fmt.Errorf("llm: %w", err)
		}
		opts = append(opts, Option{Key: "llm", Value: llm})
	}
	if strings.TrimSpace(spec.SaveTo) != "" {
		opts = append(opts, Option{Key: "save_to", Value: Ident(spec.SaveTo)})
	}

	return "EVALUATE KNOWLEDGE_BASE " + Ident(spec.KnowledgeBase) + usingClause(opts) + ";", nil
}

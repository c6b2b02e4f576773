package mindsql

import (
	"fmt"
	"strings"
)

// AgentSpec describes CREATE AGENT.
type AgentSpec struct {
	Name           string
	Model          string
	GoogleAPIKey   string
	KnowledgeBases []string
	Tables         []string
	PromptTemplate string
	// Params are extra USING options, emitted in key order.
	Params map[string]any
}

// reserved agent options that Params may not override.
var agentOptions = map[string]bool{
	"model":                   true,
	"google_api_key":          true,
	"include_knowledge_bases": true,
	"include_tables":          true,
	"prompt_template":         true,
}

// CreateAgent builds CREATE AGENT.
func CreateAgent(spec AgentSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("agent name is required")
	}
	if strings.TrimSpace(spec.Model) == "" {
		return "", fmt.Errorf("agent model is required")
	}

	opts := []Option{{Key: "model", Value: Quote(spec.Model)}}
	if spec.GoogleAPIKey != "" {
		opts = append(opts, Option{Key: "google_api_key", Value: Quote(spec.GoogleAPIKey)})
	}
	kbs, err := StringOrList(spec.KnowledgeBases)
	if err != nil {
		return "", fmt.Errorf("include_knowledge_bases: %w", err)
	}
	opts = append(opts, Option{Key: "include_knowledge_bases", Value: kbs})
	if len(SplitAll(spec.Tables)) > 0 {
		tables, err := StringOrList(spec.Tables)
		if err != nil {
			return "", fmt.Errorf("include_tables: %w", err)
		}
		opts = append(opts, Option{Key: "include_tables", Value: tables})
	}
	if spec.PromptTemplate != "" {
		opts = append(opts, Option{Key: "prompt_template", Value: TripleQuote(spec.PromptTemplate)})
	}
	for _, o := range SortedOptions(spec.Params) {
		if agentOptions[o.Key] {
			return "", fmt.Errorf("parameter %q must be set with its own flag", o.Key)
		}
		opts = append(opts, o)
	}

	return "CREATE AGENT " + Ident(spec.Name) + usingClause(opts) + ";", nil
}

// QueryAgent asks an agent a question. All columns are selected because
// servers disagree on the name of the answer column.
func QueryAgent(project, name, question string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("agent name is required")
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required")
	}
	return fmt.Sprintf("SELECT *\nFROM %s\nWHERE question = %s;", Qualified(project, name), Quote(question)), nil
}

// DropAgent builds DROP AGENT.
func DropAgent(name string) string {
	return fmt.Sprintf("DROP AGENT %s;", Ident(name))
}

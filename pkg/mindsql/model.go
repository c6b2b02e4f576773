package mindsql

import (
	"fmt"
	"strings"
)

// DefaultEngine is the model engine used when none is given.
const DefaultEngine = "openai"

// ModelSpec describes CREATE MODEL and RETRAIN.
type ModelSpec struct {
	Project string
	Name    string
	// Integration is the datasource the training query runs against.
	// Empty means the project itself, which lets MindsDB federate the query.
	Integration    string
	SelectQuery    string
	Predict        string
	Engine         string
	PromptTemplate string
	Params         map[string]any
}

func (s ModelSpec) using() []Option {
	var opts []Option
	if s.Engine != "" {
		opts = append(opts, Option{Key: "engine", Value: Quote(s.Engine)})
	}
	if s.PromptTemplate != "" {
		opts = append(opts, Option{Key: "prompt_template", Value: TripleQuote(s.PromptTemplate)})
	}
	for _, o := range SortedOptions(s.Params) {
		if o.Key == "engine" || o.Key == "prompt_template" {
			continue
		}
		opts = append(opts, o)
	}
	return opts
}

func (s ModelSpec) fromClause() string {
	query := strings.TrimRight(strings.TrimSpace(s.SelectQuery), ";")
	if query == "" {
		return ""
	}
	integration := s.Integration
	if integration == "" {
		integration = s.Project
	}
	return fmt.Sprintf("\nFROM %s (\n    %s\n)", Ident(integration), query)
}

// CreateModel builds CREATE MODEL project.name.
func CreateModel(spec ModelSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("model name is required")
	}
	if strings.TrimSpace(spec.Predict) == "" {
		return "", fmt.Errorf("predict column is required")
	}
	if spec.Engine == "" {
		spec.Engine = DefaultEngine
	}
	if spec.Integration == "" && spec.Project == "" && spec.SelectQuery != "" {
		return "", fmt.Errorf("integration or project is required for a training query")
	}

	sql := "CREATE MODEL " + Qualified(spec.Project, spec.Name) +
		spec.fromClause() +
		"\nPREDICT " + Ident(spec.Predict) +
		usingClause(spec.using())
	return sql + ";", nil
}

// RetrainModel builds RETRAIN, optionally with a new training query and
// parameters.
func RetrainModel(spec ModelSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("model name is required")
	}
	return "RETRAIN " + Qualified(spec.Project, spec.Name) + spec.fromClause() + usingClause(spec.using()) + ";", nil
}

// ListModels lists the models of a project.
func ListModels(project string) string {
	return fmt.Sprintf("SELECT * FROM %s;", Qualified(project, "models"))
}

// DescribeModel builds DESCRIBE MODEL.
func DescribeModel(project, name string) string {
	return fmt.Sprintf("DESCRIBE MODEL %s;", Qualified(project, name))
}

// DropModel builds DROP MODEL.
func DropModel(project, name string) string {
	return fmt.Sprintf("DROP MODEL %s;", Qualified(project, name))
}

// QueryModel asks a generative model to process one input. The input
// column defaults to prompt.
func QueryModel(project, name, inputColumn, text string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("model name is required")
	}
	if inputColumn == "" {
		inputColumn = "prompt"
	}
	return fmt.Sprintf("SELECT *\nFROM %s\nWHERE %s = %s;", Qualified(project, name), Ident(inputColumn), Quote(text)), nil
}

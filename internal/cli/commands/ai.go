package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// stdinIsTerminal reports whether prompts can be answered interactively.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// NewAICommand creates the ai command group.
func NewAICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Manage and query MindsDB models",
	}
	cmd.AddCommand(
		newAICreateModelCommand(),
		newAIListModelsCommand(),
		newAIDescribeModelCommand(),
		newAIDropModelCommand(),
		newAIRefreshModelCommand(),
		newAIQueryCommand(),
		newAIAskCommand(),
	)
	return cmd
}

// AIModelOptions holds options for the model commands.
type AIModelOptions struct {
	SelectQuery    string
	Predict        string
	Project        string
	Integration    string
	Engine         string
	PromptTemplate string
	Params         []string
}

func newAICreateModelCommand() *cobra.Command {
	opts := &AIModelOptions{}

	cmd := &cobra.Command{
		Use:   "create-model <name>",
		Short: "Create (train) a model",
		Long: `Create a model predicting one column.

The training query runs against --integration, or the project itself when
omitted. Engine parameters are passed with repeated --param key=value;
numbers and booleans are sent unquoted.`,
		Example: `  kleos ai create-model summarizer --predict-column summary \
    --select-data-query "SELECT title FROM hackernews.stories LIMIT 10" \
    --prompt-template "Summarize: {{title}}" --param model_name=gpt-4o-mini --param max_tokens=200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAICreateModel(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.SelectQuery, "select-data-query", "", "Training query")
	f.StringVar(&opts.Predict, "predict-column", "", "Column the model predicts")
	f.StringVar(&opts.Project, "project-name", "", "Project of the model (default: session project)")
	f.StringVar(&opts.Integration, "integration", "", "Datasource the training query runs against (default: the project)")
	f.StringVar(&opts.Engine, "engine", mindsql.DefaultEngine, "ML engine")
	f.StringVar(&opts.PromptTemplate, "prompt-template", "", "Prompt template for generative engines")
	f.StringArrayVar(&opts.Params, "param", nil, "Engine parameter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("predict-column")

	return cmd
}

func runAICreateModel(cmd *cobra.Command, args []string, opts *AIModelOptions) error {
	params, err := parseParams("param", opts.Params)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	sql, err := mindsql.CreateModel(mindsql.ModelSpec{
		Project:        project,
		Name:           args[0],
		Integration:    opts.Integration,
		SelectQuery:    opts.SelectQuery,
		Predict:        opts.Predict,
		Engine:         opts.Engine,
		PromptTemplate: opts.PromptTemplate,
		Params:         params,
	})
	if err != nil {
		return err
	}

	outcome, err := cmdCtx.execMasked(ctx, sql, session.IsAlreadyExists)
	if err != nil {
		return err
	}
	return cmdCtx.reportOutcome("model", project+"."+args[0], outcome, "created", "already exists")
}

// AIProjectOptions holds the project selector shared by model readers.
type AIProjectOptions struct {
	Project string
	Yes     bool
}

func newAIListModelsCommand() *cobra.Command {
	opts := &AIProjectOptions{}

	cmd := &cobra.Command{
		Use:   "list-models",
		Short: "List models in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			project, err := cmdCtx.project(cmd.Context(), opts.Project)
			if err != nil {
				return err
			}
			res := cmdCtx.run(cmd.Context(), mindsql.ListModels(project))
			if res.Kind == core.ResultRows {
				res.Table = normalize.Project(res.Table, normalize.ModelColumns...)
			}
			return cmdCtx.showTable(res, fmt.Sprintf("No models in project %q", project))
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project to list (default: session project)")

	return cmd
}

func newAIDescribeModelCommand() *cobra.Command {
	opts := &AIProjectOptions{}

	cmd := &cobra.Command{
		Use:   "describe-model <name>",
		Short: "Show a model's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAIDescribeModel(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the model (default: session project)")

	return cmd
}

func runAIDescribeModel(cmd *cobra.Command, args []string, opts *AIProjectOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	name := project + "." + args[0]
	res := cmdCtx.run(ctx, mindsql.DescribeModel(project, args[0]))
	switch {
	case res.Kind == core.ResultError && session.IsNotFound(res.Err):
		cmdCtx.Logger.Debug("describe failed", "error", res.Err)
		fallthrough
	case res.Kind == core.ResultEmpty:
		cmdCtx.Renderer.Warning(fmt.Sprintf("Model %q not found", name))
		return nil
	case res.Kind == core.ResultError:
		return res.Err
	}

	pairs, multiple, err := normalize.PickPairs(res.Table, normalize.NameColumns, args[0])
	if err != nil {
		return err
	}
	if multiple {
		cmdCtx.Renderer.Warning(fmt.Sprintf("%d rows returned for model %q, showing one", res.Table.Len(), name))
	}
	return cmdCtx.Renderer.KeyValues("Model "+name, keyValues(pairs))
}

func newAIDropModelCommand() *cobra.Command {
	opts := &AIProjectOptions{}

	cmd := &cobra.Command{
		Use:   "drop-model <name>",
		Short: "Drop a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAIDropModel(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the model (default: session project)")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runAIDropModel(cmd *cobra.Command, args []string, opts *AIProjectOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	name := project + "." + args[0]

	if !opts.Yes && stdinIsTerminal() {
		ok, err := confirm(cmd, fmt.Sprintf("Drop model %s?", name))
		if err != nil {
			return err
		}
		if !ok {
			cmdCtx.Renderer.Info("Aborted")
			return nil
		}
	}

	outcome, err := cmdCtx.execMasked(ctx, mindsql.DropModel(project, args[0]), session.IsNotFound)
	if err != nil {
		return err
	}
	return cmdCtx.reportOutcome("model", name, outcome, "dropped", "not found")
}

// confirm asks a yes/no question on the command's streams. Anything but
// y or yes declines.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newAIRefreshModelCommand() *cobra.Command {
	opts := &AIModelOptions{}

	cmd := &cobra.Command{
		Use:   "refresh-model <name>",
		Short: "Retrain a model, optionally on new data",
		Example: `  kleos ai refresh-model summarizer

  kleos ai refresh-model summarizer --select-data-query "SELECT title FROM hackernews.stories LIMIT 50"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAIRefreshModel(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.SelectQuery, "select-data-query", "", "New training query")
	f.StringVar(&opts.Project, "project-name", "", "Project of the model (default: session project)")
	f.StringVar(&opts.Integration, "integration", "", "Datasource the training query runs against (default: the project)")
	f.StringArrayVar(&opts.Params, "param", nil, "Engine parameter as key=value (repeatable)")

	return cmd
}

func runAIRefreshModel(cmd *cobra.Command, args []string, opts *AIModelOptions) error {
	params, err := parseParams("param", opts.Params)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	sql, err := mindsql.RetrainModel(mindsql.ModelSpec{
		Project:     project,
		Name:        args[0],
		Integration: opts.Integration,
		SelectQuery: opts.SelectQuery,
		Params:      params,
	})
	if err != nil {
		return err
	}
	res := cmdCtx.run(ctx, sql)
	if !res.OK() {
		return res.Err
	}
	if res.Kind == core.ResultRows {
		res.Table = normalize.Project(res.Table, normalize.ModelColumns...)
		return cmdCtx.Renderer.Table(res.Table)
	}
	return cmdCtx.reportOutcome("model", project+"."+args[0], outcomeDone, "retraining", "")
}

func newAIQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL statement and show its result",
		Example: `  kleos ai query "SELECT * FROM mindsdb.models"

  kleos ai query "SELECT answer FROM mindsdb.hn_agent WHERE question = 'top stories?'"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return cmdCtx.showTable(cmdCtx.run(cmd.Context(), strings.Join(args, " ")), "Statement returned no rows")
		},
	}
}

// AIAskOptions holds options for the ai ask command.
type AIAskOptions struct {
	Project      string
	InputColumn  string
	OutputColumn string
}

func newAIAskCommand() *cobra.Command {
	opts := &AIAskOptions{}

	cmd := &cobra.Command{
		Use:     "ask <model> <text>",
		Short:   "Send one input to a generative model",
		Example: `  kleos ai ask summarizer "Go 1.24 ships generic type aliases"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAIAsk(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Project, "project-name", "", "Project of the model (default: session project)")
	f.StringVar(&opts.InputColumn, "input-column", "prompt", "Input column of the model")
	f.StringVar(&opts.OutputColumn, "output-column", "response", "Predicted column to show")

	return cmd
}

func runAIAsk(cmd *cobra.Command, args []string, opts *AIAskOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	sql, err := mindsql.QueryModel(project, args[0], opts.InputColumn, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	res := cmdCtx.run(ctx, sql)
	if !res.OK() {
		return res.Err
	}
	aliases := append([]string{opts.OutputColumn}, normalize.AnswerColumns...)
	return cmdCtx.showAnswer(res.Table, opts.OutputColumn, aliases...)
}

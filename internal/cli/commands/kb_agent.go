package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// KBCreateAgentOptions holds options for the kb create-agent command.
type KBCreateAgentOptions struct {
	Model          string
	GoogleAPIKey   string
	KnowledgeBases []string
	Tables         []string
	PromptTemplate string
	OtherParams    string
}

func newKBCreateAgentCommand() *cobra.Command {
	opts := &KBCreateAgentOptions{}

	cmd := &cobra.Command{
		Use:   "create-agent <agent>",
		Short: "Create an agent that answers from knowledge bases",
		Long: `Create an agent over one or more knowledge bases and tables.

The Google API key defaults to the configured Gemini key (llm.api_key,
GOOGLE_GEMINI_API_KEY, or the keyring). Re-running for an existing agent
succeeds.`,
		Example: `  kleos kb create-agent hn_agent --model-name gemini-2.0-flash --include-knowledge-bases hn_kb

  kleos kb create-agent hn_agent --model-name gemini-2.0-flash \
    --include-knowledge-bases hn_kb,docs_kb --include-tables hackernews.stories \
    --prompt-template "Answer using the HackerNews stories." --other-params '{"temperature":0.2}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBCreateAgent(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Model, "model-name", "", "LLM model the agent uses (default from config)")
	f.StringVar(&opts.GoogleAPIKey, "google-api-key", "", "Google API key (default: configured Gemini key)")
	f.StringSliceVar(&opts.KnowledgeBases, "include-knowledge-bases", nil, "Knowledge bases the agent may search")
	f.StringSliceVar(&opts.Tables, "include-tables", nil, "Tables the agent may query")
	f.StringVar(&opts.PromptTemplate, "prompt-template", "", "Instructions for the agent")
	f.StringVar(&opts.OtherParams, "other-params", "", "JSON object of extra agent parameters")
	_ = cmd.MarkFlagRequired("include-knowledge-bases")

	return cmd
}

func runKBCreateAgent(cmd *cobra.Command, args []string, opts *KBCreateAgentOptions) error {
	var params map[string]any
	if strings.TrimSpace(opts.OtherParams) != "" {
		if err := decodeJSONFlag("other-params", opts.OtherParams, &params); err != nil {
			return err
		}
	}
	if len(mindsql.SplitAll(opts.KnowledgeBases)) == 0 {
		return flagErrorf("include-knowledge-bases", "at least one knowledge base is required")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	model := opts.Model
	if model == "" {
		model = cmdCtx.Cfg.LLM.Model
	}
	if model == "" {
		return flagErrorf("model-name", "no model given and none configured")
	}
	key := opts.GoogleAPIKey
	if key == "" {
		key = cmdCtx.Cfg.LLM.APIKey
	}

	sql, err := mindsql.CreateAgent(mindsql.AgentSpec{
		Name:           args[0],
		Model:          model,
		GoogleAPIKey:   key,
		KnowledgeBases: mindsql.SplitAll(opts.KnowledgeBases),
		Tables:         mindsql.SplitAll(opts.Tables),
		PromptTemplate: opts.PromptTemplate,
		Params:         params,
	})
	if err != nil {
		return err
	}

	outcome, err := cmdCtx.execMasked(cmd.Context(), sql, session.IsAlreadyExists)
	if err != nil {
		return err
	}
	return cmdCtx.reportOutcome("agent", args[0], outcome, "created", "already exists")
}

// KBQueryAgentOptions holds options for the kb query-agent command.
type KBQueryAgentOptions struct {
	Project string
}

func newKBQueryAgentCommand() *cobra.Command {
	opts := &KBQueryAgentOptions{}

	cmd := &cobra.Command{
		Use:     "query-agent <agent> <question>",
		Short:   "Ask an agent a question",
		Example: `  kleos kb query-agent hn_agent "What are people saying about Go generics?"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBQueryAgent(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the agent (default: session project)")

	return cmd
}

func runKBQueryAgent(cmd *cobra.Command, args []string, opts *KBQueryAgentOptions) error {
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
	sql, err := mindsql.QueryAgent(project, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	res := cmdCtx.run(ctx, sql)
	if !res.OK() {
		return res.Err
	}
	return cmdCtx.showAnswer(res.Table, "answer", normalize.AnswerColumns...)
}

// showAnswer renders the first row's answer column. Without one, the
// whole row is shown so nothing the server said is lost.
func (c *CommandContext) showAnswer(t *core.Table, key string, aliases ...string) error {
	r := c.Renderer
	v, err := normalize.Scalar(t, aliases...)
	if errors.Is(err, normalize.ErrNoRows) {
		r.Warning("No answer returned")
		return nil
	}
	if err != nil {
		return err
	}
	if v.Fallback {
		c.Logger.Warn("answer column missing, showing full row", "expected", strings.Join(aliases, ","), "columns", strings.Join(t.Columns, ","))
		r.Warning(fmt.Sprintf("No %s column in result; showing the full row", strings.Join(aliases, "/")))
		pairs := make([]output.KV, 0, len(v.Row))
		for _, k := range normalize.SortedKeys(v.Row) {
			pairs = append(pairs, output.KV{Key: k, Value: normalize.Text(v.Row[k])})
		}
		return r.KeyValues("", pairs)
	}
	return r.Text(key, v.Text)
}

func newKBDropAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-agent <agent>",
		Short: "Drop an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := cmdCtx.execMasked(cmd.Context(), mindsql.DropAgent(args[0]), session.IsNotFound)
			if err != nil {
				return err
			}
			return cmdCtx.reportOutcome("agent", args[0], outcome, "dropped", "not found")
		},
	}
}

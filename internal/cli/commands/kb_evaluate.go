package commands

import (
	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// KBEvaluateOptions holds options for the kb evaluate command.
type KBEvaluateOptions struct {
	TestTable       string
	Version         string
	GenerateData    bool
	GenerateFromSQL string
	GenerateCount   int
	NoEvaluate      bool
	LLM             modelFlags
	SaveTo          string
}

func newKBEvaluateCommand() *cobra.Command {
	opts := &KBEvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate <kb>",
		Short: "Evaluate retrieval quality of a knowledge base",
		Long: `Run EVALUATE KNOWLEDGE_BASE against a table of test questions.

The server can generate the test data first (--generate-data). The
llm_relevancy version grades answers with an LLM, which defaults to the
llm section of the config.`,
		Example: `  # Generate 50 questions from the stories and evaluate
  kleos kb evaluate hn_kb --test-table files.hn_test --generate-data-count 50

  # LLM-graded relevancy, results saved to a table
  kleos kb evaluate hn_kb --test-table files.hn_test --version llm_relevancy --save-to-table files.hn_eval`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBEvaluate(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.TestTable, "test-table", "", "datasource.table holding the test questions")
	f.StringVar(&opts.Version, "version", mindsql.EvalDocID, "Evaluation version: doc_id or llm_relevancy")
	f.BoolVar(&opts.GenerateData, "generate-data", false, "Generate test data before evaluating")
	f.StringVar(&opts.GenerateFromSQL, "generate-data-from-sql", "", "Query whose rows seed test data generation")
	f.IntVar(&opts.GenerateCount, "generate-data-count", 0, "Number of test questions to generate")
	f.BoolVar(&opts.NoEvaluate, "no-evaluate", false, "Only generate test data")
	opts.LLM.bind(f, "llm", "llm-model-name", "Evaluation LLM")
	f.StringVar(&opts.SaveTo, "save-to-table", "", "datasource.table receiving the results")
	_ = cmd.MarkFlagRequired("test-table")

	return cmd
}

func runKBEvaluate(cmd *cobra.Command, args []string, opts *KBEvaluateOptions) error {
	switch opts.Version {
	case mindsql.EvalDocID, mindsql.EvalLLMRelevancy:
	default:
		return flagErrorf("version", "must be %s or %s", mindsql.EvalDocID, mindsql.EvalLLMRelevancy)
	}
	if opts.GenerateCount < 0 {
		return flagErrorf("generate-data-count", "must not be negative")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var llm mindsql.ModelConfig
	if opts.LLM != (modelFlags{}) || opts.Version == mindsql.EvalLLMRelevancy {
		llm = opts.LLM.resolve(cmdCtx.Cfg.LLM)
		if llm.Model == "" {
			return flagErrorf("llm-model-name", "is required for provider %q", llm.Provider)
		}
	}

	sql, err := mindsql.EvaluateKnowledgeBase(mindsql.EvaluateSpec{
		KnowledgeBase:   args[0],
		TestTable:       opts.TestTable,
		Version:         opts.Version,
		GenerateData:    opts.GenerateData,
		GenerateFromSQL: opts.GenerateFromSQL,
		GenerateCount:   opts.GenerateCount,
		SkipEvaluate:    opts.NoEvaluate,
		LLM:             llm,
		SaveTo:          opts.SaveTo,
	})
	if err != nil {
		return err
	}

	cmdCtx.Logger.Info("evaluating knowledge base", "kb", args[0], "version", opts.Version)
	msg := "Evaluation finished without a report"
	if opts.NoEvaluate {
		msg = "Test data generated"
	}
	return cmdCtx.showTable(cmdCtx.run(cmd.Context(), sql), msg)
}

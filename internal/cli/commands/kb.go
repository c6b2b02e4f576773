package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/hackernews"
	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// NewKBCommand creates the kb command group.
func NewKBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kb",
		Aliases: []string{"knowledge-base"},
		Short:   "Manage knowledge bases, agents, and evaluations",
	}
	cmd.AddCommand(
		newKBCreateCommand(),
		newKBIndexCommand(),
		newKBIngestCommand(),
		newKBQueryCommand(),
		newKBListDatabasesCommand(),
		newKBListCommand(),
		newKBDropCommand(),
		newKBCreateAgentCommand(),
		newKBQueryAgentCommand(),
		newKBDropAgentCommand(),
		newKBEvaluateCommand(),
	)
	return cmd
}

// KBCreateOptions holds options for the kb create command.
type KBCreateOptions struct {
	Embedding       modelFlags
	Reranking       modelFlags
	ContentColumns  []string
	MetadataColumns []string
	IDColumn        string
}

func newKBCreateCommand() *cobra.Command {
	opts := &KBCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a knowledge base",
		Long: `Create a knowledge base backed by an embedding model.

Provider settings default to the embedding section of the config file.
Re-running the command for an existing knowledge base succeeds.`,
		Example: `  # Ollama embeddings with the configured defaults
  kleos kb create hn_kb

  # OpenAI embeddings and reranking
  kleos kb create docs_kb --embedding-provider openai --embedding-model text-embedding-3-small \
    --reranking-model gpt-4o --content-columns body --metadata-columns author,score`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBCreate(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	opts.Embedding.bind(f, "embedding", "embedding-model", "Embedding")
	opts.Reranking.bind(f, "reranking", "reranking-model", "Reranking")
	f.StringSliceVar(&opts.ContentColumns, "content-columns", nil, "Columns embedded as content")
	f.StringSliceVar(&opts.MetadataColumns, "metadata-columns", nil, "Columns stored as metadata")
	f.StringVar(&opts.IDColumn, "id-column", "", "Column used as the document id")

	return cmd
}

func runKBCreate(cmd *cobra.Command, args []string, opts *KBCreateOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	name := args[0]
	embedding := opts.Embedding.resolve(cmdCtx.Cfg.Embedding)
	if embedding.Provider == "" {
		return flagErrorf("embedding-provider", "no provider given and none configured")
	}
	if embedding.Model == "" {
		return flagErrorf("embedding-model", "is required for provider %q", embedding.Provider)
	}
	reranking, err := opts.Reranking.resolveReranking(cmdCtx.Cfg.Reranking, embedding)
	if err != nil {
		return err
	}

	sql, err := mindsql.CreateKnowledgeBase(mindsql.KnowledgeBaseSpec{
		Name:            name,
		Embedding:       embedding,
		Reranking:       reranking,
		ContentColumns:  mindsql.SplitAll(opts.ContentColumns),
		MetadataColumns: mindsql.SplitAll(opts.MetadataColumns),
		IDColumn:        opts.IDColumn,
	})
	if err != nil {
		return err
	}

	outcome, err := cmdCtx.execMasked(cmd.Context(), sql, session.IsAlreadyExists)
	if err != nil {
		return err
	}
	return cmdCtx.reportOutcome("knowledge base", name, outcome, "created", "already exists")
}

func newKBIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index <name>",
		Short: "Build the vector index of a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.exec(cmd.Context(), mindsql.CreateIndex(args[0])); err != nil {
				return err
			}
			return cmdCtx.reportOutcome("index", args[0], outcomeDone, "created", "")
		},
	}
}

// KBIngestOptions holds options for the kb ingest command.
type KBIngestOptions struct {
	FromHackerNews string
	Datasource     string
	Limit          int
	ContentColumn  string
	MetadataMap    string
}

func newKBIngestCommand() *cobra.Command {
	opts := &KBIngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <name>",
		Short: "Load rows from a HackerNews table into a knowledge base",
		Long: `Insert rows from the HackerNews datasource into a knowledge base.

Known tables (` + strings.Join(hackernews.Tables(), ", ") + `) come with a default
content column and metadata mapping. Other tables need --content-column.
The datasource is created first when it does not exist.`,
		Example: `  # Latest 100 stories, titles as content
  kleos kb ingest hn_kb --from-hackernews stories --limit 100

  # Custom metadata mapping (knowledge base column -> source column)
  kleos kb ingest hn_kb --from-hackernews stories --metadata-map '{"story_id":"id","by":"by"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBIngest(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.FromHackerNews, "from-hackernews", "", "HackerNews table to ingest (stories, comments, ...)")
	f.StringVar(&opts.Datasource, "hn-datasource", "", "HackerNews datasource name (default from config, hackernews)")
	f.IntVar(&opts.Limit, "limit", 100, "Maximum rows to ingest, newest first (0 for all)")
	f.StringVar(&opts.ContentColumn, "content-column", "", "Source column embedded as content")
	f.StringVar(&opts.MetadataMap, "metadata-map", "", "JSON object mapping metadata columns to source columns")
	_ = cmd.MarkFlagRequired("from-hackernews")

	return cmd
}

func runKBIngest(cmd *cobra.Command, args []string, opts *KBIngestOptions) error {
	if opts.Limit < 0 {
		return flagErrorf("limit", "must not be negative")
	}
	metadata, err := parseMetadataMap(opts.MetadataMap)
	if err != nil {
		return err
	}
	mapping, err := hackernews.Resolve(opts.FromHackerNews, opts.ContentColumn, metadata)
	if err != nil {
		return &FlagError{Flag: "content-column", Reason: err.Error()}
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	kb := args[0]
	ds := cmdCtx.datasourceName(opts.Datasource)

	created, err := cmdCtx.ensureDatasource(ctx, ds)
	if err != nil {
		return err
	}
	if created {
		cmdCtx.Renderer.Info(fmt.Sprintf("Created datasource %q", ds))
	}

	sql, err := mindsql.InsertFromSource(hackernews.IngestSpec(kb, ds, opts.FromHackerNews, mapping, opts.Limit))
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("ingesting", "kb", kb, "source", ds+"."+opts.FromHackerNews, "content", mapping.Content)
	if err := cmdCtx.exec(ctx, sql); err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.Structured() {
		return r.Data(map[string]any{
			"knowledge_base": kb,
			"source":         ds + "." + opts.FromHackerNews,
			"content_column": mapping.Content,
			"limit":          opts.Limit,
		})
	}
	r.Success(fmt.Sprintf("Ingested %s.%s into %q (content: %s)", ds, opts.FromHackerNews, kb, mapping.Content))
	return nil
}

// KBQueryOptions holds options for the kb query command.
type KBQueryOptions struct {
	MetadataFilter string
	Limit          int
}

func newKBQueryCommand() *cobra.Command {
	opts := &KBQueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <name> <text>",
		Short: "Semantic search over a knowledge base",
		Long: `Search a knowledge base by content similarity.

--metadata-filter takes a JSON object. Plain values compare for equality;
operator objects support $eq, $ne, $gt, $gte, $lt, $lte, $in and $nin.`,
		Example: `  kleos kb query hn_kb "rust web frameworks"

  kleos kb query hn_kb "databases" --metadata-filter '{"score":{"$gt":50}}' --limit 10`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.MetadataFilter, "metadata-filter", "", "JSON object of metadata conditions")
	cmd.Flags().IntVar(&opts.Limit, "limit", 5, "Maximum results")

	return cmd
}

func runKBQuery(cmd *cobra.Command, args []string, opts *KBQueryOptions) error {
	if opts.Limit < 0 {
		return flagErrorf("limit", "must not be negative")
	}
	var filter map[string]any
	if strings.TrimSpace(opts.MetadataFilter) != "" {
		if err := decodeJSONFlag("metadata-filter", opts.MetadataFilter, &filter); err != nil {
			return err
		}
	}

	sql, err := mindsql.QueryKnowledgeBase(mindsql.KBQuerySpec{
		KnowledgeBase: args[0],
		Text:          strings.Join(args[1:], " "),
		Filter:        filter,
		Limit:         opts.Limit,
	})
	var fe *mindsql.FilterError
	if errors.As(err, &fe) {
		return &FlagError{Flag: "metadata-filter", Reason: err.Error()}
	}
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	return cmdCtx.showTable(cmdCtx.run(cmd.Context(), sql), "No matching documents")
}

func newKBListDatabasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-databases",
		Short: "List datasources and projects on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return cmdCtx.showTable(cmdCtx.run(cmd.Context(), mindsql.ShowDatabases()), "No databases found")
		},
	}
}

// KBListOptions holds options for the kb list command.
type KBListOptions struct {
	Project string
}

func newKBListCommand() *cobra.Command {
	opts := &KBListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge bases in a project",
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
			res := cmdCtx.run(cmd.Context(), mindsql.ListKnowledgeBases(project))
			if res.Kind == core.ResultRows {
				res.Table = normalize.Project(res.Table, "name", "project", "embedding_model", "reranking_model", "storage")
			}
			return cmdCtx.showTable(res, fmt.Sprintf("No knowledge bases in project %q", project))
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project to list (default: session project)")

	return cmd
}

func newKBDropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <name>",
		Short: "Drop a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := cmdCtx.execMasked(cmd.Context(), mindsql.DropKnowledgeBase(args[0]), session.IsNotFound)
			if err != nil {
				return err
			}
			return cmdCtx.reportOutcome("knowledge base", args[0], outcome, "dropped", "not found")
		},
	}
}

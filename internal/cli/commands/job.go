package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kleos-cli/kleos/internal/cli/output"
	"github.com/kleos-cli/kleos/internal/hackernews"
	"github.com/kleos-cli/kleos/internal/normalize"
	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/kleos-cli/kleos/pkg/mindsql"
)

// NewJobCommand creates the job command group.
func NewJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage scheduled MindsDB jobs",
	}
	cmd.AddCommand(
		newJobCreateCommand(),
		newJobUpdateHNRefreshCommand(),
		newJobListCommand(),
		newJobStatusCommand(),
		newJobHistoryCommand(),
		newJobLogsCommand(),
		newJobDropCommand(),
	)
	return cmd
}

// JobCreateOptions holds options for the job create-generic command.
type JobCreateOptions struct {
	Start       string
	End         string
	Schedule    string
	IfCondition string
	IfNotExists bool
}

func newJobCreateCommand() *cobra.Command {
	opts := &JobCreateOptions{}

	cmd := &cobra.Command{
		Use:     "create-generic <name> <sql>...",
		Aliases: []string{"create"},
		Short:   "Create a job from one or more SQL statements",
		Long: `Create a job running the given statements in order.

--schedule takes an interval such as "1 hour", "30 minutes" or "every 2 days".
--start and --end accept YYYY-MM-DD or YYYY-MM-DD HH:MM:SS.`,
		Example: `  kleos job create my_job "INSERT INTO hn_kb SELECT title FROM hackernews.stories" --schedule "1 hour"

  kleos job create nightly "DELETE FROM files.tmp" "INSERT INTO files.tmp SELECT * FROM db.t" \
    --start "2025-01-01" --schedule "1 day" --if-condition "SELECT * FROM db.t WHERE ready = 1"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobCreate(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Start, "start", "", "First run time")
	f.StringVar(&opts.End, "end", "", "Last run time")
	f.StringVar(&opts.Schedule, "schedule", "", "Repeat interval, e.g. \"1 hour\"")
	f.StringVar(&opts.IfCondition, "if-condition", "", "Query that must return rows for the job to run")
	f.BoolVar(&opts.IfNotExists, "if-not-exists", false, "Do nothing when the job exists")

	return cmd
}

func runJobCreate(cmd *cobra.Command, args []string, opts *JobCreateOptions) error {
	for _, ts := range [][2]string{{"start", opts.Start}, {"end", opts.End}} {
		if ts[1] == "" {
			continue
		}
		if _, err := mindsql.NormalizeTimestamp(ts[1]); err != nil {
			return &FlagError{Flag: ts[0], Reason: err.Error()}
		}
	}

	sql, err := mindsql.CreateJob(mindsql.JobSpec{
		Name:        args[0],
		IfNotExists: opts.IfNotExists,
		Statements:  args[1:],
		Start:       opts.Start,
		End:         opts.End,
		Schedule:    opts.Schedule,
		IfCondition: opts.IfCondition,
	})
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := cmdCtx.execMasked(cmd.Context(), sql, session.IsAlreadyExists)
	if err != nil {
		return err
	}
	cmdCtx.nextRunHint(opts.Schedule)
	return cmdCtx.reportOutcome("job", args[0], outcome, "created", "already exists")
}

// nextRunHint logs the estimated next run of a recognizable schedule.
// Server-specific forms are passed through and only logged.
func (c *CommandContext) nextRunHint(schedule string) {
	if schedule == "" {
		return
	}
	iv, err := mindsql.ParseInterval(schedule)
	if err != nil {
		c.Logger.Warn("schedule not recognized, sent as given", "schedule", schedule, "error", err)
		return
	}
	next, err := iv.Next(time.Now())
	if err != nil {
		return
	}
	c.Logger.Info("job scheduled", "every", iv.String(), "next_run", next.Format(time.DateTime))
}

// JobRefreshOptions holds options for the job update-hn-refresh command.
type JobRefreshOptions struct {
	Table         string
	Datasource    string
	Schedule      string
	ContentColumn string
	MetadataMap   string
	Project       string
}

func newJobUpdateHNRefreshCommand() *cobra.Command {
	opts := &JobRefreshOptions{}

	cmd := &cobra.Command{
		Use:   "update-hn-refresh <job> <kb>",
		Short: "(Re)create a job that keeps a knowledge base fed from HackerNews",
		Long: `Drop and recreate a job that inserts HackerNews rows newer than its
previous run into a knowledge base.`,
		Example: `  kleos job update-hn-refresh hn_refresh hn_kb

  kleos job update-hn-refresh hn_refresh hn_kb --table comments --schedule "30 minutes"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobUpdateHNRefresh(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Table, "table", hackernews.DefaultTable, "HackerNews table to ingest")
	f.StringVar(&opts.Datasource, "hn-datasource", "", "HackerNews datasource name (default from config, hackernews)")
	f.StringVar(&opts.Schedule, "schedule", hackernews.DefaultSchedule, "Refresh interval")
	f.StringVar(&opts.ContentColumn, "content-column", "", "Source column embedded as content")
	f.StringVar(&opts.MetadataMap, "metadata-map", "", "JSON object mapping metadata columns to source columns")
	f.StringVar(&opts.Project, "project-name", "", "Project of the job (default: session project)")

	return cmd
}

func runJobUpdateHNRefresh(cmd *cobra.Command, args []string, opts *JobRefreshOptions) error {
	metadata, err := parseMetadataMap(opts.MetadataMap)
	if err != nil {
		return err
	}
	mapping, err := hackernews.Resolve(opts.Table, opts.ContentColumn, metadata)
	if err != nil {
		return &FlagError{Flag: "content-column", Reason: err.Error()}
	}
	every, err := mindsql.ParseInterval(opts.Schedule)
	if err != nil {
		return &FlagError{Flag: "schedule", Reason: err.Error()}
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	job, kb := args[0], args[1]
	ds := cmdCtx.datasourceName(opts.Datasource)

	project, err := cmdCtx.project(ctx, opts.Project)
	if err != nil {
		return err
	}
	create, err := hackernews.RefreshJob(hackernews.RefreshSpec{
		Project:       project,
		Job:           job,
		KnowledgeBase: kb,
		Datasource:    ds,
		Table:         opts.Table,
		Schedule:      opts.Schedule,
		Mapping:       mapping,
	})
	if err != nil {
		return err
	}
	if created, err := cmdCtx.ensureDatasource(ctx, ds); err != nil {
		return err
	} else if created {
		cmdCtx.Renderer.Info(fmt.Sprintf("Created datasource %q", ds))
	}

	if outcome, err := cmdCtx.execMasked(ctx, mindsql.DropJob(project, job), session.IsNotFound); err != nil {
		return err
	} else if outcome == outcomeDone {
		cmdCtx.Logger.Info("dropped previous job", "job", job)
	}
	if err := cmdCtx.exec(ctx, create); err != nil {
		return err
	}
	cmdCtx.nextRunHint(opts.Schedule)
	return cmdCtx.reportOutcome("job", job, outcomeDone, "refreshes "+kb+" every "+every.String(), "")
}

// JobListOptions holds options shared by the job read commands.
type JobListOptions struct {
	Project string
	Limit   int
}

func newJobListCommand() *cobra.Command {
	opts := &JobListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in a project",
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
			return cmdCtx.showTable(cmdCtx.run(cmd.Context(), mindsql.ListJobs(project)),
				fmt.Sprintf("No jobs in project %q", project))
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project to list (default: session project)")

	return cmd
}

func newJobStatusCommand() *cobra.Command {
	opts := &JobListOptions{}

	cmd := &cobra.Command{
		Use:   "status <name>",
		Short: "Show a job's definition and schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobStatus(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the job (default: session project)")

	return cmd
}

func runJobStatus(cmd *cobra.Command, args []string, opts *JobListOptions) error {
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
	res := cmdCtx.run(ctx, mindsql.JobStatus(project, args[0]))
	switch res.Kind {
	case core.ResultError:
		return res.Err
	case core.ResultEmpty:
		cmdCtx.Renderer.Warning(fmt.Sprintf("Job %q not found in project %q", args[0], project))
		return nil
	}

	pairs, multiple, err := normalize.PickPairs(res.Table, normalize.NameColumns, args[0])
	if err != nil {
		return err
	}
	if multiple {
		cmdCtx.Renderer.Warning(fmt.Sprintf("%d rows returned for job %q, showing one", res.Table.Len(), args[0]))
	}
	return cmdCtx.Renderer.KeyValues("Job "+args[0], keyValues(pairs))
}

func keyValues(pairs []normalize.Pair) []output.KV {
	kvs := make([]output.KV, len(pairs))
	for i, p := range pairs {
		kvs[i] = output.KV{Key: p.Key, Value: p.Value}
	}
	return kvs
}

func newJobHistoryCommand() *cobra.Command {
	return newJobRunsCommand("history", "Show recent runs of a job", mindsql.JobHistory, "No runs recorded")
}

func newJobLogsCommand() *cobra.Command {
	return newJobRunsCommand("logs", "Show failed runs of a job with their errors", mindsql.JobLogs, "No failed runs recorded")
}

// newJobRunsCommand builds the log.jobs_history readers.
func newJobRunsCommand(use, short string, build func(project, name string, limit int) string, empty string) *cobra.Command {
	opts := &JobListOptions{}

	cmd := &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 0 {
				return flagErrorf("limit", "must not be negative")
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			project, err := cmdCtx.project(cmd.Context(), opts.Project)
			if err != nil {
				return err
			}
			return cmdCtx.showTable(cmdCtx.run(cmd.Context(), build(project, args[0], opts.Limit)),
				fmt.Sprintf("%s for job %q", empty, args[0]))
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the job (default: session project)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum runs to show (0 for all)")

	return cmd
}

func newJobDropCommand() *cobra.Command {
	opts := &JobListOptions{}

	cmd := &cobra.Command{
		Use:   "drop <name>",
		Short: "Drop a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			project, err := cmdCtx.project(cmd.Context(), opts.Project)
			if err != nil {
				return err
			}
			outcome, err := cmdCtx.execMasked(cmd.Context(), mindsql.DropJob(project, args[0]), session.IsNotFound)
			if err != nil {
				return err
			}
			return cmdCtx.reportOutcome("job", args[0], outcome, "dropped", "not found")
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project-name", "", "Project of the job (default: session project)")

	return cmd
}

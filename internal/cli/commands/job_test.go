package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleos-cli/kleos/internal/session"
	"github.com/kleos-cli/kleos/internal/testutil"
	"github.com/kleos-cli/kleos/pkg/core"
)

func TestJobCreate_Schedule(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, NewJobCommand(), "create", "my_job",
		"INSERT INTO hn_kb SELECT title FROM hackernews.stories", "--schedule", "1 hour"))

	stmt := h.fake.LastQuery()
	assert.Contains(t, stmt, "CREATE JOB my_job (")
	assert.Contains(t, stmt, "EVERY 1 hour")
	assert.Contains(t, h.output(), "created")
}

func TestJobCreate_Options(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, NewJobCommand(), "create-generic", "nightly",
		"DELETE FROM files.tmp", "INSERT INTO files.tmp SELECT * FROM db.t;",
		"--start", "2025-01-01", "--end", "2025-02-01 06:00:00",
		"--schedule", "every 2 days", "--if-condition", "SELECT 1 FROM db.t WHERE ready = 1", "--if-not-exists"))

	stmt := h.fake.LastQuery()
	assert.Contains(t, stmt, "CREATE JOB IF NOT EXISTS nightly (\n    DELETE FROM files.tmp;\n    INSERT INTO files.tmp SELECT * FROM db.t\n)")
	assert.Contains(t, stmt, "START '2025-01-01 00:00:00'")
	assert.Contains(t, stmt, "END '2025-02-01 06:00:00'")
	assert.Contains(t, stmt, "EVERY 2 days")
	assert.Contains(t, stmt, "IF (\n    SELECT 1 FROM db.t WHERE ready = 1\n)")
}

func TestJobCreate_BadTimestamp(t *testing.T) {
	h := newHarness(t)

	err := h.run(t, NewJobCommand(), "create", "j", "SELECT 1", "--start", "tomorrow")
	var fe *FlagError
	require.True(t, errors.As(err, &fe), "want FlagError, got %v", err)
	assert.Equal(t, "start", fe.Flag)
	assert.Empty(t, h.fake.Executed())
}

func TestJobUpdateHNRefresh(t *testing.T) {
	t.Run("drops then creates", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("DROP JOB", nil, &core.ServerError{Message: "Job does not exist: hn_refresh"})

		require.NoError(t, h.run(t, NewJobCommand(), "update-hn-refresh", "hn_refresh", "hn_kb"))

		drops := h.statements("DROP JOB")
		creates := h.statements("CREATE JOB")
		require.Len(t, drops, 1)
		require.Len(t, creates, 1)
		assert.Equal(t, "DROP JOB mindsdb.hn_refresh;", drops[0])
		assert.Contains(t, creates[0], "INSERT INTO hn_kb")
		assert.Contains(t, creates[0], "FROM hackernews.stories")
		assert.Contains(t, creates[0], "WHERE id > LAST")
		assert.Contains(t, creates[0], "EVERY 1 hour")

		executed := h.fake.Executed()
		assert.Equal(t, creates[0], executed[len(executed)-1], "create runs after drop")
	})

	t.Run("job lives in the requested project", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("SHOW DATABASES", databases("hackernews"), nil)

		require.NoError(t, h.run(t, NewJobCommand(), "update-hn-refresh", "hn_refresh", "hn_kb",
			"--project-name", "proj", "--schedule", "every 2 hours"))

		assert.Equal(t, []string{"DROP JOB proj.hn_refresh;"}, h.statements("DROP JOB"))
		creates := h.statements("CREATE JOB")
		require.Len(t, creates, 1)
		assert.Contains(t, creates[0], "CREATE JOB proj.hn_refresh (")
		assert.Contains(t, creates[0], "EVERY 2 hours")
		assert.Contains(t, h.output(), "every 2 hours")
		assert.NotContains(t, h.output(), "every every")
		assert.Empty(t, h.statements("CREATE DATABASE"), "datasource already listed")
	})

	t.Run("creates a missing datasource first", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("SHOW DATABASES", databases("mindsdb"), nil)

		require.NoError(t, h.run(t, NewJobCommand(), "update-hn-refresh", "hn_refresh", "hn_kb", "--hn-datasource", "hn"))

		executed := h.fake.Executed()
		require.Len(t, h.statements("CREATE DATABASE hn"), 1)
		assert.Contains(t, h.statements("CREATE JOB")[0], "FROM hn.stories")
		assert.Contains(t, executed[len(executed)-1], "CREATE JOB")
		assert.Contains(t, h.output(), `Created datasource "hn"`)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		h := newHarness(t)
		err := h.run(t, NewJobCommand(), "update-hn-refresh", "j", "kb", "--schedule", "fortnightly")
		var fe *FlagError
		require.True(t, errors.As(err, &fe), "want FlagError, got %v", err)
		assert.Equal(t, "schedule", fe.Flag)
		assert.Empty(t, h.fake.Executed())
	})

	t.Run("drop failure stops", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("DROP JOB", nil, &core.ServerError{Message: "permission denied"})

		err := h.run(t, NewJobCommand(), "update-hn-refresh", "j", "kb")
		require.Error(t, err)
		assert.Empty(t, h.statements("CREATE JOB"))
		stmt, ok := session.StatementOf(err)
		assert.True(t, ok)
		assert.Contains(t, stmt, "DROP JOB")
	})
}

func TestJobStatus(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("FROM mindsdb.jobs WHERE name = 'hn_refresh'", testutil.NewTable(
			[]string{"NAME", "SCHEDULE_STR", "NEXT_RUN_AT"},
			[]any{"hn_refresh", "every 1 hour", "2025-01-01 10:00:00"},
		), nil)

		require.NoError(t, h.run(t, NewJobCommand(), "status", "hn_refresh"))
		assert.Contains(t, h.output(), "every 1 hour")
		assert.Contains(t, h.output(), "NEXT_RUN_AT")
	})

	t.Run("several rows warn", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("FROM mindsdb.jobs", testutil.NewTable(
			[]string{"NAME", "SCHEDULE_STR"},
			[]any{"hn_refresh_old", "every 1 day"},
			[]any{"hn_refresh", "every 1 hour"},
		), nil)

		require.NoError(t, h.run(t, NewJobCommand(), "status", "hn_refresh"))
		out := h.output()
		assert.Contains(t, out, `2 rows returned for job "hn_refresh"`)
		assert.Contains(t, out, "every 1 hour")
		assert.NotContains(t, out, "every 1 day")
	})

	t.Run("missing", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.run(t, NewJobCommand(), "status", "nope"))
		assert.Contains(t, h.output(), "not found")
	})
}

func TestJobHistoryAndLogs(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, NewJobCommand(), "history", "hn_refresh", "--limit", "3"))
	assert.Contains(t, h.fake.LastQuery(), "FROM log.jobs_history")
	assert.Contains(t, h.fake.LastQuery(), "LIMIT 3")
	assert.Contains(t, h.output(), "No runs recorded")

	require.NoError(t, h.run(t, NewJobCommand(), "logs", "hn_refresh", "--project-name", "proj"))
	assert.Contains(t, h.fake.LastQuery(), "project = 'proj'")
	assert.Contains(t, h.fake.LastQuery(), "error IS NOT NULL")
}

func TestJobDrop_TransportErrorsSurface(t *testing.T) {
	h := newHarness(t)
	h.fake.On("DROP JOB", nil, &core.TransportError{
		Op: "query", StatusCode: 404, Sent: true, Err: errors.New("404 page not found"),
	})

	err := h.run(t, NewJobCommand(), "drop", "j")
	require.Error(t, err)
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 404, te.StatusCode)
	assert.NotContains(t, h.output(), "dropped")
}

func TestJobCreate_TransportErrorsSurface(t *testing.T) {
	h := newHarness(t)
	h.fake.On("CREATE JOB", nil, &core.TransportError{
		Op: "query", StatusCode: 409, Sent: true, Err: errors.New("resource already exists"),
	})

	err := h.run(t, NewJobCommand(), "create", "j", "SELECT 1")
	require.Error(t, err)
	assert.NotContains(t, h.output(), "already exists")
}

func TestJobDrop_NotFoundMasked(t *testing.T) {
	h := newHarness(t)
	h.fake.On("DROP JOB", nil, &core.ServerError{Message: "job not found"})

	require.NoError(t, h.run(t, NewJobCommand(), "drop", "j"))
	assert.Contains(t, h.output(), "not found")
}

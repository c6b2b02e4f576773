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

func TestKBCreate_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.fake.OnOnce("CREATE KNOWLEDGE_BASE", testutil.NewTable(nil), nil)
	h.fake.On("CREATE KNOWLEDGE_BASE", nil, &core.ServerError{Message: "Knowledge base hn_kb already exists"})

	require.NoError(t, h.run(t, NewKBCommand(), "create", "hn_kb"))
	assert.Contains(t, h.output(), "created")

	require.NoError(t, h.run(t, NewKBCommand(), "create", "hn_kb"))
	assert.Contains(t, h.output(), "already exists")

	creates := h.statements("CREATE KNOWLEDGE_BASE")
	require.Len(t, creates, 2)
	assert.Contains(t, creates[0], `embedding_model = {"provider": "ollama", "model_name": "nomic-embed-text", "base_url": "http://127.0.0.1:11434"}`)
	assert.NotContains(t, creates[0], "reranking_model")
}

func TestKBCreate_OtherErrorsSurface(t *testing.T) {
	h := newHarness(t)
	h.fake.On("CREATE KNOWLEDGE_BASE", nil, &core.ServerError{Message: "unknown provider"})

	err := h.run(t, NewKBCommand(), "create", "hn_kb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestKBCreate_ProviderResolution(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
		absent   []string
	}{
		{
			name:     "non-ollama provider gets no default base url",
			args:     []string{"--embedding-provider", "openai", "--embedding-model", "text-embedding-3-small", "--embedding-api-key", "sk-1"},
			contains: []string{`{"provider": "openai", "model_name": "text-embedding-3-small", "api_key": "sk-1"}`},
			absent:   []string{"11434"},
		},
		{
			name:     "reranking provider follows embedding",
			args:     []string{"--reranking-model", "bge-reranker"},
			contains: []string{`reranking_model = {"provider": "ollama", "model_name": "bge-reranker", "base_url": "http://127.0.0.1:11434"}`},
		},
		{
			name:     "columns",
			args:     []string{"--content-columns", "title", "--metadata-columns", "score,author", "--id-column", "id"},
			contains: []string{"content_columns = 'title'", "metadata_columns = ['score', 'author']", "id_column = 'id'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.run(t, NewKBCommand(), append([]string{"create", "kb1"}, tt.args...)...))

			stmt := h.fake.LastQuery()
			for _, want := range tt.contains {
				assert.Contains(t, stmt, want)
			}
			for _, bad := range tt.absent {
				assert.NotContains(t, stmt, bad)
			}
		})
	}
}

func TestKBIngest_StoriesDefaults(t *testing.T) {
	h := newHarness(t)
	h.fake.On("SHOW DATABASES", databases("mindsdb", "hackernews"), nil)

	require.NoError(t, h.run(t, NewKBCommand(), "ingest", "kb1", "--from-hackernews", "stories", "--limit", "100"))

	assert.Empty(t, h.statements("CREATE DATABASE"), "existing datasource is reused")
	inserts := h.statements("INSERT INTO")
	require.Len(t, inserts, 1)
	assert.Contains(t, inserts[0], "SELECT title, id AS story_id, time, score, descendants")
	assert.Contains(t, inserts[0], "FROM hackernews.stories")
	assert.Contains(t, inserts[0], "LIMIT 100")
	assert.Contains(t, h.output(), "content: title")
}

func TestKBIngest_CreatesMissingDatasource(t *testing.T) {
	h := newHarness(t)
	h.fake.On("SHOW DATABASES", databases("mindsdb"), nil)

	require.NoError(t, h.run(t, NewKBCommand(), "ingest", "kb1", "--from-hackernews", "comments",
		"--metadata-map", `{"author":"by"}`, "--limit", "0"))

	creates := h.statements("CREATE DATABASE")
	require.Len(t, creates, 1)
	assert.Contains(t, creates[0], "ENGINE = 'hackernews'")

	insert := h.fake.LastQuery()
	assert.Contains(t, insert, "SELECT text, by AS author")
	assert.NotContains(t, insert, "LIMIT")
}

func TestKBIngest_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		flag string
	}{
		{name: "metadata map values must be strings", args: []string{"--from-hackernews", "stories", "--metadata-map", `{"score": 1}`}, flag: "metadata-map"},
		{name: "metadata map must be an object", args: []string{"--from-hackernews", "stories", "--metadata-map", `["id"]`}, flag: "metadata-map"},
		{name: "unknown table needs content column", args: []string{"--from-hackernews", "jobs"}, flag: "content-column"},
		{name: "negative limit", args: []string{"--from-hackernews", "stories", "--limit", "-1"}, flag: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			err := h.run(t, NewKBCommand(), append([]string{"ingest", "kb1"}, tt.args...)...)

			var fe *FlagError
			require.True(t, errors.As(err, &fe), "want FlagError, got %v", err)
			assert.Equal(t, tt.flag, fe.Flag)
			assert.Empty(t, h.fake.Executed(), "nothing is sent for invalid input")
		})
	}
}

func TestKBQuery_MetadataFilter(t *testing.T) {
	h := newHarness(t)
	h.fake.On("FROM hn_kb", testutil.NewTable([]string{"chunk_content", "score"}, []any{"Go is fun", 120}), nil)

	require.NoError(t, h.run(t, NewKBCommand(), "query", "hn_kb", "go", "generics",
		"--metadata-filter", `{"score":{"$gt":50},"author":"pg"}`))

	stmt := h.fake.LastQuery()
	assert.Contains(t, stmt, "content LIKE 'go generics'")
	assert.Contains(t, stmt, "author = 'pg'")
	assert.Contains(t, stmt, "score > 50")
	assert.Contains(t, stmt, "LIMIT 5")
	assert.Contains(t, h.output(), "Go is fun")
}

func TestKBQuery_BadFilter(t *testing.T) {
	h := newHarness(t)

	err := h.run(t, NewKBCommand(), "query", "hn_kb", "go", "--metadata-filter", `{"score":{"$regex":"x"}}`)
	var fe *FlagError
	require.True(t, errors.As(err, &fe), "want FlagError, got %v", err)
	assert.Equal(t, "metadata-filter", fe.Flag)
	assert.Empty(t, h.fake.Executed())
}

func TestKBDrop_NotFoundMasked(t *testing.T) {
	h := newHarness(t)
	h.fake.On("DROP KNOWLEDGE_BASE", nil, &core.ServerError{Message: "Knowledge base does not exist: kb1"})

	require.NoError(t, h.run(t, NewKBCommand(), "drop", "kb1"))
	assert.Contains(t, h.output(), "not found")
}

func TestKBDrop_ConnectFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	h.fake.ProjectList = []string{"other"}

	err := h.run(t, NewKBCommand(), "drop", "kb1")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotConnected)
	assert.Contains(t, err.Error(), `project "mindsdb" not found on server`)
	assert.NotContains(t, h.output(), "dropped")
	assert.Empty(t, h.fake.Executed())
}

func TestKBList_UsesSessionProject(t *testing.T) {
	h := newHarness(t)
	h.fake.On("knowledge_bases", testutil.NewTable([]string{"name", "project", "vector_store"}, []any{"hn_kb", "mindsdb", "chroma"}), nil)

	require.NoError(t, h.run(t, NewKBCommand(), "list"))
	assert.Contains(t, h.fake.LastQuery(), "mindsdb.knowledge_bases")
	assert.Contains(t, h.output(), "hn_kb")
	assert.NotContains(t, h.output(), "chroma", "only display columns are kept")
}

func TestSetupHackerNews(t *testing.T) {
	t.Run("creates and verifies", func(t *testing.T) {
		h := newHarness(t)
		h.fake.OnOnce("SHOW DATABASES", databases("mindsdb"), nil)
		h.fake.On("SHOW DATABASES", testutil.NewTable([]string{"NAME"}, []any{"mindsdb"}, []any{"hackernews"}), nil)

		require.NoError(t, h.run(t, NewSetupCommand(), "hackernews"))
		assert.Len(t, h.statements("CREATE DATABASE hackernews"), 1)
		assert.Len(t, h.statements("SHOW DATABASES"), 2)
		assert.Contains(t, h.output(), "ready")
	})

	t.Run("already present", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("SHOW DATABASES", testutil.NewTable([]string{"name"}, []any{"hackernews"}), nil)

		require.NoError(t, h.run(t, NewSetupCommand(), "hackernews"))
		assert.Empty(t, h.statements("CREATE DATABASE"))
		assert.Contains(t, h.output(), "already exists")
	})

	t.Run("already exists race is masked", func(t *testing.T) {
		h := newHarness(t)
		h.fake.OnOnce("SHOW DATABASES", databases(), nil)
		h.fake.On("CREATE DATABASE", nil, &core.ServerError{Message: "Database hn already exists"})
		h.fake.On("SHOW DATABASES", databases("hn"), nil)

		require.NoError(t, h.run(t, NewSetupCommand(), "hackernews", "--name", "hn"))
	})

	t.Run("missing after create", func(t *testing.T) {
		h := newHarness(t)
		h.fake.On("SHOW DATABASES", databases("mindsdb"), nil)

		err := h.run(t, NewSetupCommand(), "hackernews")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not listed")
	})
}

func TestKBDropAgent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, NewKBCommand(), "drop-agent", "hn_agent"))
	assert.Equal(t, "DROP AGENT hn_agent;", h.fake.LastQuery())
	assert.Contains(t, h.output(), "dropped")

	h.fake.On("DROP AGENT", nil, &core.ServerError{Message: "Agent hn_agent does not exist"})
	require.NoError(t, h.run(t, NewKBCommand(), "drop-agent", "hn_agent"))
	assert.Contains(t, h.output(), "not found")
}

func TestSetupDropDatasource(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, NewSetupCommand(), "drop-datasource"))
	assert.Equal(t, "DROP DATABASE hackernews;", h.fake.LastQuery())

	require.NoError(t, h.run(t, NewSetupCommand(), "drop-datasource", "--name", "hn"))
	assert.Equal(t, "DROP DATABASE hn;", h.fake.LastQuery())
}

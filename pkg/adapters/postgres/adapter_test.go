package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   adapter.Config
		expected string
	}{
		{
			name: "basic connection",
			config: adapter.Config{
				Host:     "localhost",
				Port:     55432,
				Project:  "mindsdb",
				Username: "mindsdb",
				Password: "pass",
			},
			expected: "host=localhost port=55432 dbname=mindsdb sslmode=disable user=mindsdb password=pass",
		},
		{
			name: "with custom sslmode and scheme prefix",
			config: adapter.Config{
				Host:     "https://cloud.mindsdb.com",
				Port:     5432,
				Project:  "research",
				Username: "me@example.com",
				Options:  map[string]string{"sslmode": "require"},
			},
			expected: "host=cloud.mindsdb.com port=5432 dbname=research sslmode=require user=me@example.com",
		},
		{
			name:     "defaults",
			config:   adapter.Config{},
			expected: "host=127.0.0.1 port=55432 dbname=mindsdb sslmode=disable",
		},
		{
			name: "password needing quotes and timeout",
			config: adapter.Config{
				Host:     "db",
				Port:     55432,
				Password: `it's a secret`,
				Timeout:  10 * time.Second,
			},
			expected: `host=db port=55432 dbname=mindsdb sslmode=disable password='it\'s a secret' connect_timeout=10`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestDSNValue(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"two words", "'two words'"},
		{`back\slash`, `'back\\slash'`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, dsnValue(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	adp := New(nil)

	assert.NotNil(t, adp)
	assert.Nil(t, adp.DB, "DB should be nil before Connect")
	assert.False(t, adp.IsConnected())

	var _ adapter.Adapter = adp
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	_, err := adp.Query(ctx, "SHOW DATABASES;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")

	_, err = adp.Projects(ctx)
	require.Error(t, err)
}

func TestAdapter_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	adp := New(nil)
	adp.DB = db

	mock.ExpectQuery("SELECT \\* FROM kb").WillReturnRows(
		sqlmock.NewRows([]string{"id", "chunk_content", "relevance"}).
			AddRow("1", "Show HN: kleos", 0.91),
	)

	table, err := adp.Query(context.Background(), "SELECT * FROM kb WHERE content LIKE 'kleos' LIMIT 5;")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "chunk_content", "relevance"}, table.Columns)
	assert.Equal(t, [][]any{{"1", "Show HN: kleos", 0.91}}, table.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Projects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	adp := New(nil)
	adp.DB = db

	mock.ExpectQuery("information_schema.databases").WillReturnRows(
		sqlmock.NewRows([]string{"NAME"}).AddRow("mindsdb").AddRow("research"),
	)

	projects, err := adp.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mindsdb", "research"}, projects)
}

func TestClassify(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		err := classify(&pgconn.PgError{Message: "Knowledge base kb1 already exists"})
		var se *core.ServerError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "Knowledge base kb1 already exists", se.Message)
	})

	t.Run("context cancellation passes through", func(t *testing.T) {
		assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	})

	t.Run("network failure after send", func(t *testing.T) {
		err := classify(errors.New("unexpected EOF"))
		var te *core.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Sent)
	})
}

func TestAdapter_Registry(t *testing.T) {
	for _, name := range []string{"postgres", "PostgreSQL", "pg"} {
		tr, ok := adapter.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "postgres", tr.Name)
		assert.Equal(t, DefaultPort, tr.DefaultPort)
	}

	tr, _ := adapter.Lookup("postgres")
	_, ok := tr.New(nil).(*Adapter)
	assert.True(t, ok, "constructor should return *Adapter")
}

func TestAdapter_Close(t *testing.T) {
	adp := New(nil)
	assert.NoError(t, adp.Close())
}

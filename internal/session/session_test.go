package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kleos-cli/kleos/internal/testutil"
	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, fake *testutil.FakeAdapter, project string) *Session {
	t.Helper()
	cfg := core.AdapterConfig{Type: testutil.RegisterFake(t, fake), Project: project}
	return New(cfg, testutil.NewTestLogger(t), WithRetryDelay(time.Millisecond))
}

func TestSession_LazyConnect(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	fake.On("SHOW DATABASES", testutil.NewTable([]string{"Database"}, []any{"mindsdb"}), nil)
	s := newTestSession(t, fake, "")

	assert.False(t, s.Connected())
	assert.Equal(t, 0, fake.ConnectCalls, "nothing happens before first use")

	table, err := s.Execute(context.Background(), "SHOW DATABASES;")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.True(t, s.Connected())
	assert.Equal(t, DefaultProject, s.Project())
	assert.Equal(t, 1, fake.ConnectCalls)

	_, err = s.Execute(context.Background(), "SHOW DATABASES;")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.ConnectCalls, "established session is reused")
}

func TestSession_ConnectFailure(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	fake.ConnectErr = errors.New("dial tcp 127.0.0.1:47334: connect: connection refused")
	s := newTestSession(t, fake, "")

	assert.False(t, s.Connect(context.Background()))
	assert.False(t, s.Connected())
	assert.Empty(t, s.Project())
	require.Error(t, s.LastError())

	_, err := s.Execute(context.Background(), "SELECT 1;")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, fake.Executed(), "no statement is sent without a session")
}

func TestSession_UnknownProject(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	s := newTestSession(t, fake, "research")

	assert.False(t, s.Connect(context.Background()))
	assert.Contains(t, s.LastError().Error(), `project "research" not found`)
	assert.Equal(t, 1, fake.CloseCalls)

	fake.ProjectList = []string{"mindsdb", "Research"}
	assert.True(t, s.Connect(context.Background()))
	assert.Equal(t, "research", s.Project())
}

func TestSession_UnknownTransport(t *testing.T) {
	s := New(core.AdapterConfig{Type: "smoke-signals"}, nil)
	assert.False(t, s.Connect(context.Background()))
	assert.Contains(t, s.LastError().Error(), "unknown transport")
}

func TestSession_ExecuteAnnotatesStatement(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	fake.On("FROM missing", nil, &core.ServerError{Message: "Table not found: missing"})
	s := newTestSession(t, fake, "")

	_, err := s.Execute(context.Background(), "SELECT *\n  FROM missing;")
	require.Error(t, err)

	stmt, ok := StatementOf(err)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM missing;", stmt)
	assert.True(t, IsNotFound(err))
	assert.Len(t, fake.Executed(), 1, "server errors are not retried")
}

func TestSession_RetryPolicy(t *testing.T) {
	transient := &core.TransportError{Op: "query", Sent: true, Err: errors.New("connection reset by peer")}
	notSent := &core.TransportError{Op: "query", Sent: false, Err: errors.New("dial tcp: connection refused")}

	tests := []struct {
		name      string
		sql       string
		firstErr  error
		wantErr   bool
		wantSends int
		wantConns int
	}{
		{
			name:      "read retried once after reconnect",
			sql:       "SELECT * FROM mindsdb.models;",
			firstErr:  transient,
			wantSends: 2,
			wantConns: 2,
		},
		{
			name:      "event loop closed retried",
			sql:       "SHOW DATABASES;",
			firstErr:  errors.New("Event loop is closed"),
			wantSends: 2,
			wantConns: 2,
		},
		{
			name:      "create not resent after it reached the server",
			sql:       "CREATE KNOWLEDGE_BASE kb USING embedding_model = {};",
			firstErr:  transient,
			wantErr:   true,
			wantSends: 1,
			wantConns: 1,
		},
		{
			name:      "create resent when never sent",
			sql:       "CREATE KNOWLEDGE_BASE kb USING embedding_model = {};",
			firstErr:  notSent,
			wantSends: 2,
			wantConns: 2,
		},
		{
			name:      "server rejection not retried",
			sql:       "SELECT * FROM nope;",
			firstErr:  &core.ServerError{Message: "syntax error"},
			wantErr:   true,
			wantSends: 1,
			wantConns: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeAdapter()
			fake.OnOnce("", nil, tt.firstErr)
			s := newTestSession(t, fake, "")

			_, err := s.Execute(context.Background(), tt.sql)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, fake.Executed(), tt.wantSends)
			assert.Equal(t, tt.wantConns, fake.ConnectCalls)
		})
	}
}

func TestSession_RetryExhausted(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	fake.On("", nil, &core.TransportError{Op: "query", StatusCode: 503, Sent: true, Err: errors.New("Service Unavailable")})
	s := newTestSession(t, fake, "")

	_, err := s.Execute(context.Background(), "SELECT 1;")
	require.Error(t, err)
	assert.Len(t, fake.Executed(), 2, "exactly one retry")

	var te *core.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestSession_Run(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	fake.On("models", testutil.NewTable([]string{"name"}, []any{"m1"}), nil)
	fake.On("jobs", testutil.NewTable([]string{"name"}), nil)
	fake.On("broken", nil, &core.ServerError{Message: "boom"})
	s := newTestSession(t, fake, "")
	ctx := context.Background()

	assert.Equal(t, core.ResultRows, s.Run(ctx, "SELECT * FROM models;").Kind)
	assert.Equal(t, core.ResultEmpty, s.Run(ctx, "SELECT * FROM jobs;").Kind)
	assert.Equal(t, core.ResultEmpty, s.Run(ctx, "CREATE INDEX ON KNOWLEDGE_BASE kb;").Kind)
	assert.Equal(t, core.ResultError, s.Run(ctx, "SELECT broken;").Kind)
}

func TestSession_Close(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	s := newTestSession(t, fake, "")
	require.True(t, s.Connect(context.Background()))
	require.NoError(t, s.Close())
	assert.False(t, s.Connected())
	assert.Equal(t, 1, fake.CloseCalls)
}

func TestSession_ConnectResolvesTransport(t *testing.T) {
	fake := testutil.NewFakeAdapter()
	adapter.Register(adapter.Transport{
		Name:        "session_alias_test",
		Aliases:     []string{"sat"},
		DefaultPort: 7000,
		New:         func(*slog.Logger) adapter.Adapter { return fake },
	})

	s := New(core.AdapterConfig{Type: "SAT", Host: "h"}, testutil.NewTestLogger(t))
	require.True(t, s.Connect(context.Background()))
	assert.Equal(t, "session_alias_test", fake.LastConfig.Type)
	assert.Equal(t, 7000, fake.LastConfig.Port)
	assert.Equal(t, 7000, s.Config().Port)
}

func TestSession_UnknownTransportErrorType(t *testing.T) {
	s := New(core.AdapterConfig{Type: "carrier_pigeon"}, testutil.NewTestLogger(t))
	assert.False(t, s.Connect(context.Background()))
	var unknown *adapter.UnknownAdapterError
	assert.ErrorAs(t, s.LastError(), &unknown)
}

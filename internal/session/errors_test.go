package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM kb;", true},
		{"  select 1", true},
		{"SHOW DATABASES;", true},
		{"DESCRIBE MODEL mindsdb.m;", true},
		{"-- list\nSELECT 1", true},
		{"/* c */ (SELECT 1)", true},
		{"CREATE MODEL m PREDICT y;", false},
		{"INSERT INTO kb SELECT title FROM hackernews.stories;", false},
		{"DROP JOB j;", false},
		{"RETRAIN mindsdb.m;", false},
		{"-- unterminated", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReadOnly(tt.sql))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"network transport", &core.TransportError{Op: "query", Err: errors.New("EOF")}, true},
		{"bad gateway", &core.TransportError{Op: "query", StatusCode: 502, Err: errors.New("Bad Gateway")}, true},
		{"server 500 transport", &core.TransportError{Op: "query", StatusCode: 500, Err: errors.New("boom")}, false},
		{"event loop", errors.New("RuntimeError: Event loop is closed"), true},
		{"server rejection", &core.ServerError{Message: "Syntax error near KNOWLEDGE"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIdempotencyMasks(t *testing.T) {
	tests := []struct {
		msg           string
		alreadyExists bool
		notFound      bool
	}{
		{"Knowledge base 'kb1' already exists", true, false},
		{"Database hackernews already exists", true, false},
		{"Agent my_agent already created", true, false},
		{"Model 'm1' not found", false, true},
		{"Job j1 doesn't exist", false, true},
		{"Table does not exist", false, true},
		{"Syntax error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := &ExecError{SQL: "X", Err: &core.ServerError{Message: tt.msg}}
			assert.Equal(t, tt.alreadyExists, IsAlreadyExists(err))
			assert.Equal(t, tt.notFound, IsNotFound(err))
		})
	}

	assert.False(t, IsAlreadyExists(nil))
	assert.False(t, IsNotFound(nil))
}

func TestIdempotencyMasksIgnoreNonServerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("model not found")},
		{"http 404", &ExecError{SQL: "DROP JOB j", Err: &core.TransportError{
			Op: "query", StatusCode: 404, Sent: true, Err: errors.New("404 page not found"),
		}}},
		{"missing project", &ExecError{SQL: "DROP KNOWLEDGE_BASE kb", Err: fmt.Errorf("%w: %v",
			ErrNotConnected, errors.New(`project "analytics" not found on server (available: other)`))}},
		{"transport already exists", &core.TransportError{Op: "connect", Err: errors.New("socket already exists")}},
		{"not connected wrapping server text", errors.Join(ErrNotConnected,
			&core.ServerError{Message: "database does not exist"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsRejected(tt.err))
			assert.False(t, IsAlreadyExists(tt.err))
			assert.False(t, IsNotFound(tt.err))
		})
	}
}

func TestRetrySafe(t *testing.T) {
	sent := &core.TransportError{Op: "query", Sent: true, Err: errors.New("reset")}
	unsent := &core.TransportError{Op: "query", Err: errors.New("refused")}

	assert.True(t, RetrySafe("SELECT 1", sent))
	assert.False(t, RetrySafe("DROP MODEL m", sent))
	assert.True(t, RetrySafe("DROP MODEL m", unsent))
	assert.False(t, RetrySafe("DROP MODEL m", errors.New("event loop is closed")))
}

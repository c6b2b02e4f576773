package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"
)

// FakeResponse scripts the answer to any statement containing Match.
// Once responses are consumed by their first hit.
type FakeResponse struct {
	Match string
	Table *core.Table
	Err   error
	Once  bool
	used  bool
}

// FakeAdapter is a scripted in-memory transport.
type FakeAdapter struct {
	mu sync.Mutex

	Responses   []*FakeResponse
	Queries     []string
	ProjectList []string

	ConnectErr   error
	ConnectCalls int
	CloseCalls   int
	LastConfig   core.AdapterConfig
}

// NewFakeAdapter returns a fake that knows the default "mindsdb" project.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{ProjectList: []string{"mindsdb"}}
}

// On answers every statement containing match.
func (f *FakeAdapter) On(match string, t *core.Table, err error) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, &FakeResponse{Match: match, Table: t, Err: err})
	return f
}

// OnOnce answers the next statement containing match, then falls through.
func (f *FakeAdapter) OnOnce(match string, t *core.Table, err error) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, &FakeResponse{Match: match, Table: t, Err: err, Once: true})
	return f
}

// Connect records the call and returns ConnectErr.
func (f *FakeAdapter) Connect(_ context.Context, cfg core.AdapterConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectCalls++
	f.LastConfig = cfg
	return f.ConnectErr
}

// Close records the call.
func (f *FakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCalls++
	return nil
}

// Query records the statement and returns the first matching response.
// Unmatched statements succeed with an empty table.
func (f *FakeAdapter) Query(_ context.Context, sql string) (*core.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, sql)

	for _, r := range f.Responses {
		if r.used || !strings.Contains(sql, r.Match) {
			continue
		}
		if r.Once {
			r.used = true
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Table, nil
	}
	return &core.Table{Columns: []string{}}, nil
}

// Projects returns ProjectList.
func (f *FakeAdapter) Projects(_ context.Context) ([]string, error) {
	return f.ProjectList, nil
}

// Executed returns a copy of the recorded statements.
func (f *FakeAdapter) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Queries...)
}

// LastQuery returns the most recent statement, or "".
func (f *FakeAdapter) LastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Queries) == 0 {
		return ""
	}
	return f.Queries[len(f.Queries)-1]
}

var fakeSeq atomic.Int64

// RegisterFake registers f under a unique transport name and returns that name.
func RegisterFake(t testing.TB, f *FakeAdapter) string {
	t.Helper()
	name := fmt.Sprintf("fake-%d", fakeSeq.Add(1))
	adapter.Register(adapter.Transport{Name: name, New: func(*slog.Logger) adapter.Adapter { return f }})
	return name
}

// NewTable builds a table from column names and rows.
func NewTable(cols []string, rows ...[]any) *core.Table {
	return &core.Table{Columns: cols, Rows: rows}
}

var _ core.ProjectLister = (*FakeAdapter)(nil)

// Package session manages the lazily-established connection to a MindsDB
// server and the single execute primitive every command goes through.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"
	"github.com/sethvargo/go-retry"
)

// DefaultProject is the project MindsDB creates on every server.
const DefaultProject = "mindsdb"

// DefaultRetryDelay is the pause before the single transient-error retry.
const DefaultRetryDelay = 250 * time.Millisecond

// ErrNotConnected is returned when no session could be established.
var ErrNotConnected = errors.New("mindsdb session not established")

// Session owns one transport to one MindsDB server.
// It is not safe for concurrent use; commands run one statement at a time.
type Session struct {
	cfg        core.AdapterConfig
	logger     *slog.Logger
	retryDelay time.Duration

	adapter core.Adapter
	project string
	lastErr error
}

// Option configures a Session.
type Option func(*Session)

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Session) { s.retryDelay = d }
}

// New creates an unconnected session. Nothing touches the network until
// Connect or Execute is called.
func New(cfg core.AdapterConfig, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{cfg: cfg, logger: logger, retryDelay: DefaultRetryDelay}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the transport and resolves the project. On failure all
// session state is cleared, the cause is kept for LastError, and false is
// returned.
func (s *Session) Connect(ctx context.Context) bool {
	s.reset()

	cfg, _, err := adapter.Resolve(s.cfg)
	if err != nil {
		return s.fail(err)
	}
	s.cfg = cfg
	a, err := adapter.NewAdapter(cfg, s.logger)
	if err != nil {
		return s.fail(err)
	}
	if err := a.Connect(ctx, cfg); err != nil {
		_ = a.Close()
		return s.fail(err)
	}

	project := s.cfg.Project
	if project == "" {
		project = DefaultProject
	}

	if lister, ok := a.(core.ProjectLister); ok {
		projects, err := lister.Projects(ctx)
		switch {
		case err != nil:
			s.logger.Debug("could not list projects", slog.String("error", err.Error()))
		case !containsFold(projects, project):
			_ = a.Close()
			return s.fail(fmt.Errorf("project %q not found on server (available: %s)", project, strings.Join(projects, ", ")))
		}
	}

	s.adapter = a
	s.project = project
	s.logger.Debug("session established",
		slog.String("transport", s.cfg.Type), slog.String("host", s.cfg.Host), slog.String("project", project))
	return true
}

func (s *Session) fail(err error) bool {
	s.lastErr = err
	s.logger.Debug("connect failed", slog.String("error", err.Error()))
	return false
}

func (s *Session) reset() {
	if s.adapter != nil {
		_ = s.adapter.Close()
	}
	s.adapter = nil
	s.project = ""
}

// Connected reports whether a transport is established.
func (s *Session) Connected() bool {
	return s.adapter != nil
}

// LastError returns the cause of the most recent failed Connect.
func (s *Session) LastError() error {
	return s.lastErr
}

// Project returns the resolved project, or "" before a successful connect.
func (s *Session) Project() string {
	return s.project
}

// Config returns the transport configuration.
func (s *Session) Config() core.AdapterConfig {
	return s.cfg
}

// Close tears down the transport.
func (s *Session) Close() error {
	s.reset()
	return nil
}

// Execute sends sql verbatim and returns its tabular result. An
// unestablished session gets one implicit Connect first. Transient
// failures are retried once, after re-establishing the session, when
// resending the statement is safe.
func (s *Session) Execute(ctx context.Context, sql string) (*core.Table, error) {
	if !s.Connected() && !s.Connect(ctx) {
		return nil, &ExecError{SQL: sql, Err: s.notConnected()}
	}

	s.logger.Debug("executing statement", slog.String("sql", sql))

	var table *core.Table
	attempt := 0
	delay := s.retryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(1, retry.NewConstant(delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.logger.Warn("retrying statement after transient error", slog.Int("attempt", attempt))
			if !s.Connect(ctx) {
				return s.notConnected()
			}
		}

		t, err := s.adapter.Query(ctx, sql)
		if err != nil {
			if IsTransient(err) && RetrySafe(sql, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		table = t
		return nil
	})
	if err != nil {
		return nil, &ExecError{SQL: sql, Err: err}
	}
	if table == nil {
		table = &core.Table{Columns: []string{}}
	}
	return table, nil
}

// Run executes sql and folds the outcome into a tri-state Result.
func (s *Session) Run(ctx context.Context, sql string) core.Result {
	return core.NewResult(s.Execute(ctx, sql))
}

func (s *Session) notConnected() error {
	if s.lastErr != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, s.lastErr)
	}
	return ErrNotConnected
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}

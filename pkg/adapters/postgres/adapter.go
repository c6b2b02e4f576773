// Package postgres provides a transport that reaches MindsDB through its
// PostgreSQL wire-protocol API.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DefaultPort is the port MindsDB's Postgres API listens on.
const DefaultPort = 55432

// Adapter implements the adapter.Adapter interface over the Postgres wire API.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new Postgres transport instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect opens the connection pool and pings the server.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to mindsdb postgres api",
		slog.String("host", cfg.Host), slog.Int("port", cfg.Port), slog.String("project", cfg.Project))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &core.TransportError{Op: "connect", Err: err}
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// Query executes the statement and classifies failures into server and
// transport errors.
func (a *Adapter) Query(ctx context.Context, sqlStr string) (*core.Table, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	t, err := a.BaseSQLAdapter.Query(ctx, sqlStr)
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// Projects lists MindsDB projects from the information schema.
func (a *Adapter) Projects(ctx context.Context) ([]string, error) {
	t, err := a.Query(ctx, "SELECT NAME FROM information_schema.databases WHERE TYPE = 'project';")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, t.Len())
	for _, row := range t.Rows {
		if len(row) > 0 {
			names = append(names, fmt.Sprint(row[0]))
		}
	}
	return names, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &core.ServerError{Message: pgErr.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pgconn.SafeToRetry(err) {
		return &core.TransportError{Op: "query", Err: err}
	}
	return &core.TransportError{Op: "query", Sent: true, Err: err}
}

// buildPostgresDSN constructs a key=value connection string.
// The MindsDB project is used as the database name.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	project := cfg.Project
	if project == "" {
		project = "mindsdb"
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok && mode != "" {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnValue(host), port, dsnValue(project), dsnValue(sslmode))

	if cfg.Username != "" {
		dsn += " user=" + dsnValue(cfg.Username)
	}
	if cfg.Password != "" {
		dsn += " password=" + dsnValue(cfg.Password)
	}
	if cfg.Timeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(cfg.Timeout.Seconds()))
	}

	return dsn
}

// dsnValue quotes a value when it contains characters that break key=value parsing.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Ensure Adapter implements the transport interfaces.
var (
	_ adapter.Adapter    = (*Adapter)(nil)
	_ core.ProjectLister = (*Adapter)(nil)
)

// Package rest provides a transport that reaches MindsDB through its REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kleos-cli/kleos/pkg/adapter"
	"github.com/kleos-cli/kleos/pkg/core"
)

// Defaults for a local MindsDB installation.
const (
	DefaultHost    = "http://127.0.0.1"
	DefaultPort    = 47334
	DefaultTimeout = 60 * time.Second
)

// API paths.
const (
	loginPath    = "/api/login"
	projectsPath = "/api/projects"
	queryPath    = "/api/sql/query"
)

// RequestIDHeader carries a per-request identifier for server-side log correlation.
const RequestIDHeader = "X-Request-Id"

// Adapter implements adapter.Adapter over the MindsDB HTTP API.
type Adapter struct {
	baseURL string
	project string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a new HTTP transport instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// Connect prepares the client and logs in when credentials are configured.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	base, err := BaseURL(cfg.Host, cfg.Port)
	if err != nil {
		return err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	a.baseURL = base
	a.project = cfg.Project
	a.client = &http.Client{Timeout: timeout, Jar: jar}

	a.logger.Debug("connecting to mindsdb http api", slog.String("url", base), slog.String("project", cfg.Project))

	if cfg.Username != "" {
		creds := map[string]string{"username": cfg.Username, "password": cfg.Password}
		resp, err := a.do(ctx, http.MethodPost, loginPath, creds)
		if err != nil {
			a.client = nil
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			a.client = nil
			return fmt.Errorf("login failed for user %q: %s", cfg.Username, readMessage(resp))
		}
		return nil
	}

	// No credentials: confirm the server answers.
	if _, err := a.Projects(ctx); err != nil {
		a.client = nil
		return err
	}
	return nil
}

// Close drops the client and its session cookies.
func (a *Adapter) Close() error {
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	a.client = nil
	return nil
}

// Query posts the statement to the SQL endpoint and decodes the tabular response.
func (a *Adapter) Query(ctx context.Context, sqlStr string) (*core.Table, error) {
	if a.client == nil {
		return nil, fmt.Errorf("http session not established")
	}

	payload := queryRequest{Query: sqlStr}
	if a.project != "" {
		payload.Context = map[string]string{"db": a.project}
	}

	resp, err := a.do(ctx, http.MethodPost, queryPath, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransportError{Op: "query", Sent: true, Err: err}
	}

	var out queryResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &core.TransportError{
				Op:         "query",
				StatusCode: resp.StatusCode,
				Sent:       true,
				Err:        errors.New(strings.TrimSpace(string(body))),
			}
		}
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	if out.Type == "error" || out.ErrorMessage != "" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = "query failed"
		}
		return nil, &core.ServerError{Message: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{
			Op:         "query",
			StatusCode: resp.StatusCode,
			Sent:       true,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	t := &core.Table{Columns: out.ColumnNames}
	if t.Columns == nil {
		t.Columns = []string{}
	}
	for _, row := range out.Data {
		values := make([]any, len(row))
		copy(values, row)
		t.Rows = append(t.Rows, values)
	}
	return t, nil
}

// Projects lists project names known to the server.
func (a *Adapter) Projects(ctx context.Context) ([]string, error) {
	if a.client == nil {
		return nil, fmt.Errorf("http session not established")
	}
	resp, err := a.do(ctx, http.MethodGet, projectsPath, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.TransportError{
			Op:         "list projects",
			StatusCode: resp.StatusCode,
			Sent:       true,
			Err:        errors.New(readMessage(resp)),
		}
	}

	var projects []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &core.TransportError{Op: method + " " + path, Sent: !isDialError(err), Err: err}
	}

	a.logger.Debug("mindsdb request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("elapsed", time.Since(start)))

	return resp, nil
}

// BaseURL builds the API root from a host (with or without scheme) and a port.
// A port already present in host wins; port 0 means the scheme default.
func BaseURL(host string, port int) (string, error) {
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid mindsdb host %q: %w", host, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid mindsdb host %q", host)
	}
	if u.Port() == "" && port > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func readMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Message      string `json:"message"`
		ErrorMessage string `json:"error_message"`
	}
	if json.Unmarshal(body, &out) == nil {
		if out.ErrorMessage != "" {
			return out.ErrorMessage
		}
		if out.Message != "" {
			return out.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return resp.Status
}

type queryRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
}

type queryResponse struct {
	Type         string   `json:"type"`
	ColumnNames  []string `json:"column_names"`
	Data         [][]any  `json:"data"`
	ErrorMessage string   `json:"error_message"`
}

// Ensure Adapter implements the transport interfaces.
var (
	_ adapter.Adapter    = (*Adapter)(nil)
	_ core.ProjectLister = (*Adapter)(nil)
)

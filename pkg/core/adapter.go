package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Adapter defines the interface that all MindsDB transports must implement.
type Adapter interface {
	// Connect establishes the transport and authenticates if credentials are set.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close releases the transport.
	Close() error

	// Query sends a SQL statement verbatim and returns its tabular result.
	// Statements that return no rows yield an empty Table.
	Query(ctx context.Context, sql string) (*Table, error)
}

// ProjectLister is implemented by transports that can enumerate server projects.
type ProjectLister interface {
	Projects(ctx context.Context) ([]string, error)
}

// AdapterConfig holds configuration for connecting to a MindsDB server.
type AdapterConfig struct {
	Type     string
	Host     string
	Port     int
	Username string
	Password string
	Project  string
	Timeout  time.Duration
	Options  map[string]string
}

// TransportError reports a failure below the SQL layer.
// Sent is false when the request provably never reached the server
// (for example a refused dial), which makes any statement safe to resend.
type TransportError struct {
	Op         string
	StatusCode int
	Sent       bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server returned HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is an error reported by MindsDB while executing a statement.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsServerError reports whether err carries a MindsDB execution error.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

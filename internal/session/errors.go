package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kleos-cli/kleos/pkg/core"
)

// ExecError annotates a failed statement with its text.
type ExecError struct {
	SQL string
	Err error
}

func (e *ExecError) Error() string {
	return e.Err.Error()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Statement returns the failed SQL collapsed onto one line.
func (e *ExecError) Statement() string {
	return strings.Join(strings.Fields(e.SQL), " ")
}

// StatementOf returns the SQL carried by err, if any.
func StatementOf(err error) (string, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Statement(), true
	}
	return "", false
}

var transientMarkers = []string{
	"event loop is closed",
	"session is closed",
	"connection reset",
	"broken pipe",
	"connection refused",
	"unexpected eof",
	"timeout",
}

// IsTransient reports whether err looks like a stale or interrupted
// transport rather than a statement the server rejected.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *core.TransportError
	if errors.As(err, &te) {
		switch te.StatusCode {
		case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetrySafe reports whether sql may be resent after err. Reads are always
// safe. Writes are only resent when the request never reached the server,
// since a CREATE or INSERT that did arrive may already have taken effect.
func RetrySafe(sql string, err error) bool {
	if IsReadOnly(sql) {
		return true
	}
	var te *core.TransportError
	return errors.As(err, &te) && !te.Sent
}

var readOnlyVerbs = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
}

// IsReadOnly reports whether the statement's leading verb only reads.
func IsReadOnly(sql string) bool {
	s := strings.TrimSpace(sql)
strip:
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return false
			}
			s = strings.TrimSpace(s[i+1:])
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return false
			}
			s = strings.TrimSpace(s[i+2:])
		case strings.HasPrefix(s, "("):
			s = strings.TrimSpace(s[1:])
		default:
			break strip
		}
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	verb := strings.ToUpper(strings.TrimRight(fields[0], ";("))
	return readOnlyVerbs[verb]
}

// IsRejected reports whether err is MindsDB refusing a statement it
// received. Transport failures and failed connects never qualify, even
// when their text reads like a server message.
func IsRejected(err error) bool {
	return err != nil && core.IsServerError(err) && !errors.Is(err, ErrNotConnected)
}

// rejection returns the lowercased server message carried by err.
func rejection(err error) (string, bool) {
	if !IsRejected(err) {
		return "", false
	}
	var se *core.ServerError
	errors.As(err, &se)
	return strings.ToLower(se.Message), true
}

// IsAlreadyExists reports whether err is the server refusing to create an
// object that is already there.
func IsAlreadyExists(err error) bool {
	msg, ok := rejection(err)
	if !ok {
		return false
	}
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already created")
}

// IsNotFound reports whether err is the server refusing to drop or read an
// object that does not exist.
func IsNotFound(err error) bool {
	msg, ok := rejection(err)
	if !ok {
		return false
	}
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "does not exist")
}

package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// DefaultTransport is used when mindsdb.transport is left empty.
const DefaultTransport = "http"

// Transport describes one registered way of reaching a MindsDB server.
type Transport struct {
	// Name is the canonical value of mindsdb.transport.
	Name string
	// Aliases are other accepted spellings, e.g. "rest" for "http".
	Aliases []string
	// DefaultPort replaces a zero port in the connection settings.
	DefaultPort int
	New         func(*slog.Logger) Adapter
}

var (
	registryMu sync.RWMutex
	transports = make(map[string]Transport)
	// spellings maps every lowercased name and alias to its canonical name.
	spellings = make(map[string]string)
)

// Register adds a transport to the registry. Transport packages call it
// from init(). Re-registering a name replaces the previous entry.
func Register(t Transport) {
	registryMu.Lock()
	defer registryMu.Unlock()

	t.Name = strings.ToLower(t.Name)
	transports[t.Name] = t
	spellings[t.Name] = t.Name
	for _, a := range t.Aliases {
		spellings[strings.ToLower(a)] = t.Name
	}
}

// Lookup finds a transport by name or alias, case-insensitively. An empty
// name selects DefaultTransport.
func Lookup(name string) (Transport, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultTransport
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	canonical, ok := spellings[key]
	if !ok {
		return Transport{}, false
	}
	t, ok := transports[canonical]
	return t, ok
}

// Resolve returns cfg with Type set to the canonical transport name and a
// zero Port replaced by the transport's default.
func Resolve(cfg Config) (Config, Transport, error) {
	t, ok := Lookup(cfg.Type)
	if !ok {
		return cfg, Transport{}, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	cfg.Type = t.Name
	if cfg.Port == 0 {
		cfg.Port = t.DefaultPort
	}
	return cfg, t, nil
}

// NewAdapter creates a transport for cfg.Type. The logger is passed to the
// constructor; nil uses a discard logger.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	_, t, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if t.New == nil {
		return nil, fmt.Errorf("transport %q has no constructor", t.Name)
	}
	return t.New(logger), nil
}

// ListAdapters returns the canonical transport names, sorted.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name or alias selects a transport.
func IsRegistered(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// UnknownAdapterError is returned when an unknown transport type is requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown transport %q\nAvailable transports: %v\nHint: Check mindsdb.transport in kleos.yaml", e.Type, e.Available)
}

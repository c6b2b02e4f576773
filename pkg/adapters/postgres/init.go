// Package postgres provides a transport that reaches MindsDB through its
// PostgreSQL wire-protocol API.
//
// This file registers the transport with the adapter registry.
// Import this package with a blank identifier to register it:
//
//	import _ "github.com/kleos-cli/kleos/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/kleos-cli/kleos/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Transport{
		Name:        "postgres",
		Aliases:     []string{"postgresql", "pg"},
		DefaultPort: DefaultPort,
		New:         func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}

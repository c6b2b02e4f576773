// Package rest provides a transport that reaches MindsDB through its REST API.
//
// This file registers the transport with the adapter registry.
// Import this package with a blank identifier to register it:
//
//	import _ "github.com/kleos-cli/kleos/pkg/adapters/rest"
package rest

import (
	"log/slog"

	"github.com/kleos-cli/kleos/pkg/adapter"
)

func init() {
	adapter.Register(adapter.Transport{
		Name:        "http",
		Aliases:     []string{"https", "rest"},
		DefaultPort: DefaultPort,
		New:         func(logger *slog.Logger) adapter.Adapter { return New(logger) },
	})
}

// Package adapter provides the transport registry used to reach a MindsDB server.
//
// This package contains the public contract that all transports implement
// (re-exported from pkg/core) together with a database/sql base that
// SQL-wire transports embed. Concrete transports live in pkg/adapters/.
package adapter

import (
	"github.com/kleos-cli/kleos/pkg/core"
)

// Type aliases so transport packages only need to import this package.
type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Table is an alias for core.Table.
	Table = core.Table
)

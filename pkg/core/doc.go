// Package core defines the shared language of the kleos client.
//
// This package contains:
//   - Result types (Table, Result, ResultKind)
//   - Transport contracts (Adapter, ProjectLister)
//   - Connection configuration (AdapterConfig)
//   - Transport error classification (TransportError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core

// Package modules contains the dependency modules composed by internal/app.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"kalium.io/kalium/internal/api/handlers"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	// It is only called when the postgres driver is in use.
	RegisterWorkers(*river.Workers)

	// Start launches module-owned background work that does not run on River.
	Start(context.Context) error

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

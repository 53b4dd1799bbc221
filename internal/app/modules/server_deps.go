package modules

import (
	"kalium.io/kalium/internal/api/handlers"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Checks: infra.HealthChecks(),
	}
	if infra.Pools != nil {
		deps.PoolMetrics = infra.Pools.Metrics
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// Package di provides dependency injection configuration for the
// audio pipeline.
package di

import (
	"github.com/samber/do/v2"

	"github.com/audioforge/audioforge/internal/config"
	"github.com/audioforge/audioforge/internal/di/providers"
)

// NewContainer creates and configures the DI container with all
// providers. The already-loaded configuration is injected as a value.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	// Core infrastructure
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideTranscoder)
	do.Provide(injector, providers.ProvideResourceMonitor)

	// Recovery layer
	do.Provide(injector, providers.ProvideHistory)
	do.Provide(injector, providers.ProvideOrchestrator)

	// Pipeline services
	do.Provide(injector, providers.ProvideCoverPreparer)
	do.Provide(injector, providers.ProvideConverter)
	do.Provide(injector, providers.ProvideSegmentEngine)
	do.Provide(injector, providers.ProvidePlanner)

	// Output layer
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideWatcher)

	return injector
}

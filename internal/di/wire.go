//go:build wireinject
// +build wireinject

package di

import (
	"FlowPull/pkg/config"
	"FlowPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideHTTPClient,

		// Upstream access
		ProvideAuthProvider,
		ProvideUpstreamClient,
		ProvideCaller,
		ProvideWalker,

		// Storage and publishing
		ProvideFlowStore,
		ProvideCumulativeStore,
		ProvideUniverse,
		ProvideFlowPublisher,

		// Use cases
		ProvideProgressTracker,
		ProvideAccumulator,
		ProvideSyncService,
		ProvideQuoteCollector,
		ProvideJobQueue,

		// HTTP surface and application server
		ProvideFlowsHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

//go:build wireinject
// +build wireinject

// This file is the wire injector source; wire_gen.go is the hand-maintained
// equivalent of what `wire` would generate from it (no protoc/wire toolchain
// runs in this build).
package inject

import (
	"context"

	"github.com/google/wire"

	"github.com/MalteJ/mvirt/internal/config"
)

func InitializeApplication(ctx context.Context, cfg *config.Config) (*Application, func(), error) {
	wire.Build(
		newFs,
		newLogger,
		newStore,
		newNetworkAllocator,
		newCloudHypervisorDriver,
		newSupervisor,
		newWatchBus,
		newFSM,
		newRaftConfig,
		newRaftNode,
		newRepository,
		newApplication,
	)

	return nil, nil, nil
}

// Package defaults holds the flag/config default values shared between
// internal/command's flag definitions and internal/inject's wiring.
package defaults

import "time"

const (
	// DataDir is the default root directory for VM state, the sqlite store
	// and the raft log/snapshot directory.
	DataDir = "/var/lib/mvirt"

	// GRPCEndpoint is the default VmmService listen address.
	GRPCEndpoint = "[::1]:50051"

	// BridgeName is the default Linux bridge new TAP devices attach to.
	BridgeName = "mvirt0"

	// CloudHypervisorBin is the default cloud-hypervisor binary path.
	CloudHypervisorBin = "/usr/local/bin/cloud-hypervisor"

	// RaftBindAddr is the default raft transport listen address.
	RaftBindAddr = "[::1]:7000"

	// ReadyTimeout bounds how long Start waits for a freshly spawned
	// hypervisor to become ready.
	ReadyTimeout = 30 * time.Second

	// StopTimeout is the default grace period Stop waits for before
	// escalating to SIGTERM (and, after a further grace period, to Kill).
	StopTimeout = 10 * time.Second

	// DataDirPerm is the permission mode used for created data directories.
	DataDirPerm = 0o755
)

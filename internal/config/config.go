// Package config holds the daemon's runtime configuration, populated by
// internal/command from flags, environment variables and an optional config
// file (spf13/viper), the way the teacher's internal/config does.
package config

import (
	"time"

	"github.com/MalteJ/mvirt/pkg/log"
)

// Config is mvirtd's full runtime configuration.
type Config struct {
	// Logging controls the root logger (level + formatter).
	Logging log.Config
	// ConfigFilePath is the path to an optional shared configuration file.
	ConfigFilePath string
	// DataDir is the root directory for VM state, the sqlite store and the
	// raft log/snapshot directory.
	DataDir string
	// GRPCEndpoint is the host:port the VmmService gRPC server listens on.
	GRPCEndpoint string
	// DebugEndpoint is the host:port the metrics/pprof debug server listens
	// on. Empty disables it.
	DebugEndpoint string
	// BridgeName is the Linux bridge new TAP devices are attached to.
	BridgeName string
	// CloudHypervisorBin is the path to the cloud-hypervisor binary.
	CloudHypervisorBin string
	// DisableAPI stops the gRPC server from starting, for tooling that only
	// needs the raft/store side of the daemon.
	DisableAPI bool

	// Raft holds this node's cluster identity and peer configuration.
	Raft RaftConfig

	// ReadyTimeout bounds how long Start waits for a freshly spawned
	// hypervisor's API socket to come up before killing it.
	ReadyTimeout time.Duration
	// StopTimeout is the default grace period Stop waits for before
	// escalating to SIGTERM (and, after a further grace period, to Kill).
	StopTimeout time.Duration
}

// RaftConfig is the subset of Config that becomes pkg/raft.Config.
type RaftConfig struct {
	// NodeID is this node's raft.ServerID, e.g. "mvirt-a".
	NodeID string
	// BindAddr is the host:port the raft transport listens on.
	BindAddr string
	// Peers is the full static cluster membership in "node-id@host:port"
	// form, including this node.
	Peers []string
	// Bootstrap initializes a brand-new single/multi-node cluster from
	// Peers on first start. Ignored once raft state already exists on disk.
	Bootstrap bool
}

// Package flags adds and binds the daemon's cobra flags, following the
// teacher's flag-registration shape: one AddXFlagsToCommand function per
// concern, each wiring defaults from pkg/defaults into a shared *config.Config.
package flags

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MalteJ/mvirt/internal/config"
	"github.com/MalteJ/mvirt/pkg/defaults"
)

const (
	dataDirFlag            = "data-dir"
	grpcEndpointFlag       = "listen"
	debugEndpointFlag      = "debug-endpoint"
	bridgeNameFlag         = "bridge"
	disableAPIFlag         = "disable-api"
	cloudHypervisorBinFlag = "cloudhypervisor-bin"
	readyTimeoutFlag       = "ready-timeout"
	stopTimeoutFlag        = "stop-timeout"

	raftNodeIDFlag    = "raft-node-id"
	raftBindAddrFlag  = "raft-bind-addr"
	raftPeersFlag     = "raft-peers"
	raftBootstrapFlag = "raft-bootstrap"
)

// AddDaemonFlagsToCommand adds the flags that configure storage, networking
// and the hypervisor binary.
func AddDaemonFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.DataDir,
		dataDirFlag,
		defaults.DataDir,
		"The directory to use as the root for VM and cluster state.")

	cmd.Flags().StringVar(&cfg.BridgeName,
		bridgeNameFlag,
		defaults.BridgeName,
		"The name of the Linux bridge to attach tap devices to.")

	cmd.Flags().StringVar(&cfg.CloudHypervisorBin,
		cloudHypervisorBinFlag,
		defaults.CloudHypervisorBin,
		"The path to the cloud-hypervisor binary to use.")

	cmd.Flags().DurationVar(&cfg.ReadyTimeout,
		readyTimeoutFlag,
		defaults.ReadyTimeout,
		"How long to wait for a freshly started VM's API socket before treating the start as failed.")

	cmd.Flags().DurationVar(&cfg.StopTimeout,
		stopTimeoutFlag,
		defaults.StopTimeout,
		"How long to wait for a graceful stop before escalating to SIGTERM (and then to kill).")
}

// AddGRPCServerFlagsToCommand adds the flags for the VmmService gRPC server.
func AddGRPCServerFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.GRPCEndpoint,
		grpcEndpointFlag,
		defaults.GRPCEndpoint,
		"The endpoint for the gRPC server to listen on.")

	cmd.Flags().BoolVar(&cfg.DisableAPI,
		disableAPIFlag,
		false,
		"Set to true to stop the gRPC server running.")
}

// AddDebugFlagsToCommand adds the metrics/pprof debug endpoint flag.
func AddDebugFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.DebugEndpoint,
		debugEndpointFlag,
		"",
		"The endpoint for the debug web server to listen on. Empty disables it.")
}

// AddRaftFlagsToCommand adds the flags that configure this node's raft
// identity and static peer list.
func AddRaftFlagsToCommand(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.Raft.NodeID,
		raftNodeIDFlag,
		"",
		"This node's unique raft server id, e.g. mvirt-a.")

	cmd.Flags().StringVar(&cfg.Raft.BindAddr,
		raftBindAddrFlag,
		defaults.RaftBindAddr,
		"The local address the raft transport listens on.")

	cmd.Flags().StringSliceVar(&cfg.Raft.Peers,
		raftPeersFlag,
		nil,
		"The full static cluster membership as node-id@host:port entries, including this node.")

	cmd.Flags().BoolVar(&cfg.Raft.Bootstrap,
		raftBootstrapFlag,
		false,
		"Bootstrap a new cluster from raft-peers on first start.")
}

// BindCommandToViper binds cmd's flags to viper, so MVIRTD_*-style
// environment variables and a loaded config file can supply values the
// command line did not set.
func BindCommandToViper(cmd *cobra.Command) {
	bindFlagsToViper(cmd.PersistentFlags())
	bindFlagsToViper(cmd.Flags())
}

func bindFlagsToViper(fs *pflag.FlagSet) {
	fs.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
		_ = viper.BindEnv(flag.Name)

		if !flag.Changed && viper.IsSet(flag.Name) {
			val := viper.Get(flag.Name)
			_ = fs.Set(flag.Name, fmt.Sprintf("%v", val))
		}
	})
}

package flags_test

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/internal/command/flags"
	"github.com/MalteJ/mvirt/internal/config"
	"github.com/MalteJ/mvirt/pkg/defaults"
)

func newTestCommand() *cobra.Command {
	return &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
}

func TestAddDaemonFlagsToCommandAppliesDefaults(t *testing.T) {
	cmd := newTestCommand()
	cfg := &config.Config{}

	flags.AddDaemonFlagsToCommand(cmd, cfg)
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Equal(t, defaults.DataDir, cfg.DataDir)
	assert.Equal(t, defaults.BridgeName, cfg.BridgeName)
	assert.Equal(t, defaults.CloudHypervisorBin, cfg.CloudHypervisorBin)
	assert.Equal(t, defaults.ReadyTimeout, cfg.ReadyTimeout)
	assert.Equal(t, defaults.StopTimeout, cfg.StopTimeout)
}

func TestAddDaemonFlagsToCommandParsesOverrides(t *testing.T) {
	cmd := newTestCommand()
	cfg := &config.Config{}

	flags.AddDaemonFlagsToCommand(cmd, cfg)
	require.NoError(t, cmd.ParseFlags([]string{
		"--data-dir=/tmp/mvirt-test",
		"--bridge=br-test",
		"--ready-timeout=5s",
		"--stop-timeout=1s",
	}))

	assert.Equal(t, "/tmp/mvirt-test", cfg.DataDir)
	assert.Equal(t, "br-test", cfg.BridgeName)
	assert.Equal(t, 5*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, time.Second, cfg.StopTimeout)
}

func TestAddGRPCServerFlagsToCommand(t *testing.T) {
	cmd := newTestCommand()
	cfg := &config.Config{}

	flags.AddGRPCServerFlagsToCommand(cmd, cfg)
	require.NoError(t, cmd.ParseFlags([]string{"--disable-api"}))

	assert.Equal(t, defaults.GRPCEndpoint, cfg.GRPCEndpoint)
	assert.True(t, cfg.DisableAPI)
}

func TestAddRaftFlagsToCommandParsesPeerList(t *testing.T) {
	cmd := newTestCommand()
	cfg := &config.Config{}

	flags.AddRaftFlagsToCommand(cmd, cfg)
	require.NoError(t, cmd.ParseFlags([]string{
		"--raft-node-id=mvirt-a",
		"--raft-peers=mvirt-a@host-a:7000,mvirt-b@host-b:7000",
		"--raft-bootstrap",
	}))

	assert.Equal(t, "mvirt-a", cfg.Raft.NodeID)
	assert.Equal(t, defaults.RaftBindAddr, cfg.Raft.BindAddr)
	assert.Equal(t, []string{"mvirt-a@host-a:7000", "mvirt-b@host-b:7000"}, cfg.Raft.Peers)
	assert.True(t, cfg.Raft.Bootstrap)
}

func TestAddDebugFlagsToCommandDefaultsEmptyDisablesServer(t *testing.T) {
	cmd := newTestCommand()
	cfg := &config.Config{}

	flags.AddDebugFlagsToCommand(cmd, cfg)
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Empty(t, cfg.DebugEndpoint)
}

package inject

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/internal/config"
)

func TestNewRaftConfigBuildsDataDirUnderCfg(t *testing.T) {
	cfg := &config.Config{
		DataDir: "/var/lib/mvirt",
		Raft: config.RaftConfig{
			NodeID:    "mvirt-a",
			BindAddr:  "[::1]:7000",
			Peers:     []string{"mvirt-a@host-a:7000", "mvirt-b@host-b:7000"},
			Bootstrap: true,
		},
	}

	raftCfg, err := newRaftConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "mvirt-a", raftCfg.NodeID)
	assert.Equal(t, "[::1]:7000", raftCfg.BindAddr)
	assert.Equal(t, filepath.Join("/var/lib/mvirt", "raft"), raftCfg.DataDir)
	assert.True(t, raftCfg.Bootstrap)
	require.Len(t, raftCfg.Peers, 2)
}

func TestNewRaftConfigRejectsMalformedPeerEntry(t *testing.T) {
	cfg := &config.Config{
		DataDir: "/var/lib/mvirt",
		Raft: config.RaftConfig{
			Peers: []string{"not-a-valid-peer"},
		},
	}

	_, err := newRaftConfig(cfg)
	assert.Error(t, err)
}

package raft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/raft"
)

func TestParsePeer(t *testing.T) {
	p, err := raft.ParsePeer("mvirt-a@10.0.0.1:8300")
	require.NoError(t, err)
	assert.Equal(t, "mvirt-a", p.ID)
	assert.Equal(t, "10.0.0.1:8300", p.Address)
}

func TestParsePeerRejectsMissingParts(t *testing.T) {
	_, err := raft.ParsePeer("10.0.0.1:8300")
	assert.Error(t, err)

	_, err = raft.ParsePeer("mvirt-a@")
	assert.Error(t, err)
}

func TestParsePeers(t *testing.T) {
	peers, err := raft.ParsePeers([]string{"mvirt-a@10.0.0.1:8300", "mvirt-b@10.0.0.2:8300"})
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "mvirt-b", peers[1].ID)
}

package raft

import (
	"fmt"
	"strings"
)

// Peer is one member of the static bootstrap configuration, in
// "node-id@host:port" form as read from config (spec's Open Question:
// peer discovery is a configuration input, not solved by mvirt itself).
type Peer struct {
	ID      string
	Address string
}

// ParsePeer parses a single "node-id@host:port" entry.
func ParsePeer(s string) (Peer, error) {
	idAddr := strings.SplitN(s, "@", 2)
	if len(idAddr) != 2 || idAddr[0] == "" || idAddr[1] == "" {
		return Peer{}, fmt.Errorf("raft: invalid peer %q, want node-id@host:port", s)
	}

	return Peer{ID: idAddr[0], Address: idAddr[1]}, nil
}

// ParsePeers parses a full static peer list.
func ParsePeers(entries []string) ([]Peer, error) {
	peers := make([]Peer, 0, len(entries))

	for _, e := range entries {
		p, err := ParsePeer(e)
		if err != nil {
			return nil, err
		}

		peers = append(peers, p)
	}

	return peers, nil
}

// Config configures a single Node.
type Config struct {
	// NodeID is this node's raft.ServerID, e.g. "mvirt-a".
	NodeID string
	// BindAddr is the local host:port the raft transport listens on.
	BindAddr string
	// DataDir is the directory raft's bolt log/stable store and snapshots
	// are kept under (normally <data-dir>/raft).
	DataDir string
	// Peers is the full static cluster membership, including this node.
	// Bootstrap uses it verbatim as the initial configuration.
	Peers []Peer
	// Bootstrap, when true, initializes a brand-new cluster from Peers on
	// first start. Subsequent starts detect existing raft state and skip
	// it regardless of this flag.
	Bootstrap bool
}

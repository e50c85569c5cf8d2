// Package raft wraps hashicorp/raft into the narrow surface pkg/control
// needs: propose a Command and have it applied exactly once across the
// cluster, know whether this node is the leader, and hand followers a
// leader address to report back to gRPC clients.
package raft

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"github.com/sirupsen/logrus"

	"github.com/MalteJ/mvirt/pkg/control"
	"github.com/MalteJ/mvirt/pkg/errors"
)

const (
	defaultApplyTimeout  = 5 * time.Second
	retainSnapshotCount  = 3
	transportMaxPool     = 3
	transportDialTimeout = 10 * time.Second
)

// Node is a single participant in the replicated control-plane store.
type Node struct {
	raft      *raft.Raft
	transport *raft.NetworkTransport
	logStore  *raftboltdb.BoltStore
	log       *logrus.Entry
}

// NewNode starts (or rejoins) a Raft node backed by cfg, replicating onto
// fsm. The returned Node is ready to accept Propose calls; BootstrapCluster
// only actually runs when no prior raft state exists on disk.
func NewNode(cfg Config, fsm *control.FSM, log *logrus.Entry) (*Node, error) {
	raftDir := cfg.DataDir
	if err := os.MkdirAll(raftDir, 0o755); err != nil {
		return nil, fmt.Errorf("raft: creating data dir: %w", err)
	}

	boltPath := filepath.Join(raftDir, "raft.db")

	logStore, err := raftboltdb.New(raftboltdb.Options{Path: boltPath})
	if err != nil {
		return nil, fmt.Errorf("raft: opening bolt store: %w", err)
	}

	snapStore, err := raft.NewFileSnapshotStore(raftDir, retainSnapshotCount, log.WriterLevel(logrus.DebugLevel))
	if err != nil {
		return nil, fmt.Errorf("raft: creating snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("raft: resolving bind address %q: %w", cfg.BindAddr, err)
	}

	transport, err := raft.NewTCPTransportWithLogger(cfg.BindAddr, addr, transportMaxPool, transportDialTimeout, NewHCLogAdapter(log.WithField("component", "raft-transport")))
	if err != nil {
		return nil, fmt.Errorf("raft: creating transport: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.Logger = NewHCLogAdapter(log.WithField("component", "raft"))

	hasState, err := raft.HasExistingState(logStore, logStore, snapStore)
	if err != nil {
		return nil, fmt.Errorf("raft: checking existing state: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, logStore, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("raft: starting node: %w", err)
	}

	if !hasState && cfg.Bootstrap {
		servers := make([]raft.Server, 0, len(cfg.Peers))
		for _, p := range cfg.Peers {
			servers = append(servers, raft.Server{
				Suffrage: raft.Voter,
				ID:       raft.ServerID(p.ID),
				Address:  raft.ServerAddress(p.Address),
			})
		}

		future := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil {
			return nil, fmt.Errorf("raft: bootstrapping cluster: %w", err)
		}
	}

	return &Node{raft: r, transport: transport, logStore: logStore, log: log}, nil
}

// Propose submits cmd for replication and returns its Response once
// committed and applied by the local FSM. Non-leaders return
// errors.Unavailable naming the current leader, per spec §4.4's
// "followers redirect transparently" contract — the gRPC layer surfaces
// this to the client rather than forwarding it itself.
func (n *Node) Propose(ctx context.Context, cmd control.Command) (control.Response, error) {
	if n.raft.State() != raft.Leader {
		leader := n.raft.Leader()
		if leader == "" {
			return control.Response{}, errors.Unavailable("no raft leader elected")
		}

		return control.Response{}, errors.Unavailable("not leader, current leader is %s", leader)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return control.Response{}, fmt.Errorf("raft: encoding command: %w", err)
	}

	timeout := defaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			timeout = d
		}
	}

	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return control.Response{}, fmt.Errorf("raft: applying command: %w", err)
	}

	switch resp := future.Response().(type) {
	case control.Response:
		return resp, nil
	case error:
		return control.Response{}, resp
	default:
		return control.Response{}, fmt.Errorf("raft: unexpected apply result type %T", resp)
	}
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderAddress returns the current leader's transport address, or "" if
// none is known.
func (n *Node) LeaderAddress() string {
	return string(n.raft.Leader())
}

// Shutdown stops the Raft node and closes its log store.
func (n *Node) Shutdown() error {
	if err := n.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("raft: shutting down: %w", err)
	}

	return n.logStore.Close()
}

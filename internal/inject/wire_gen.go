// Code generated by hand to mirror what wire.go's injector would produce;
// keep both in sync when changing the provider set. See wire.go.
package inject

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/MalteJ/mvirt/internal/config"
	"github.com/MalteJ/mvirt/pkg/control"
	"github.com/MalteJ/mvirt/pkg/defaults"
	"github.com/MalteJ/mvirt/pkg/hypervisor/cloudhypervisor"
	"github.com/MalteJ/mvirt/pkg/log"
	"github.com/MalteJ/mvirt/pkg/network"
	"github.com/MalteJ/mvirt/pkg/raft"
	"github.com/MalteJ/mvirt/pkg/store"
	"github.com/MalteJ/mvirt/pkg/supervisor"
	"github.com/MalteJ/mvirt/pkg/watch"
)

const watchBusCapacity = 256

// Application is every long-lived component one mvirtd process owns.
type Application struct {
	Store      *store.Store
	Driver     *cloudhypervisor.Driver
	Supervisor *supervisor.Supervisor
	Bus        *watch.Bus
	FSM        *control.FSM
	Raft       *raft.Node
	Repository *control.RaftRepository
	DataDir    string
}

func newFs() afero.Fs {
	return afero.NewOsFs()
}

func newLogger(cfg *config.Config) (*logrus.Entry, error) {
	logger, err := log.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	return logrus.NewEntry(logger), nil
}

func newStore(cfg *config.Config) (*store.Store, error) {
	dbPath := filepath.Join(cfg.DataDir, "mvirt.db")

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}

	return st, nil
}

func newNetworkAllocator(cfg *config.Config) *network.Allocator {
	return network.NewAllocator(cfg.BridgeName)
}

func newCloudHypervisorDriver(cfg *config.Config, fs afero.Fs) *cloudhypervisor.Driver {
	return cloudhypervisor.New(cfg.CloudHypervisorBin, fs)
}

func newSupervisor(cfg *config.Config, st *store.Store, taps *network.Allocator, driver *cloudhypervisor.Driver, fs afero.Fs, logger *logrus.Entry) *supervisor.Supervisor {
	sv := supervisor.New(st, taps, driver, fs, cfg.DataDir, logger)
	sv.SetReadyTimeout(cfg.ReadyTimeout)

	return sv
}

func newWatchBus() *watch.Bus {
	return watch.NewBus(watchBusCapacity)
}

func newFSM(bus *watch.Bus, logger *logrus.Entry) *control.FSM {
	return control.NewFSM(bus, logger)
}

func newRaftConfig(cfg *config.Config) (raft.Config, error) {
	peers, err := raft.ParsePeers(cfg.Raft.Peers)
	if err != nil {
		return raft.Config{}, fmt.Errorf("parsing raft peers: %w", err)
	}

	return raft.Config{
		NodeID:    cfg.Raft.NodeID,
		BindAddr:  cfg.Raft.BindAddr,
		DataDir:   filepath.Join(cfg.DataDir, "raft"),
		Peers:     peers,
		Bootstrap: cfg.Raft.Bootstrap,
	}, nil
}

func newRaftNode(raftCfg raft.Config, fsm *control.FSM, logger *logrus.Entry) (*raft.Node, error) {
	node, err := raft.NewNode(raftCfg, fsm, logger)
	if err != nil {
		return nil, fmt.Errorf("starting raft node: %w", err)
	}

	return node, nil
}

func newRepository(node *raft.Node, fsm *control.FSM, bus *watch.Bus) *control.RaftRepository {
	return control.NewRaftRepository(node, fsm, bus)
}

func newApplication(
	cfg *config.Config,
	st *store.Store,
	driver *cloudhypervisor.Driver,
	sv *supervisor.Supervisor,
	bus *watch.Bus,
	fsm *control.FSM,
	node *raft.Node,
	repo *control.RaftRepository,
) *Application {
	return &Application{
		Store:      st,
		Driver:     driver,
		Supervisor: sv,
		Bus:        bus,
		FSM:        fsm,
		Raft:       node,
		Repository: repo,
		DataDir:    cfg.DataDir,
	}
}

// InitializeApplication wires every long-lived component for one mvirtd
// process and returns a cleanup function that shuts them down in reverse
// order. Equivalent to what `wire` would generate from wire.go's injector.
func InitializeApplication(ctx context.Context, cfg *config.Config) (*Application, func(), error) {
	if err := ensureDataDir(cfg); err != nil {
		return nil, nil, err
	}

	fs := newFs()

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := newStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	taps := newNetworkAllocator(cfg)
	driver := newCloudHypervisorDriver(cfg, fs)
	sv := newSupervisor(cfg, st, taps, driver, fs, logger)
	bus := newWatchBus()
	fsm := newFSM(bus, logger)

	raftCfg, err := newRaftConfig(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	node, err := newRaftNode(raftCfg, fsm, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	repo := newRepository(node, fsm, bus)
	sv.SetSecurityGroupResolver(repo)
	sv.SetNicResolver(repo)

	app := newApplication(cfg, st, driver, sv, bus, fsm, node, repo)

	cleanup := func() {
		if err := node.Shutdown(); err != nil {
			logger.WithError(err).Warn("raft node shutdown failed")
		}

		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("store close failed")
		}
	}

	return app, cleanup, nil
}

func ensureDataDir(cfg *config.Config) error {
	fs := afero.NewOsFs()

	if err := fs.MkdirAll(cfg.DataDir, defaults.DataDirPerm); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	return nil
}

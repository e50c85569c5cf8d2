// Package supervisor implements the VM lifecycle FSM (spec's start/stop/
// kill/delete operations): it owns TAP allocation, cloud-init synthesis,
// cloud-hypervisor process spawning, crash recovery and the background
// watchers that notice when a hypervisor process exits.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/MalteJ/mvirt/pkg/cloudinit"
	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/hypervisor/cloudhypervisor"
	"github.com/MalteJ/mvirt/pkg/hypervisor/shared"
	"github.com/MalteJ/mvirt/pkg/log"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/network"
	"github.com/MalteJ/mvirt/pkg/store"
	"github.com/MalteJ/mvirt/pkg/vhostuser"
)

const (
	defaultReadyTimeout = 30 * time.Second
	adoptedPollInterval = time.Second
	stopPollInterval    = 100 * time.Millisecond

	// sigtermGracePeriod is the additional grace period Stop waits after
	// SIGTERM before escalating to Kill's SIGKILL.
	sigtermGracePeriod = 5 * time.Second

	// adoptedPingTimeout bounds how long Recover waits for an adopted
	// process's API socket to answer before deciding it isn't ours.
	adoptedPingTimeout = 2 * time.Second
)

// SecurityGroupResolver resolves the effective SecurityGroupRule set bound
// to a NIC id. pkg/control.RaftRepository implements it; Start calls it for
// every NIC a VM is configured with and hands the result to
// pkg/network.ApplyRules. A nil resolver disables enforcement.
type SecurityGroupResolver interface {
	EffectiveRules(nicID string) []*models.SecurityGroupRule
}

// Supervisor drives VMs through Stopped -> Starting -> Running -> Stopping
// -> Stopped (spec §4.2), plus the Failed and kill shortcuts.
type Supervisor struct {
	store   *store.Store
	taps    *network.Allocator
	driver  *cloudhypervisor.Driver
	fs      afero.Fs
	dataDir string
	log     *logrus.Entry
	metrics metrics

	readyTimeout time.Duration
	sgResolver   SecurityGroupResolver
	nicResolver  cloudinit.NicResolver

	vhostMu   sync.Mutex
	vhostSets map[models.VMID]*vhostSet
}

// vhostSet is the set of per-NIC vhost-user listeners Start opened for one
// VM, plus the channel that tells their backend loops to stop.
type vhostSet struct {
	listeners []*vhostuser.Listener
	stop      chan struct{}
}

// New returns a Supervisor rooted at dataDir, driving cloud-hypervisor
// instances via driver and TAPs via taps.
func New(st *store.Store, taps *network.Allocator, driver *cloudhypervisor.Driver, fs afero.Fs, dataDir string, logger *logrus.Entry) *Supervisor {
	return &Supervisor{
		store:        st,
		taps:         taps,
		driver:       driver,
		fs:           fs,
		dataDir:      dataDir,
		log:          logger,
		metrics:      newMetrics(),
		readyTimeout: defaultReadyTimeout,
		vhostSets:    make(map[models.VMID]*vhostSet),
	}
}

// SetReadyTimeout overrides how long Start waits for cloud-hypervisor's API
// socket to come up before giving up and marking the VM Failed.
func (s *Supervisor) SetReadyTimeout(d time.Duration) {
	if d > 0 {
		s.readyTimeout = d
	}
}

// SetSecurityGroupResolver wires the NIC security-group enforcement hook.
// Called once at daemon startup with the Raft-backed repository.
func (s *Supervisor) SetSecurityGroupResolver(r SecurityGroupResolver) {
	s.sgResolver = r
}

// SetNicResolver wires the NIC lookup used to render each VM's cloud-init
// network-config from its attached NICs' MAC addresses. Called once at
// daemon startup with the Raft-backed repository.
func (s *Supervisor) SetNicResolver(r cloudinit.NicResolver) {
	s.nicResolver = r
}

func (s *Supervisor) state(id models.VMID) cloudhypervisor.State {
	return cloudhypervisor.NewState(id, s.dataDir, s.fs)
}

// Recover re-attaches to every hypervisor process this daemon was
// supervising before its last restart: one runtime row per VM in
// {Starting, Running, Stopping} names a PID that either survived the
// restart (reparented, no longer a child of this process) or died while
// this daemon was down. Each is adopted into watchExitAdopted, which
// finalizes the ones already dead immediately.
func (s *Supervisor) Recover(ctx context.Context) error {
	rows, err := s.store.ListRuntime()
	if err != nil {
		return fmt.Errorf("listing runtime rows for recovery: %w", err)
	}

	for _, rt := range rows {
		logger := s.log.WithField("vm_id", rt.VMID.String()).WithField("pid", rt.PID)

		if s.processIsOurs(ctx, rt) {
			logger.Info("adopted running vm after restart")
		} else {
			logger.Warn("vm process was not confirmed alive at restart")
		}

		go s.watchExitAdopted(rt.VMID, rt.PID, rt.TapName)
	}

	return nil
}

// processIsOurs decides whether rt.PID is still the cloud-hypervisor
// instance rt describes, never trusting the stored runtime row by itself:
// the PID must be alive, its /proc/<pid>/cmdline must name this driver's
// binary (a recycled PID could otherwise belong to an unrelated process),
// and its API socket must answer a ping.
func (s *Supervisor) processIsOurs(ctx context.Context, rt *models.VmRuntime) bool {
	if !shared.ProcessAlive(rt.PID) {
		return false
	}

	if !shared.CmdlineContains(rt.PID, s.driver.Binary) {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, adoptedPingTimeout)
	defer cancel()

	return s.driver.Ping(pingCtx, s.state(rt.VMID)) == nil
}

// Start spawns vm's hypervisor process and transitions it Stopped ->
// Starting. A background watcher moves it on to Running once its API
// socket answers, or to Failed if it never does.
func (s *Supervisor) Start(ctx context.Context, id models.VMID) error {
	logger := log.GetLogger(ctx).WithField("vm_id", id.String())

	vm, err := s.store.GetVM(id)
	if err != nil {
		return err
	}

	if !vm.State.CanTransitionTo(models.VMStateStarting) {
		return errors.FailedPrecondition("vm %s cannot start from state %s", id, vm.State)
	}

	if err := s.store.SetState(id, vm.State, models.VMStateStarting); err != nil {
		return err
	}

	s.metrics.starts.Inc()

	tap := s.taps.Reserve()
	if err := s.taps.Create(ctx, tap); err != nil {
		s.failStart(id, "creating tap")
		return fmt.Errorf("creating tap for vm %s: %w", id, err)
	}

	s.applySecurityGroups(id, tap, vm.Config.Nics, logger)

	st := s.state(id)
	s.startVhostUserBackends(id, st, vm.Config.Nics, logger)

	ciCfg, err := s.resolveCloudInitConfig(vm.Config)
	if err != nil {
		s.taps.Delete(ctx, tap)
		s.failStart(id, "rendering cloud-init network-config")
		return fmt.Errorf("rendering network-config for vm %s: %w", id, err)
	}

	if cloudinit.Required(ciCfg) {
		if err := cloudinit.Write(st.CloudInitISOPath(), ciCfg); err != nil {
			s.taps.Delete(ctx, tap)
			s.failStart(id, "writing cloud-init iso")
			return fmt.Errorf("writing cloud-init iso for vm %s: %w", id, err)
		}
	}

	proc, err := s.driver.Spawn(ctx, vm, st, tap)
	if err != nil {
		s.taps.Delete(ctx, tap)
		s.failStart(id, "spawning hypervisor")
		return fmt.Errorf("spawning vm %s: %w", id, err)
	}

	if err := st.SetPID(proc.Pid); err != nil {
		logger.WithError(err).Warn("failed to persist pid file")
	}

	rt := &models.VmRuntime{
		VMID:         id,
		PID:          proc.Pid,
		APISocket:    st.APISocketPath(),
		SerialSocket: st.SerialSocketPath(),
		TapName:      tap,
	}
	if err := s.store.InsertRuntime(rt); err != nil {
		return fmt.Errorf("recording runtime for vm %s: %w", id, err)
	}

	logger.WithFields(logrus.Fields{"pid": proc.Pid, "tap": tap}).Info("started vm")

	go s.watchExitOwned(id, proc, tap)
	go s.readinessWatch(id, st)

	return nil
}

// resolveCloudInitConfig fills in cfg.NetworkConfig from the VM's attached
// NICs when the caller didn't already supply one, so the rendered ISO
// matches the NIC a guest actually boots with rather than leaving it to
// the guest's own (D)HCP-less defaults. Returns cfg unchanged if there's no
// cloud-init config, no NICs, or no resolver wired.
func (s *Supervisor) resolveCloudInitConfig(cfg models.VMConfig) (*models.CloudInitConfig, error) {
	if cfg.CloudInit == nil || cfg.CloudInit.NetworkConfig != "" || s.nicResolver == nil || len(cfg.Nics) == 0 {
		return cfg.CloudInit, nil
	}

	netConf, err := cloudinit.GenerateNetworkConfig(s.nicResolver, cfg.Nics)
	if err != nil {
		return nil, err
	}

	out := *cfg.CloudInit
	out.NetworkConfig = netConf

	return &out, nil
}

// applySecurityGroups resolves and installs the security-group rules bound
// to every NIC a VM is configured with. It is best effort: a failure here
// leaves the VM reachable without the intended filtering rather than
// failing the start outright, since enforcement is a hardening layer on top
// of bridge connectivity, not a precondition for it.
func (s *Supervisor) applySecurityGroups(id models.VMID, tap string, nics []models.NicConfig, logger *logrus.Entry) {
	if s.sgResolver == nil || len(nics) == 0 {
		return
	}

	var rules []*models.SecurityGroupRule

	for _, nic := range nics {
		rules = append(rules, s.sgResolver.EffectiveRules(nic.NicID)...)
	}

	if err := network.ApplyRules(tap, rules); err != nil {
		logger.WithError(err).WithField("tap", tap).Warn("failed to apply security group rules")
	}
}

// startVhostUserBackends opens one vhost-user control socket per configured
// NIC, rooted under the VM's own state directory, and accepts each one's
// backend connection in the background. A NIC whose socket can't be bound
// is skipped with a warning rather than failing Start, since the vhost-user
// dataplane is additive to the tap cloud-hypervisor actually boots against.
func (s *Supervisor) startVhostUserBackends(id models.VMID, st cloudhypervisor.State, nics []models.NicConfig, logger *logrus.Entry) {
	if len(nics) == 0 {
		return
	}

	set := &vhostSet{stop: make(chan struct{})}

	for _, nic := range nics {
		path := vhostuser.SocketPath(st.Root(), nic.NicID)

		ln, err := vhostuser.Listen(path, logger)
		if err != nil {
			logger.WithError(err).WithField("nic_id", nic.NicID).Warn("failed to open vhost-user socket")
			continue
		}

		set.listeners = append(set.listeners, ln)

		go func(ln *vhostuser.Listener, nicID string) {
			backend, err := ln.Accept(nicID)
			if err != nil {
				return
			}

			if err := backend.Run(set.stop); err != nil {
				logger.WithError(err).WithField("nic_id", nicID).Debug("vhost-user backend loop exited")
			}
		}(ln, nic.NicID)
	}

	s.vhostMu.Lock()
	s.vhostSets[id] = set
	s.vhostMu.Unlock()
}

// stopVhostUserBackends signals every NIC backend loop started for id to
// stop and closes their control sockets.
func (s *Supervisor) stopVhostUserBackends(id models.VMID) {
	s.vhostMu.Lock()
	set, ok := s.vhostSets[id]
	if ok {
		delete(s.vhostSets, id)
	}
	s.vhostMu.Unlock()

	if !ok {
		return
	}

	close(set.stop)

	for _, ln := range set.listeners {
		if err := ln.Close(); err != nil {
			s.log.WithError(err).WithField("vm_id", id.String()).Warn("failed to close vhost-user socket")
		}
	}
}

func (s *Supervisor) failStart(id models.VMID, reason string) {
	s.stopVhostUserBackends(id)

	if err := s.store.SetState(id, models.VMStateStarting, models.VMStateFailed); err != nil {
		s.log.WithError(err).WithField("vm_id", id.String()).Warn("failed to record start failure")
	}

	s.metrics.startFailures.Inc()
	s.log.WithField("vm_id", id.String()).WithField("reason", reason).Warn("vm start failed")
}

// readinessWatch waits for the freshly spawned hypervisor's API socket to
// come up and promotes the VM to Running, or kills it if it never does.
func (s *Supervisor) readinessWatch(id models.VMID, st cloudhypervisor.State) {
	ctx, cancel := context.WithTimeout(context.Background(), s.readyTimeout)
	defer cancel()

	logger := s.log.WithField("vm_id", id.String())

	if err := s.driver.WaitForAPISocket(ctx, st); err != nil {
		logger.WithError(err).Warn("vm did not become ready in time, killing")

		if killErr := s.Kill(context.Background(), id); killErr != nil {
			logger.WithError(killErr).Warn("kill after failed readiness also failed")
		}

		return
	}

	vm, err := s.store.GetVM(id)
	if err != nil {
		return
	}

	if err := s.store.SetState(id, models.VMStateStarting, models.VMStateRunning); err != nil {
		// Lost the race (e.g. killed meanwhile); nothing to do.
		return
	}

	vm.State = models.VMStateRunning
	vm.StartedAt = time.Now()

	if err := s.store.UpsertVM(vm); err != nil {
		logger.WithError(err).Error("failed to record started_at")
	}

	s.metrics.vmsRunning.Inc()
	logger.Info("vm is running")
}

// Stop requests a graceful shutdown and waits up to timeout for it to take
// effect. spec's three-stage escalation: ACPI shutdown via the API socket,
// then SIGTERM if that hasn't worked within timeout, then Kill's SIGKILL if
// SIGTERM hasn't worked within an additional grace period.
func (s *Supervisor) Stop(ctx context.Context, id models.VMID, timeout time.Duration) error {
	logger := log.GetLogger(ctx).WithField("vm_id", id.String())

	vm, err := s.store.GetVM(id)
	if err != nil {
		return err
	}

	if !vm.State.CanTransitionTo(models.VMStateStopping) {
		return errors.FailedPrecondition("vm %s cannot stop from state %s", id, vm.State)
	}

	if err := s.store.SetState(id, vm.State, models.VMStateStopping); err != nil {
		return err
	}

	if err := s.driver.Shutdown(ctx, s.state(id)); err != nil {
		logger.WithError(err).Warn("graceful shutdown request failed, will fall back to sigterm")
	}

	stopped, err := s.waitForStopped(id, timeout)
	if err != nil {
		return err
	}

	if stopped {
		return nil
	}

	logger.Warn("vm did not stop gracefully within timeout, sending sigterm")

	if err := s.signalRuntime(id, syscall.SIGTERM); err != nil {
		logger.WithError(err).Warn("sending sigterm failed")
	}

	stopped, err = s.waitForStopped(id, sigtermGracePeriod)
	if err != nil {
		return err
	}

	if stopped {
		return nil
	}

	logger.Warn("vm did not stop after sigterm, killing")

	return s.Kill(ctx, id)
}

// waitForStopped polls the VM's stored state until it reaches Stopped or
// timeout elapses.
func (s *Supervisor) waitForStopped(id models.VMID, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		vm, err := s.store.GetVM(id)
		if err != nil {
			return false, err
		}

		if vm.State == models.VMStateStopped {
			return true, nil
		}

		time.Sleep(stopPollInterval)
	}

	return false, nil
}

// signalRuntime sends sig to the hypervisor process recorded for id.
func (s *Supervisor) signalRuntime(id models.VMID, sig syscall.Signal) error {
	rt, err := s.store.GetRuntime(id)
	if err != nil {
		return fmt.Errorf("getting runtime for vm %s: %w", id, err)
	}

	proc, err := os.FindProcess(rt.PID)
	if err != nil {
		return fmt.Errorf("finding process for vm %s: %w", id, err)
	}

	return proc.Signal(sig)
}

// Kill sends SIGKILL to the VM's hypervisor process. The state transition
// to Stopped and TAP/runtime cleanup happen in the watcher once the process
// has actually exited, not here. A VM killed while still Starting (as
// readinessWatch does after a readiness timeout) ends Failed instead.
func (s *Supervisor) Kill(ctx context.Context, id models.VMID) error {
	logger := log.GetLogger(ctx).WithField("vm_id", id.String())

	vm, err := s.store.GetVM(id)
	if err != nil {
		return err
	}

	if vm.State == models.VMStateStopped {
		return nil
	}

	if !vm.State.CanTransitionTo(models.VMStateStopped) {
		return errors.FailedPrecondition("vm %s cannot be killed from state %s", id, vm.State)
	}

	s.metrics.kills.Inc()

	rt, err := s.store.GetRuntime(id)
	if err != nil {
		// No runtime row to signal; force the transition directly.
		return s.store.SetState(id, vm.State, models.VMStateStopped)
	}

	// A Running VM goes through Stopping first, so finalizeExit records the
	// kill as Stopped rather than as a crash.
	if vm.State == models.VMStateRunning {
		if err := s.store.SetState(id, vm.State, models.VMStateStopping); err != nil {
			return err
		}
	}

	proc, err := os.FindProcess(rt.PID)
	if err != nil {
		logger.WithError(err).Warn("could not find process to kill")
		return nil
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		logger.WithError(err).Warn("sending SIGKILL failed")
	}

	return nil
}

// Delete removes a Stopped or Failed VM's definition, runtime row and
// on-disk state directory.
func (s *Supervisor) Delete(ctx context.Context, id models.VMID) error {
	vm, err := s.store.GetVM(id)
	if err != nil {
		return err
	}

	if vm.State != models.VMStateStopped && vm.State != models.VMStateFailed {
		return errors.FailedPrecondition("vm %s must be stopped or failed before delete, is %s", id, vm.State)
	}

	if err := s.state(id).Delete(); err != nil {
		return err
	}

	if err := s.store.DeleteRuntime(id); err != nil {
		return err
	}

	return s.store.DeleteVM(id)
}

// finalizeExit runs once a hypervisor process has been confirmed dead: it
// releases the TAP, advances the VM to its terminal state, and drops the
// runtime row.
func (s *Supervisor) finalizeExit(id models.VMID, tap string) {
	s.stopVhostUserBackends(id)

	if tap != "" {
		if err := s.taps.Delete(context.Background(), tap); err != nil {
			s.log.WithError(err).WithField("vm_id", id.String()).Warn("failed to delete tap on exit")
		}
	}

	vm, err := s.store.GetVM(id)
	if err == nil {
		switch vm.State {
		case models.VMStateStopping:
			if err := s.store.SetState(id, vm.State, models.VMStateStopped); err == nil {
				s.metrics.stops.Inc()
				// Stopping is only ever entered from Running.
				s.metrics.vmsRunning.Dec()
			}
		case models.VMStateStarting, models.VMStateRunning:
			wasRunning := vm.State == models.VMStateRunning
			if err := s.store.SetState(id, vm.State, models.VMStateFailed); err == nil {
				s.metrics.startFailures.Inc()

				if wasRunning {
					s.metrics.vmsRunning.Dec()
				}
			}
		}
	}

	if err := s.store.DeleteRuntime(id); err != nil {
		s.log.WithError(err).WithField("vm_id", id.String()).Warn("failed to delete runtime row on exit")
	}
}

// watchExitOwned blocks on a child process this Supervisor spawned itself.
func (s *Supervisor) watchExitOwned(id models.VMID, proc *os.Process, tap string) {
	_, _ = proc.Wait()
	s.finalizeExit(id, tap)
}

// watchExitAdopted polls the liveness of a process adopted during Recover,
// which is not a child of this process (it was reparented after the prior
// daemon instance exited, so Process.Wait cannot be used).
func (s *Supervisor) watchExitAdopted(id models.VMID, pid int, tap string) {
	ticker := time.NewTicker(adoptedPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !shared.ProcessAlive(pid) {
			break
		}
	}

	s.finalizeExit(id, tap)
}

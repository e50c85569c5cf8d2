// Package api implements the VmmService gRPC surface: VM lifecycle calls go
// straight to pkg/store and pkg/supervisor (spec §4.1, §4.2 track VMs as
// local-only state, never through the replicated pkg/control projection),
// while GetSystemInfo reports on the Raft node's leadership.
package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/MalteJ/mvirt/pkg/api/services/vmm"
	"github.com/MalteJ/mvirt/pkg/api/types"
	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/log"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/store"
	"github.com/MalteJ/mvirt/pkg/supervisor"
)

const consoleBufferSize = 4096

// RaftStatus is the narrow view of the Raft node GetSystemInfo needs.
type RaftStatus interface {
	IsLeader() bool
	LeaderAddress() string
}

// Server implements vmm.VmmServiceServer against a node's local store and
// supervisor.
type Server struct {
	vmm.UnimplementedVmmServiceServer

	store              *store.Store
	supervisor         *supervisor.Supervisor
	raft               RaftStatus
	nodeID             string
	dataDir            string
	chvVersion         string
	defaultStopTimeout time.Duration
}

// NewServer returns a Server bound to st and sup, reporting nodeID/dataDir/
// chvVersion back through GetSystemInfo. stopTimeout is the default grace
// period StopVm waits out when a request omits TimeoutSeconds.
func NewServer(st *store.Store, sup *supervisor.Supervisor, raft RaftStatus, nodeID, dataDir, chvVersion string, stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}

	return &Server{
		store:              st,
		supervisor:         sup,
		raft:               raft,
		nodeID:             nodeID,
		dataDir:            dataDir,
		chvVersion:         chvVersion,
		defaultStopTimeout: stopTimeout,
	}
}

func (s *Server) GetSystemInfo(ctx context.Context, _ *types.GetSystemInfoRequest) (*types.SystemInfo, error) {
	vms, err := s.store.ListVMs()
	if err != nil {
		return nil, fmt.Errorf("listing vms: %w", err)
	}

	return &types.SystemInfo{
		NodeID:                 s.nodeID,
		IsLeader:               s.raft.IsLeader(),
		LeaderAddress:          s.raft.LeaderAddress(),
		DataDir:                s.dataDir,
		CloudHypervisorVersion: s.chvVersion,
		VMCount:                int32(len(vms)),
	}, nil
}

func (s *Server) CreateVm(ctx context.Context, req *types.CreateVmRequest) (*types.Vm, error) {
	logger := log.GetLogger(ctx).WithField("vm_id", req.ID)

	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	if req.ProjectID != "" {
		if err := models.ValidateProjectID(req.ProjectID); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.GetVM(id); err == nil {
		return nil, errors.AlreadyExists("vm %s already exists", id)
	}

	vm := &models.VM{
		ID:        id,
		Name:      req.Name,
		ProjectID: req.ProjectID,
		State:     models.VMStateStopped,
		Config:    convertConfigToModel(req.Config),
		CreatedAt: time.Now(),
	}

	if err := s.store.UpsertVM(vm); err != nil {
		return nil, fmt.Errorf("creating vm %s: %w", id, err)
	}

	logger.Info("created vm")

	return convertVMToProto(vm), nil
}

func (s *Server) GetVm(ctx context.Context, req *types.GetVmRequest) (*types.Vm, error) {
	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	vm, err := s.store.GetVM(id)
	if err != nil {
		return nil, err
	}

	return convertVMToProto(vm), nil
}

func (s *Server) ListVms(ctx context.Context, req *types.ListVmsRequest) (*types.ListVmsResponse, error) {
	vms, err := s.store.ListVMs()
	if err != nil {
		return nil, fmt.Errorf("listing vms: %w", err)
	}

	out := make([]*types.Vm, 0, len(vms))

	for _, vm := range vms {
		if req.ProjectID != "" && vm.ProjectID != req.ProjectID {
			continue
		}

		out = append(out, convertVMToProto(vm))
	}

	return &types.ListVmsResponse{Vms: out}, nil
}

func (s *Server) DeleteVm(ctx context.Context, req *types.DeleteVmRequest) (*types.DeleteVmResponse, error) {
	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	if err := s.supervisor.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("deleting vm %s: %w", id, err)
	}

	return &types.DeleteVmResponse{}, nil
}

func (s *Server) StartVm(ctx context.Context, req *types.StartVmRequest) (*types.Vm, error) {
	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	if err := s.supervisor.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("starting vm %s: %w", id, err)
	}

	vm, err := s.store.GetVM(id)
	if err != nil {
		return nil, err
	}

	return convertVMToProto(vm), nil
}

func (s *Server) StopVm(ctx context.Context, req *types.StopVmRequest) (*types.Vm, error) {
	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.defaultStopTimeout
	}

	if err := s.supervisor.Stop(ctx, id, timeout); err != nil {
		return nil, fmt.Errorf("stopping vm %s: %w", id, err)
	}

	vm, err := s.store.GetVM(id)
	if err != nil {
		return nil, err
	}

	return convertVMToProto(vm), nil
}

func (s *Server) KillVm(ctx context.Context, req *types.KillVmRequest) (*types.Vm, error) {
	id, err := models.NewVMID(req.ID)
	if err != nil {
		return nil, err
	}

	if err := s.supervisor.Kill(ctx, id); err != nil {
		return nil, fmt.Errorf("killing vm %s: %w", id, err)
	}

	vm, err := s.store.GetVM(id)
	if err != nil {
		return nil, err
	}

	return convertVMToProto(vm), nil
}

// Console attaches the first inbound frame's VMID to the VM's serial
// AF_UNIX socket and pipes bytes in both directions until either side
// closes. Every subsequent frame sent by the client must carry the same
// VMID; Console serves exactly one VM per stream.
func (s *Server) Console(stream vmm.VmmService_ConsoleServer) error {
	ctx := stream.Context()
	logger := log.GetLogger(ctx)

	first, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil
		}

		return fmt.Errorf("reading first console frame: %w", err)
	}

	id, err := models.NewVMID(first.VMID)
	if err != nil {
		return err
	}

	rt, err := s.store.GetRuntime(id)
	if err != nil {
		return errors.FailedPrecondition("vm %s has no running console", id)
	}

	conn, err := net.Dial("unix", rt.SerialSocket)
	if err != nil {
		return fmt.Errorf("connecting to serial socket for vm %s: %w", id, err)
	}
	defer conn.Close()

	logger.WithField("vm_id", id.String()).Info("console attached")

	if len(first.Data) > 0 {
		if _, err := conn.Write(first.Data); err != nil {
			return fmt.Errorf("writing initial console data for vm %s: %w", id, err)
		}
	}

	errCh := make(chan error, 2)

	go func() {
		errCh <- pipeGuestToClient(conn, stream, id.String())
	}()

	go func() {
		errCh <- pipeClientToGuest(stream, conn)
	}()

	err = <-errCh

	return err
}

func pipeGuestToClient(conn net.Conn, stream vmm.VmmService_ConsoleServer, vmID string) error {
	buf := make([]byte, consoleBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frame := &types.ConsoleFrame{VMID: vmID, Data: append([]byte(nil), buf[:n]...)}
			if sendErr := stream.Send(frame); sendErr != nil {
				return sendErr
			}
		}

		if err != nil {
			if err == io.EOF {
				return nil
			}

			return err
		}
	}
}

func pipeClientToGuest(stream vmm.VmmService_ConsoleServer, conn net.Conn) error {
	for {
		frame, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}

			return err
		}

		if len(frame.Data) == 0 {
			continue
		}

		if _, err := conn.Write(frame.Data); err != nil {
			return err
		}
	}
}

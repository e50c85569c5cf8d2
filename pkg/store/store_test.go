package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "mvirt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func sampleVM(id string) *models.VM {
	return &models.VM{
		ID:    models.VMID(id),
		Name:  "test-vm",
		State: models.VMStateStopped,
		Config: models.VMConfig{
			VCPUs:    1,
			MemoryMB: 512,
			Kernel:   "/boot/vmlinux",
			Disks:    []models.DiskConfig{{Path: "/disks/root.img"}},
		},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestUpsertAndGetVM(t *testing.T) {
	s := openTestStore(t)

	vm := sampleVM("vm-1")
	require.NoError(t, s.UpsertVM(vm))

	got, err := s.GetVM(vm.ID)
	require.NoError(t, err)
	assert.Equal(t, vm.Name, got.Name)
	assert.Equal(t, vm.State, got.State)
	assert.Equal(t, vm.Config.Kernel, got.Config.Kernel)
}

func TestGetVMNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetVM(models.VMID("missing"))
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestSetStateCAS(t *testing.T) {
	s := openTestStore(t)

	vm := sampleVM("vm-1")
	require.NoError(t, s.UpsertVM(vm))

	require.NoError(t, s.SetState(vm.ID, models.VMStateStopped, models.VMStateStarting))

	got, err := s.GetVM(vm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateStarting, got.State)

	err = s.SetState(vm.ID, models.VMStateStopped, models.VMStateRunning)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))

	got, err = s.GetVM(vm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateStarting, got.State, "failed CAS must not mutate state")
}

func TestListVMs(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertVM(sampleVM("vm-1")))
	require.NoError(t, s.UpsertVM(sampleVM("vm-2")))

	vms, err := s.ListVMs()
	require.NoError(t, err)
	assert.Len(t, vms, 2)
}

func TestRuntimeLifecycle(t *testing.T) {
	s := openTestStore(t)

	rt := &models.VmRuntime{
		VMID:         models.VMID("vm-1"),
		PID:          1234,
		APISocket:    "/data/vm/vm-1/api.sock",
		SerialSocket: "/data/vm/vm-1/serial.sock",
		TapName:      "mvirt0",
	}
	require.NoError(t, s.InsertRuntime(rt))

	got, err := s.GetRuntime(rt.VMID)
	require.NoError(t, err)
	assert.Equal(t, rt.PID, got.PID)

	require.NoError(t, s.DeleteRuntime(rt.VMID))

	_, err = s.GetRuntime(rt.VMID)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

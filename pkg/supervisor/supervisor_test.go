package supervisor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/hypervisor/cloudhypervisor"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/network"
	"github.com/MalteJ/mvirt/pkg/store"
	"github.com/MalteJ/mvirt/pkg/supervisor"
)

func newTestSupervisor(t *testing.T) (*supervisor.Supervisor, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "mvirt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs := afero.NewMemMapFs()
	taps := network.NewAllocator("mvirt-test0")
	driver := cloudhypervisor.New("/bin/false", fs)

	sv := supervisor.New(st, taps, driver, fs, t.TempDir(), logrus.NewEntry(logrus.New()))

	return sv, st
}

func sampleVM(id models.VMID, state models.VMState) *models.VM {
	return &models.VM{
		ID:    id,
		Name:  "test-vm",
		State: state,
		Config: models.VMConfig{
			VCPUs:    1,
			MemoryMB: 256,
			Kernel:   "/boot/vmlinux",
		},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestStartRejectsVMNotInStoppedState(t *testing.T) {
	sv, st := newTestSupervisor(t)

	vm := sampleVM("vm-1", models.VMStateRunning)
	require.NoError(t, st.UpsertVM(vm))

	err := sv.Start(context.Background(), vm.ID)
	require.Error(t, err)
	assert.Equal(t, errors.KindFailedPrecondition, errors.KindOf(err))
}

func TestStopRejectsAlreadyStoppedVM(t *testing.T) {
	sv, st := newTestSupervisor(t)

	vm := sampleVM("vm-1", models.VMStateStopped)
	require.NoError(t, st.UpsertVM(vm))

	err := sv.Stop(context.Background(), vm.ID, time.Second)
	require.Error(t, err)
	assert.Equal(t, errors.KindFailedPrecondition, errors.KindOf(err))
}

func TestKillOnStoppedVMIsNoop(t *testing.T) {
	sv, st := newTestSupervisor(t)

	vm := sampleVM("vm-1", models.VMStateStopped)
	require.NoError(t, st.UpsertVM(vm))

	require.NoError(t, sv.Kill(context.Background(), vm.ID))

	got, err := st.GetVM(vm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VMStateStopped, got.State)
}

func TestDeleteRejectsRunningVM(t *testing.T) {
	sv, st := newTestSupervisor(t)

	vm := sampleVM("vm-1", models.VMStateRunning)
	require.NoError(t, st.UpsertVM(vm))

	err := sv.Delete(context.Background(), vm.ID)
	require.Error(t, err)
	assert.Equal(t, errors.KindFailedPrecondition, errors.KindOf(err))
}

func TestDeleteRemovesStoppedVM(t *testing.T) {
	sv, st := newTestSupervisor(t)

	vm := sampleVM("vm-1", models.VMStateStopped)
	require.NoError(t, st.UpsertVM(vm))

	require.NoError(t, sv.Delete(context.Background(), vm.ID))

	_, err := st.GetVM(vm.ID)
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

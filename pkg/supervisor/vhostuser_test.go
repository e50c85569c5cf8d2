package supervisor

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/hypervisor/cloudhypervisor"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/network"
	"github.com/MalteJ/mvirt/pkg/store"
)

func newVhostTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "mvirt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	taps := network.NewAllocator("mvirt-test0")
	driver := cloudhypervisor.New("/bin/false", afero.NewOsFs())

	return New(st, taps, driver, afero.NewOsFs(), t.TempDir(), logrus.NewEntry(logrus.New()))
}

func TestStartVhostUserBackendsOpensOneSocketPerNic(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	root := t.TempDir()
	st := cloudhypervisor.NewState("vm-1", root, afero.NewOsFs())
	require.NoError(t, afero.NewOsFs().MkdirAll(st.Root(), 0o755))

	nics := []models.NicConfig{{NicID: "nic-a"}, {NicID: "nic-b"}}

	sv.startVhostUserBackends("vm-1", st, nics, sv.log)

	sv.vhostMu.Lock()
	set, ok := sv.vhostSets["vm-1"]
	sv.vhostMu.Unlock()
	require.True(t, ok)
	require.Len(t, set.listeners, 2)

	for _, nic := range nics {
		path := filepath.Join(root, "vm", "vm-1", "vhost-"+nic.NicID+".sock")
		conn, err := net.DialTimeout("unix", path, time.Second)
		require.NoError(t, err, "dialing %s", path)
		conn.Close()
	}

	sv.stopVhostUserBackends("vm-1")

	sv.vhostMu.Lock()
	_, stillThere := sv.vhostSets["vm-1"]
	sv.vhostMu.Unlock()
	assert.False(t, stillThere)

	for _, nic := range nics {
		path := filepath.Join(root, "vm", "vm-1", "vhost-"+nic.NicID+".sock")
		_, err := net.DialTimeout("unix", path, time.Second)
		assert.Error(t, err, "socket %s should be removed after stop", path)
	}
}

func TestStartVhostUserBackendsNoopWithoutNics(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	root := t.TempDir()
	st := cloudhypervisor.NewState("vm-2", root, afero.NewOsFs())

	sv.startVhostUserBackends("vm-2", st, nil, sv.log)

	sv.vhostMu.Lock()
	_, ok := sv.vhostSets["vm-2"]
	sv.vhostMu.Unlock()
	assert.False(t, ok)
}

func TestStopVhostUserBackendsOnUnknownVMIsNoop(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	assert.NotPanics(t, func() { sv.stopVhostUserBackends("never-started") })
}

func TestApplySecurityGroupsNoopWithoutResolver(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	nics := []models.NicConfig{{NicID: "nic-a"}}
	assert.NotPanics(t, func() { sv.applySecurityGroups("vm-1", "mvirt-test0", nics, sv.log) })
}

func TestApplySecurityGroupsNoopWithoutNics(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	resolver := &fakeResolver{}
	sv.SetSecurityGroupResolver(resolver)

	// No NICs configured: the resolver must never be consulted and no
	// iptables chain gets touched.
	sv.applySecurityGroups("vm-1", "mvirt-test0", nil, sv.log)
	assert.Empty(t, resolver.calls)
}

// fakeResolver lets TestApplySecurityGroupsNoopWithoutNics assert the
// resolver is skipped without exercising network.ApplyRules's real
// iptables calls, which the supervisor's own test suite never invokes.
type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) EffectiveRules(nicID string) []*models.SecurityGroupRule {
	f.calls = append(f.calls, nicID)
	return nil
}

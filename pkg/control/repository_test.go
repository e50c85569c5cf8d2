package control_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/control"
	"github.com/MalteJ/mvirt/pkg/errors"
	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/watch"
)

func TestNetworkCreateGetDelete(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	n, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n.Version)

	got, err := repo.GetNetwork("net-1")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)

	_, err = repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "dup"})
	require.Error(t, err)
	assert.Equal(t, errors.KindAlreadyExists, errors.KindOf(err))

	require.NoError(t, repo.DeleteNetwork(ctx, "net-1"))

	_, err = repo.GetNetwork("net-1")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestNetworkUpdateOCC(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	n, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)

	stale := uint64(999)
	_, err = repo.UpdateNetwork(ctx, &models.Network{ID: "net-1", Name: "renamed"}, &stale)
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))

	_, err = repo.UpdateNetwork(ctx, &models.Network{ID: "net-1", Name: "renamed"}, &n.Version)
	require.NoError(t, err)

	got, err := repo.GetNetwork("net-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, uint64(2), got.Version)
}

func TestNetworkDeleteWithAttachedNicFails(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	_, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)

	_, err = repo.CreateNic(ctx, &models.NIC{ID: "nic-1", NetworkID: "net-1", MAC: "02:00:00:00:00:02"})
	require.NoError(t, err)

	err = repo.DeleteNetwork(ctx, "net-1")
	require.Error(t, err)
	assert.Equal(t, errors.KindFailedPrecondition, errors.KindOf(err))
}

func TestNicDuplicateMacOnSameNetworkRejected(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	_, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)

	_, err = repo.CreateNic(ctx, &models.NIC{ID: "nic-1", NetworkID: "net-1", MAC: "02:00:00:00:00:02"})
	require.NoError(t, err)

	_, err = repo.CreateNic(ctx, &models.NIC{ID: "nic-2", NetworkID: "net-1", MAC: "02:00:00:00:00:02"})
	require.Error(t, err)
	assert.Equal(t, errors.KindAlreadyExists, errors.KindOf(err))
}

func TestSecurityGroupBindingLifecycle(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	_, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)

	_, err = repo.CreateNic(ctx, &models.NIC{ID: "nic-1", NetworkID: "net-1", MAC: "02:00:00:00:00:02"})
	require.NoError(t, err)

	_, err = repo.CreateSecurityGroup(ctx, &models.SecurityGroup{ID: "sg-1", Name: "web"})
	require.NoError(t, err)

	require.NoError(t, repo.BindNicSecurityGroup(ctx, &models.NicSecurityGroupBinding{NicID: "nic-1", SGID: "sg-1"}))

	sgs := repo.ListSecurityGroupsForNic("nic-1")
	require.Len(t, sgs, 1)
	assert.Equal(t, "sg-1", sgs[0].ID)

	require.NoError(t, repo.UnbindNicSecurityGroup(ctx, &models.NicSecurityGroupBinding{NicID: "nic-1", SGID: "sg-1"}))
	assert.Empty(t, repo.ListSecurityGroupsForNic("nic-1"))
}

func TestDeleteSecurityGroupCascadesBindingsAndRules(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx := context.Background()

	_, err := repo.CreateNetwork(ctx, &models.Network{ID: "net-1", Name: "default"})
	require.NoError(t, err)

	_, err = repo.CreateNic(ctx, &models.NIC{ID: "nic-1", NetworkID: "net-1", MAC: "02:00:00:00:00:02"})
	require.NoError(t, err)

	_, err = repo.CreateSecurityGroup(ctx, &models.SecurityGroup{ID: "sg-1", Name: "web"})
	require.NoError(t, err)

	_, err = repo.CreateSecurityGroupRule(ctx, &models.SecurityGroupRule{ID: "rule-1", SGID: "sg-1", Direction: models.DirectionIngress, Protocol: models.ProtocolTCP})
	require.NoError(t, err)

	require.NoError(t, repo.BindNicSecurityGroup(ctx, &models.NicSecurityGroupBinding{NicID: "nic-1", SGID: "sg-1"}))

	require.NoError(t, repo.DeleteSecurityGroup(ctx, "sg-1"))

	assert.Empty(t, repo.ListSecurityGroupRules("sg-1"))
	assert.Empty(t, repo.ListSecurityGroupsForNic("nic-1"))
}

func TestWatchReceivesEvents(t *testing.T) {
	repo := control.NewMemoryRepository(watch.NewBus(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := repo.Watch(ctx)
	defer sub.Close()

	_, err := repo.CreateProject(context.Background(), &models.Project{ID: "proj1", Name: "demo"})
	require.NoError(t, err)

	ev := <-sub.C
	assert.Equal(t, models.EntityKindProject, ev.EntityKind)
	assert.Equal(t, models.EventCreated, ev.Kind)
}

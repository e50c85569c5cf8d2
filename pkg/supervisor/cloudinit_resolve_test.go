package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/models"
)

type fakeNicResolver struct {
	nics map[string]*models.NIC
}

func (f *fakeNicResolver) GetNic(nicID string) (*models.NIC, error) {
	n, ok := f.nics[nicID]
	if !ok {
		return nil, assert.AnError
	}

	return n, nil
}

func TestResolveCloudInitConfigNilWithoutCloudInit(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	cfg, err := sv.resolveCloudInitConfig(models.VMConfig{Nics: []models.NicConfig{{NicID: "nic-a"}}})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestResolveCloudInitConfigLeavesExplicitNetworkConfigAlone(t *testing.T) {
	sv := newVhostTestSupervisor(t)
	sv.SetNicResolver(&fakeNicResolver{})

	ci := &models.CloudInitConfig{UserData: "x", NetworkConfig: "already-set"}
	cfg, err := sv.resolveCloudInitConfig(models.VMConfig{CloudInit: ci, Nics: []models.NicConfig{{NicID: "nic-a"}}})
	require.NoError(t, err)
	assert.Equal(t, "already-set", cfg.NetworkConfig)
}

func TestResolveCloudInitConfigGeneratesNetworkConfigFromNics(t *testing.T) {
	sv := newVhostTestSupervisor(t)
	sv.SetNicResolver(&fakeNicResolver{nics: map[string]*models.NIC{
		"nic-a": {ID: "nic-a", MAC: "52:54:00:00:00:01"},
	}})

	ci := &models.CloudInitConfig{UserData: "x"}
	cfg, err := sv.resolveCloudInitConfig(models.VMConfig{CloudInit: ci, Nics: []models.NicConfig{{NicID: "nic-a"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.NetworkConfig)
	assert.Contains(t, cfg.NetworkConfig, "52:54:00:00:00:01")
	assert.Empty(t, ci.NetworkConfig, "original config must not be mutated")
}

func TestResolveCloudInitConfigNoopWithoutResolver(t *testing.T) {
	sv := newVhostTestSupervisor(t)

	ci := &models.CloudInitConfig{UserData: "x"}
	cfg, err := sv.resolveCloudInitConfig(models.VMConfig{CloudInit: ci, Nics: []models.NicConfig{{NicID: "nic-a"}}})
	require.NoError(t, err)
	assert.Empty(t, cfg.NetworkConfig)
}

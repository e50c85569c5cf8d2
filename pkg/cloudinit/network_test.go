package cloudinit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/MalteJ/mvirt/pkg/cloudinit"
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

func TestGenerateNetworkConfigEmptyWithoutNics(t *testing.T) {
	out, err := cloudinit.GenerateNetworkConfig(&fakeNicResolver{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerateNetworkConfigMatchesEachNicByMAC(t *testing.T) {
	resolver := &fakeNicResolver{nics: map[string]*models.NIC{
		"nic-1": {ID: "nic-1", MAC: "52:54:00:00:00:01"},
		"nic-2": {ID: "nic-2", MAC: "52:54:00:00:00:02"},
	}}

	out, err := cloudinit.GenerateNetworkConfig(resolver, []models.NicConfig{
		{NicID: "nic-1"},
		{NicID: "nic-2"},
	})
	require.NoError(t, err)

	var doc struct {
		Version  int `yaml:"version"`
		Ethernet map[string]struct {
			Match struct {
				MACAddress string `yaml:"macaddress"`
			} `yaml:"match"`
			DHCP4          bool   `yaml:"dhcp4"`
			DHCP6          bool   `yaml:"dhcp6"`
			DHCPIdentifier string `yaml:"dhcp-identifier"`
		} `yaml:"ethernets"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	assert.Equal(t, 2, doc.Version)
	require.Len(t, doc.Ethernet, 2)
	assert.Equal(t, "52:54:00:00:00:01", doc.Ethernet["eth0"].Match.MACAddress)
	assert.True(t, doc.Ethernet["eth0"].DHCP4)
	assert.True(t, doc.Ethernet["eth0"].DHCP6)
	assert.Equal(t, "mac", doc.Ethernet["eth0"].DHCPIdentifier)
	assert.Equal(t, "52:54:00:00:00:02", doc.Ethernet["eth1"].Match.MACAddress)
}

func TestGenerateNetworkConfigPropagatesResolverError(t *testing.T) {
	_, err := cloudinit.GenerateNetworkConfig(&fakeNicResolver{}, []models.NicConfig{{NicID: "missing"}})
	assert.Error(t, err)
}

package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/MalteJ/mvirt/pkg/models"
)

const netplanVersion = 2

// dhcpIdentifierMAC is netplan's "use the MAC, not a generated client-id"
// DHCP identifier, used because the guest's NIC is matched by MAC below.
const dhcpIdentifierMAC = "mac"

// netplanConfig is the subset of netplan's network-config schema mvirt
// renders: one DHCP-only ethernet entry per NIC, matched by MAC address.
// mvirt never emits a static-address entry: the guest obtains its IPv4 over
// DHCP rather than from the image.
type netplanConfig struct {
	Version  int                        `yaml:"version"`
	Ethernet map[string]netplanEthernet `yaml:"ethernets"`
}

type netplanEthernet struct {
	Match          netplanMatch `yaml:"match"`
	DHCP4          *bool        `yaml:"dhcp4,omitempty"`
	DHCP6          *bool        `yaml:"dhcp6,omitempty"`
	DHCPIdentifier *string      `yaml:"dhcp-identifier,omitempty"`
}

type netplanMatch struct {
	MACAddress string `yaml:"macaddress,omitempty"`
	Name       string `yaml:"name,omitempty"`
}

// NicResolver resolves a replicated NIC id to its attributes, so
// GenerateNetworkConfig can look up each configured NIC's MAC address.
// pkg/control.RaftRepository implements it.
type NicResolver interface {
	GetNic(nicID string) (*models.NIC, error)
}

// GenerateNetworkConfig renders the cloud-init network-config document for
// a VM's configured NICs: a netplan document matching each guest interface
// by MAC and requesting DHCPv4/DHCPv6, mirroring the NIC's MAC as assigned
// by the replicated control plane. Returns "" if nics is empty — the VM
// boots with no network-config and the guest's own defaults apply.
func GenerateNetworkConfig(resolver NicResolver, nics []models.NicConfig) (string, error) {
	if len(nics) == 0 {
		return "", nil
	}

	netConf := &netplanConfig{
		Version:  netplanVersion,
		Ethernet: make(map[string]netplanEthernet, len(nics)),
	}

	for i, nic := range nics {
		n, err := resolver.GetNic(nic.NicID)
		if err != nil {
			return "", fmt.Errorf("resolving nic %s for network-config: %w", nic.NicID, err)
		}

		netConf.Ethernet[fmt.Sprintf("eth%d", i)] = netplanEthernet{
			Match:          netplanMatch{MACAddress: n.MAC},
			DHCP4:          boolPtr(true),
			DHCP6:          boolPtr(true),
			DHCPIdentifier: stringPtr(dhcpIdentifierMAC),
		}
	}

	out, err := yaml.Marshal(netConf)
	if err != nil {
		return "", fmt.Errorf("marshalling network-config: %w", err)
	}

	return string(out), nil
}

func boolPtr(b bool) *bool {
	return &b
}

func stringPtr(s string) *string {
	return &s
}

package netstack

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDiscoverFrame(t *testing.T, clientMAC net.HardwareAddr) []byte {
	t.Helper()

	discover, err := dhcpv4.NewDiscovery(clientMAC)
	require.NoError(t, err)

	eth := layers.Ethernet{
		SrcMAC:       clientMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}

	ip4 := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4zero,
		DstIP:    net.IPv4bcast,
	}

	udp := layers.UDP{SrcPort: dhcpClientPort, DstPort: dhcpServerPort}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip4))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip4, &udp, gopacket.Payload(discover.ToBytes())))

	return buf.Bytes()
}

func TestDHCPResponderAnswersDiscoverWithOffer(t *testing.T) {
	inj := &fakeInjector{}
	assigned := net.IPv4(169, 254, 3, 7)
	r := NewDHCPResponder(inj, assigned)

	clientMAC := net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	require.NoError(t, r.HandleFrame(buildDiscoverFrame(t, clientMAC)))
	require.Len(t, inj.frames, 1)

	payload, _, ok := dhcpUDPPayload(inj.frames[0])
	require.True(t, ok)

	reply, err := dhcpv4.FromBytes(payload)
	require.NoError(t, err)

	assert.Equal(t, dhcpv4.MessageTypeOffer, reply.MessageType())
	assert.True(t, reply.YourIPAddr.Equal(assigned))
	assert.True(t, reply.Router()[0].Equal(GatewayIP))
}

func TestDHCPResponderIgnoresNonDHCPUDP(t *testing.T) {
	inj := &fakeInjector{}
	r := NewDHCPResponder(inj, net.IPv4(169, 254, 3, 7))

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 9},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: net.IPv4zero, DstIP: net.IPv4bcast}
	udp := layers.UDP{SrcPort: 9999, DstPort: 9999}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip4))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip4, &udp, gopacket.Payload([]byte("not dhcp"))))

	require.NoError(t, r.HandleFrame(buf.Bytes()))
	assert.Empty(t, inj.frames)
}

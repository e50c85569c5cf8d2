package netstack

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInjector struct {
	frames [][]byte
}

func (f *fakeInjector) InjectRX(frame []byte) error {
	f.frames = append(f.frames, frame)
	return nil
}

func buildARPRequest(t *testing.T, senderMAC net.HardwareAddr, senderIP, targetIP net.IP) []byte {
	t.Helper()

	eth := layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}

	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    targetIP.To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp))

	return buf.Bytes()
}

func TestARPResponderRepliesToGatewayRequest(t *testing.T) {
	inj := &fakeInjector{}
	r := NewARPResponder(inj)

	senderMAC := net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	senderIP := net.IPv4(169, 254, 1, 2)

	req := buildARPRequest(t, senderMAC, senderIP, GatewayIP)
	require.NoError(t, r.HandleFrame(req))
	require.Len(t, inj.frames, 1)

	var eth layers.Ethernet
	var arp layers.ARP
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp)
	decoded := make([]gopacket.LayerType, 0, 2)
	require.NoError(t, parser.DecodeLayers(inj.frames[0], &decoded))

	assert.Equal(t, GatewayMAC, eth.SrcMAC)
	assert.Equal(t, layers.ARPReply, arp.Operation)
	assert.True(t, net.IP(arp.SourceProtAddress).Equal(GatewayIP))
	assert.True(t, net.IP(arp.DstProtAddress).Equal(senderIP))
	assert.Equal(t, senderMAC, net.HardwareAddr(arp.DstHwAddress))
}

func TestARPResponderIgnoresRequestsForOtherTargets(t *testing.T) {
	inj := &fakeInjector{}
	r := NewARPResponder(inj)

	senderMAC := net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}
	req := buildARPRequest(t, senderMAC, net.IPv4(169, 254, 1, 2), net.IPv4(169, 254, 1, 3))

	require.NoError(t, r.HandleFrame(req))
	assert.Empty(t, inj.frames)
}

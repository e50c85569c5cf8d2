// Package netstack implements the stateless ARP and DHCPv4 responders
// attached to a NIC's vhost-user RX path: a synthetic gateway answers
// both protocols out of fixed constants, with no real L2/L3 stack behind
// it.
package netstack

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Fixed gateway identity every NIC's synthetic L2 segment presents.
var (
	GatewayMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	GatewayIP  = net.IPv4(169, 254, 0, 1).To4()
)

// RXInjector enqueues a built frame onto a NIC's RX vring.
type RXInjector interface {
	InjectRX(frame []byte) error
}

// ARPResponder replies to ARP requests targeting GatewayIP, injecting the
// reply back onto inj's RX queue.
type ARPResponder struct {
	inj RXInjector
}

// NewARPResponder returns a responder that injects replies via inj.
func NewARPResponder(inj RXInjector) *ARPResponder {
	return &ARPResponder{inj: inj}
}

// HandleFrame inspects a frame read off the TX queue and, if it is an ARP
// request for GatewayIP, builds and injects the reply. Any other frame is
// silently ignored; this responder never needs to see non-ARP traffic.
func (r *ARPResponder) HandleFrame(frame []byte) error {
	var eth layers.Ethernet
	var arp layers.ARP

	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp)
	decoded := make([]gopacket.LayerType, 0, 2)

	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		return nil //nolint:nilerr // not every frame decodes as eth+arp, that's expected
	}

	if !containsLayer(decoded, layers.LayerTypeARP) {
		return nil
	}

	if arp.Operation != layers.ARPRequest {
		return nil
	}

	if !net.IP(arp.DstProtAddress).Equal(GatewayIP) {
		return nil
	}

	reply, err := buildARPReply(arp.SourceHwAddress, net.IP(arp.SourceProtAddress))
	if err != nil {
		return err
	}

	return r.inj.InjectRX(reply)
}

func containsLayer(decoded []gopacket.LayerType, want gopacket.LayerType) bool {
	for _, l := range decoded {
		if l == want {
			return true
		}
	}

	return false
}

func buildARPReply(targetMAC net.HardwareAddr, targetIP net.IP) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       GatewayMAC,
		DstMAC:       net.HardwareAddr(targetMAC),
		EthernetType: layers.EthernetTypeARP,
	}

	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   GatewayMAC,
		SourceProtAddress: GatewayIP,
		DstHwAddress:      targetMAC,
		DstProtAddress:    targetIP.To4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

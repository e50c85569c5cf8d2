package netstack

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Fixed lease parameters from spec §4.9: every NIC gets a /32, the
// synthetic gateway as router, and public DNS.
const (
	dhcpServerPort = 67
	dhcpClientPort = 68
	leaseSeconds   = 86400
)

var (
	fullMask   = net.IPv4Mask(255, 255, 255, 255)
	dnsServers = []net.IP{net.IPv4(1, 1, 1, 1), net.IPv4(8, 8, 8, 8)}
)

// DHCPResponder answers DISCOVER/REQUEST for one NIC's assigned IPv4 with
// OFFER/ACK, stateless: it never tracks leases beyond the fixed constants.
type DHCPResponder struct {
	inj          RXInjector
	assignedIPv4 net.IP
}

// NewDHCPResponder returns a responder offering assignedIPv4 and
// injecting replies via inj.
func NewDHCPResponder(inj RXInjector, assignedIPv4 net.IP) *DHCPResponder {
	return &DHCPResponder{inj: inj, assignedIPv4: assignedIPv4.To4()}
}

// HandleFrame inspects a frame read off the TX queue and, if it carries a
// DHCPv4 DISCOVER or REQUEST, injects the matching OFFER/ACK.
func (r *DHCPResponder) HandleFrame(frame []byte) error {
	payload, clientMAC, ok := dhcpUDPPayload(frame)
	if !ok {
		return nil
	}

	req, err := dhcpv4.FromBytes(payload)
	if err != nil {
		return nil //nolint:nilerr // not every UDP/67 datagram is a well-formed DHCP message
	}

	var mt dhcpv4.MessageType

	switch req.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		mt = dhcpv4.MessageTypeOffer
	case dhcpv4.MessageTypeRequest:
		mt = dhcpv4.MessageTypeAck
	default:
		return nil
	}

	reply, err := dhcpv4.NewReplyFromRequest(req,
		dhcpv4.WithMessageType(mt),
		dhcpv4.WithServerIP(GatewayIP),
		dhcpv4.WithYourIP(r.assignedIPv4),
		dhcpv4.WithNetmask(fullMask),
		dhcpv4.WithRouter(GatewayIP),
		dhcpv4.WithDNS(dnsServers...),
		dhcpv4.WithLeaseTime(leaseSeconds),
	)
	if err != nil {
		return fmt.Errorf("netstack: building dhcp reply: %w", err)
	}

	out, err := wrapEthernetIPUDP(clientMAC, reply.ToBytes())
	if err != nil {
		return err
	}

	return r.inj.InjectRX(out)
}

// dhcpUDPPayload extracts the UDP/67 payload and source MAC from an
// Ethernet+IPv4+UDP frame, or ok=false if frame isn't one.
func dhcpUDPPayload(frame []byte) (payload []byte, srcMAC net.HardwareAddr, ok bool) {
	var eth layers.Ethernet
	var ip4 layers.IPv4
	var udp layers.UDP

	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &udp)
	decoded := make([]gopacket.LayerType, 0, 3)

	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		return nil, nil, false
	}

	if !containsLayer(decoded, layers.LayerTypeUDP) {
		return nil, nil, false
	}

	if udp.DstPort != dhcpServerPort {
		return nil, nil, false
	}

	return udp.Payload, eth.SrcMAC, true
}

func wrapEthernetIPUDP(dstMAC net.HardwareAddr, payload []byte) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       GatewayMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	ip4 := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    GatewayIP,
		DstIP:    net.IPv4bcast,
	}

	udp := layers.UDP{SrcPort: dhcpServerPort, DstPort: dhcpClientPort}
	if err := udp.SetNetworkLayerForChecksum(&ip4); err != nil {
		return nil, fmt.Errorf("netstack: setting udp checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip4, &udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("netstack: serializing dhcp reply frame: %w", err)
	}

	return buf.Bytes(), nil
}

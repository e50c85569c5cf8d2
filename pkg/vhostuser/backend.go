package vhostuser

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// BackendState is a state of the vhost-user handshake/dataplane FSM.
type BackendState int

const (
	StateInit BackendState = iota
	StateFeaturesNegotiated
	StateMemoryMapped
	StateVringsConfigured
	StateRunning
	StateSuspended
)

func (s BackendState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateFeaturesNegotiated:
		return "FeaturesNegotiated"
	case StateMemoryMapped:
		return "MemoryMapped"
	case StateVringsConfigured:
		return "VringsConfigured"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// negotiable feature bits mvirt advertises. VIRTIO_F_VERSION_1 (bit 32) is
// required by split-ring virtio 1.x frontends; VHOST_USER_F_PROTOCOL_FEATURES
// (bit 30) gates the protocol-feature sub-negotiation.
const (
	featVersion1            = uint64(1) << 32
	featProtocolFeatures    = uint64(1) << 30
	protoFeatureReplyAck    = uint64(1) << 3
	numQueues               = 2
	queueRX       = 0
	queueTX       = 1
)

// RXInjector enqueues a built frame onto a NIC's RX vring. Implemented by
// Backend; the ARP/DHCP responders in pkg/vhostuser/netstack inject their
// replies through it.
type RXInjector interface {
	InjectRX(frame []byte) error
}

// Backend drives one NIC's vhost-user control socket plus its two split
// rings. One Backend per NIC, one event loop goroutine (see loop.go).
type Backend struct {
	nicID string
	conn  *net.UnixConn
	log   *logrus.Entry

	mu    sync.Mutex
	state BackendState

	features        uint64
	protocolFeatures uint64

	mem    *memoryMap
	rings  [numQueues]*vring

	onTXFrame func(frame []byte)
}

// NewBackend wraps an accepted vhost-user control connection for nicID.
func NewBackend(nicID string, conn *net.UnixConn, logger *logrus.Entry) *Backend {
	b := &Backend{
		nicID: nicID,
		conn:  conn,
		log:   logger.WithFields(logrus.Fields{"component": "vhostuser", "nic_id": nicID}),
		state: StateInit,
		mem:   newMemoryMap(),
	}

	b.rings[queueRX] = newVring(queueRX)
	b.rings[queueTX] = newVring(queueTX)

	return b
}

// State returns the backend's current handshake/dataplane state.
func (b *Backend) State() BackendState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Close tears the backend down: unmaps guest memory, closes queue eventfds
// and the control socket. The TAP device itself is released by the
// supervisor, not here.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mem.unmapAll()

	for _, r := range b.rings {
		closeFD(r.callFD)
		closeFD(r.kickFD)
	}

	return b.conn.Close()
}

func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// handleMessage dispatches one received control message, returning the
// reply payload to send back (nil if the message needs no reply) or a
// protocol error for anything outside the handled message set.
func (b *Backend) handleMessage(h header, payload []byte, fds []int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch h.request {
	case msgGetFeatures:
		return encodeU64(featVersion1 | featProtocolFeatures), nil

	case msgSetFeatures:
		f, err := decodeU64(payload)
		if err != nil {
			return nil, err
		}

		b.features = f
		if b.state == StateInit {
			b.state = StateFeaturesNegotiated
		}

		return nil, nil

	case msgGetProtocolFeatures:
		return encodeU64(protoFeatureReplyAck), nil

	case msgSetProtocolFeatures:
		f, err := decodeU64(payload)
		if err != nil {
			return nil, err
		}

		b.protocolFeatures = f

		return nil, nil

	case msgSetOwner:
		return nil, nil

	case msgSetMemTable:
		descs, err := decodeMemTable(payload)
		if err != nil {
			return nil, err
		}

		if err := b.mem.mapRegions(descs, fds); err != nil {
			return nil, err
		}

		b.state = StateMemoryMapped

		return nil, nil

	case msgSetVringNum:
		vs, err := decodeVringState(payload)
		if err != nil {
			return nil, err
		}

		r, err := b.ring(vs.index)
		if err != nil {
			return nil, err
		}

		r.num = vs.num

		return nil, nil

	case msgSetVringAddr:
		addr, err := decodeVringAddr(payload)
		if err != nil {
			return nil, err
		}

		r, err := b.ring(addr.index)
		if err != nil {
			return nil, err
		}

		if err := r.bind(b.mem, addr, r.num); err != nil {
			return nil, err
		}

		if b.allRingsBound() {
			b.state = StateVringsConfigured
		}

		return nil, nil

	case msgSetVringBase:
		vs, err := decodeVringState(payload)
		if err != nil {
			return nil, err
		}

		r, err := b.ring(vs.index)
		if err != nil {
			return nil, err
		}

		r.lastAvailIdx = uint16(vs.num)

		return nil, nil

	case msgGetVringBase:
		vs, err := decodeVringState(payload)
		if err != nil {
			return nil, err
		}

		r, err := b.ring(vs.index)
		if err != nil {
			return nil, err
		}

		return vringState{index: vs.index, num: uint32(r.lastAvailIdx)}.encode(), nil

	case msgSetVringKick:
		return nil, b.bindRingFD(payload, fds, func(r *vring, fd int) { r.kickFD = fd })

	case msgSetVringCall:
		return nil, b.bindRingFD(payload, fds, func(r *vring, fd int) { r.callFD = fd })

	case msgSetVringEnable:
		vs, err := decodeVringState(payload)
		if err != nil {
			return nil, err
		}

		r, err := b.ring(vs.index)
		if err != nil {
			return nil, err
		}

		r.enabled = vs.num != 0

		if b.anyRingEnabled() {
			b.state = StateRunning
		} else {
			b.state = StateSuspended
		}

		return nil, nil

	default:
		return nil, fmt.Errorf("vhostuser: unhandled message type %d", h.request)
	}
}

func (b *Backend) ring(index uint32) (*vring, error) {
	if index >= numQueues {
		return nil, fmt.Errorf("vhostuser: vring index %d out of range", index)
	}

	return b.rings[index], nil
}

func (b *Backend) allRingsBound() bool {
	for _, r := range b.rings {
		if r.descTable == nil {
			return false
		}
	}

	return true
}

func (b *Backend) anyRingEnabled() bool {
	for _, r := range b.rings {
		if r.enabled {
			return true
		}
	}

	return false
}

// bindRingFD stores fd (if one was passed) on the targeted ring. The low
// byte of the u64 payload is the vring index; bit 8 set means no fd
// accompanies the message (polling mode), which mvirt does not use.
func (b *Backend) bindRingFD(payload []byte, fds []int, set func(r *vring, fd int)) error {
	v, err := decodeU64(payload)
	if err != nil {
		return err
	}

	const noFDMask = uint64(1) << 8

	index := uint32(v & 0xff)

	r, err := b.ring(index)
	if err != nil {
		return err
	}

	if v&noFDMask != 0 {
		return fmt.Errorf("vhostuser: vring %d kick/call without an fd is not supported", index)
	}

	if len(fds) == 0 {
		return fmt.Errorf("vhostuser: vring %d kick/call message carried no fd", index)
	}

	set(r, fds[0])

	return nil
}

// processTX drains available TX descriptors, handing each assembled frame
// to onTXFrame when it is set and acknowledging them on the used ring.
// Nothing in this tree sets onTXFrame, so drained frames are acknowledged
// and otherwise discarded: they reach neither the responders nor a TAP.
func (b *Backend) processTX() {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.rings[queueTX]
	if r.descTable == nil || !r.enabled {
		return
	}

	for {
		head, ok := r.popAvail()
		if !ok {
			return
		}

		chain, err := r.descChain(head)
		if err != nil {
			b.log.WithError(err).Warn("dropping malformed tx descriptor chain")
			r.pushUsed(head, 0)

			continue
		}

		frame, n := b.readChain(chain)
		r.pushUsed(head, n)

		if b.onTXFrame != nil && len(frame) > 0 {
			b.onTXFrame(frame)
		}
	}
}

func (b *Backend) readChain(chain []descriptor) ([]byte, uint32) {
	var frame []byte

	for _, d := range chain {
		if d.flags&descFlagWrite != 0 {
			continue // writable descriptors belong to the RX direction
		}

		buf, err := b.mem.translate(d.addr, uint64(d.len))
		if err != nil {
			b.log.WithError(err).Warn("tx descriptor out of bounds")

			continue
		}

		frame = append(frame, buf...)
	}

	return frame, uint32(len(frame))
}

// InjectRX writes frame into the next available RX descriptor chain and
// notifies the guest via the RX queue's call eventfd.
func (b *Backend) InjectRX(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.rings[queueRX]
	if r.descTable == nil || !r.enabled {
		return fmt.Errorf("vhostuser: rx queue not ready")
	}

	head, ok := r.popAvail()
	if !ok {
		return fmt.Errorf("vhostuser: no rx descriptor available")
	}

	chain, err := r.descChain(head)
	if err != nil {
		return err
	}

	written := 0

	for _, d := range chain {
		if d.flags&descFlagWrite == 0 {
			continue
		}

		n := len(frame) - written
		if n <= 0 {
			break
		}

		if n > int(d.len) {
			n = int(d.len)
		}

		buf, err := b.mem.translate(d.addr, uint64(d.len))
		if err != nil {
			return err
		}

		copy(buf, frame[written:written+n])
		written += n
	}

	if written < len(frame) {
		return fmt.Errorf("vhostuser: rx descriptor chain too short for %d byte frame (wrote %d)", len(frame), written)
	}

	r.pushUsed(head, uint32(written))
	b.notify(r)

	return nil
}

func (b *Backend) notify(r *vring) {
	if r.callFD < 0 {
		return
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)

	if _, err := unix.Write(r.callFD, buf[:]); err != nil {
		b.log.WithError(err).Warn("writing call eventfd failed")
	}
}

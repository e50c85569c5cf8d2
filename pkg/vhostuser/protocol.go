// Package vhostuser implements the vhost-user backend role: the control
// plane and split-ring dataplane a VM's virtio-net frontend connects to
// over a per-NIC AF_UNIX socket.
package vhostuser

import (
	"encoding/binary"
	"fmt"
)

// messageType identifies a vhost-user control message.
type messageType uint32

// Message types mvirt answers. Numbering matches the upstream vhost-user
// protocol so unmodified virtio-net frontends (cloud-hypervisor, QEMU)
// interoperate without change.
const (
	msgGetFeatures         messageType = 1
	msgSetFeatures         messageType = 2
	msgSetOwner            messageType = 3
	msgSetMemTable         messageType = 5
	msgSetVringNum         messageType = 8
	msgSetVringAddr        messageType = 9
	msgSetVringBase        messageType = 10
	msgGetVringBase        messageType = 11
	msgSetVringKick        messageType = 12
	msgSetVringCall        messageType = 13
	msgGetProtocolFeatures messageType = 15
	msgSetProtocolFeatures messageType = 16
	msgSetVringEnable      messageType = 18
)

const (
	// headerSize is the fixed size of a vhost-user message header: 4 bytes
	// request type, 4 bytes flags, 4 bytes payload size.
	headerSize = 12

	// vhostUserVersion is the protocol version carried in the low two bits
	// of the flags field.
	vhostUserVersion = 0x1
	flagVersionMask  = 0x3
	flagReply        = 0x4
)

// header is the 12-byte frame every vhost-user message starts with.
type header struct {
	request messageType
	flags   uint32
	size    uint32
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("vhostuser: short header, got %d bytes want %d", len(buf), headerSize)
	}

	return header{
		request: messageType(binary.LittleEndian.Uint32(buf[0:4])),
		flags:   binary.LittleEndian.Uint32(buf[4:8]),
		size:    binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.request))
	binary.LittleEndian.PutUint32(buf[4:8], h.flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.size)

	return buf
}

func replyHeader(request messageType, payloadSize int) header {
	return header{
		request: request,
		flags:   vhostUserVersion | flagReply,
		size:    uint32(payloadSize),
	}
}

// vringState is the payload shape shared by SET_VRING_NUM/BASE and
// GET_VRING_BASE (index + a single uint32 value).
type vringState struct {
	index uint32
	num   uint32
}

func decodeVringState(buf []byte) (vringState, error) {
	if len(buf) < 8 {
		return vringState{}, fmt.Errorf("vhostuser: short vring_state payload, got %d bytes", len(buf))
	}

	return vringState{
		index: binary.LittleEndian.Uint32(buf[0:4]),
		num:   binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

func (v vringState) encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], v.index)
	binary.LittleEndian.PutUint32(buf[4:8], v.num)

	return buf
}

// vringAddr is the SET_VRING_ADDR payload: guest-virtual addresses of the
// three split-ring tables for one queue.
type vringAddr struct {
	index       uint32
	flags       uint32
	descUser    uint64
	usedUser    uint64
	availUser   uint64
	logGuest    uint64
}

func decodeVringAddr(buf []byte) (vringAddr, error) {
	const want = 4 + 4 + 8 + 8 + 8 + 8
	if len(buf) < want {
		return vringAddr{}, fmt.Errorf("vhostuser: short vring_addr payload, got %d bytes want %d", len(buf), want)
	}

	return vringAddr{
		index:     binary.LittleEndian.Uint32(buf[0:4]),
		flags:     binary.LittleEndian.Uint32(buf[4:8]),
		descUser:  binary.LittleEndian.Uint64(buf[8:16]),
		usedUser:  binary.LittleEndian.Uint64(buf[16:24]),
		availUser: binary.LittleEndian.Uint64(buf[24:32]),
		logGuest:  binary.LittleEndian.Uint64(buf[32:40]),
	}, nil
}

// memoryRegionDescriptor is one entry of a SET_MEM_TABLE payload, paired by
// index with an fd received out-of-band via SCM_RIGHTS.
type memoryRegionDescriptor struct {
	guestAddr uint64
	size      uint64
	userAddr  uint64
	mmapOffset uint64
}

func decodeMemTable(buf []byte) ([]memoryRegionDescriptor, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("vhostuser: short mem_table payload, got %d bytes", len(buf))
	}

	count := binary.LittleEndian.Uint32(buf[0:4])
	const regionSize = 32
	want := 8 + int(count)*regionSize

	if len(buf) < want {
		return nil, fmt.Errorf("vhostuser: mem_table declares %d regions but payload is %d bytes, want %d", count, len(buf), want)
	}

	regions := make([]memoryRegionDescriptor, count)

	for i := 0; i < int(count); i++ {
		off := 8 + i*regionSize
		regions[i] = memoryRegionDescriptor{
			guestAddr:  binary.LittleEndian.Uint64(buf[off : off+8]),
			size:       binary.LittleEndian.Uint64(buf[off+8 : off+16]),
			userAddr:   binary.LittleEndian.Uint64(buf[off+16 : off+24]),
			mmapOffset: binary.LittleEndian.Uint64(buf[off+24 : off+32]),
		}
	}

	return regions, nil
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)

	return buf
}

func decodeU64(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, fmt.Errorf("vhostuser: short u64 payload, got %d bytes", len(buf))
	}

	return binary.LittleEndian.Uint64(buf[0:8]), nil
}

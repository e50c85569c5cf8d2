package vhostuser

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Split virtio-ring layout constants (virtio 1.1 spec §2.7).
const (
	descSize = 16 // addr(8) + len(4) + flags(2) + next(2)

	descFlagNext  = 0x1
	descFlagWrite = 0x2

	usedElemSize = 8 // id(4) + len(4)
)

// descriptor is one entry of the descriptor table.
type descriptor struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

// vring is one split virtio ring (RX or TX) for a NIC.
type vring struct {
	index uint32
	num   uint32 // ring size, power of two

	descTable []byte // num * descSize bytes
	avail     []byte // 4 + num*2 + 2 bytes
	used      []byte // 4 + num*usedElemSize + 2 bytes

	lastAvailIdx uint16
	lastUsedIdx  uint16

	callFD int
	kickFD int
	enabled bool
}

func newVring(index uint32) *vring {
	return &vring{index: index, callFD: -1, kickFD: -1}
}

// bind resolves the guest-virtual addresses from SET_VRING_ADDR into host
// slices via mem, validating sizes against num.
func (v *vring) bind(mem *memoryMap, addr vringAddr, num uint32) error {
	if num == 0 || num&(num-1) != 0 {
		return fmt.Errorf("vhostuser: vring %d num %d is not a power of two", v.index, num)
	}

	v.num = num

	descTable, err := mem.translate(addr.descUser, uint64(num)*descSize)
	if err != nil {
		return fmt.Errorf("vhostuser: vring %d descriptor table: %w", v.index, err)
	}

	availLen := uint64(4 + num*2 + 2)

	avail, err := mem.translate(addr.availUser, availLen)
	if err != nil {
		return fmt.Errorf("vhostuser: vring %d avail ring: %w", v.index, err)
	}

	usedLen := uint64(4 + num*usedElemSize + 2)

	used, err := mem.translate(addr.usedUser, usedLen)
	if err != nil {
		return fmt.Errorf("vhostuser: vring %d used ring: %w", v.index, err)
	}

	v.descTable = descTable
	v.avail = avail
	v.used = used

	return nil
}

func (v *vring) availIdx() uint16 {
	return binary.LittleEndian.Uint16(v.avail[2:4])
}

func (v *vring) availRingEntry(i uint16) uint16 {
	off := 4 + (uint32(i)%v.num)*2

	return binary.LittleEndian.Uint16(v.avail[off : off+2])
}

func (v *vring) descriptor(idx uint16) descriptor {
	off := uint32(idx) * descSize

	return descriptor{
		addr:  binary.LittleEndian.Uint64(v.descTable[off : off+8]),
		len:   binary.LittleEndian.Uint32(v.descTable[off+8 : off+12]),
		flags: binary.LittleEndian.Uint16(v.descTable[off+12 : off+14]),
		next:  binary.LittleEndian.Uint16(v.descTable[off+14 : off+16]),
	}
}

// descChain walks a descriptor chain starting at head, following NEXT
// flags, bounded by num to reject cyclic chains from a hostile frontend.
func (v *vring) descChain(head uint16) ([]descriptor, error) {
	chain := make([]descriptor, 0, 4)
	idx := head

	for i := uint32(0); i < uint32(v.num); i++ {
		d := v.descriptor(idx)
		chain = append(chain, d)

		if d.flags&descFlagNext == 0 {
			return chain, nil
		}

		idx = d.next
	}

	return nil, fmt.Errorf("vhostuser: vring %d descriptor chain at head %d exceeds ring size %d, rejecting as cyclic", v.index, head, v.num)
}

// popAvail returns the next unconsumed avail-ring head, or false if the
// guest has not made one available.
func (v *vring) popAvail() (uint16, bool) {
	avail := v.availIdx()
	if v.lastAvailIdx == avail {
		return 0, false
	}

	head := v.availRingEntry(v.lastAvailIdx)
	v.lastAvailIdx++

	return head, true
}

// pushUsed records that descriptor chain headed at head consumed/filled
// length bytes and advances the used ring index. It returns nothing: callers
// decide on notification themselves (VRING_USED_F_NO_NOTIFY is not
// implemented; InjectRX always notifies).
func (v *vring) pushUsed(head uint16, length uint32) {
	off := 4 + (uint32(v.lastUsedIdx)%v.num)*usedElemSize
	binary.LittleEndian.PutUint32(v.used[off:off+4], uint32(head))
	binary.LittleEndian.PutUint32(v.used[off+4:off+8], length)

	v.lastUsedIdx++

	// The used element write above must be visible to the guest before it
	// observes the new idx. v.used[0:4] packs flags(2)+idx(2); an atomic
	// store of that word is the release barrier virtio requires on
	// weakly-ordered architectures (flags is left at 0, NO_NOTIFY unused).
	word := uint32(v.lastUsedIdx) << 16
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&v.used[0])), word)
}

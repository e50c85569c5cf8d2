package vhostuser

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// memoryRegion is one mmap'd guest memory region, indexed by guest
// physical address.
type memoryRegion struct {
	gpa  uint64
	size uint64
	data []byte // mmap'd view, length == size
}

func (r memoryRegion) contains(gpa, length uint64) bool {
	if length == 0 {
		return gpa >= r.gpa && gpa <= r.gpa+r.size
	}

	end := gpa + length
	if end < gpa {
		return false // overflow
	}

	return gpa >= r.gpa && end <= r.gpa+r.size
}

// memoryMap is the translation layer between guest physical addresses and
// host-mapped slices. It never trusts a descriptor's declared length
// without checking it against the regions actually mapped via
// SET_MEM_TABLE.
type memoryMap struct {
	regions []memoryRegion
}

func newMemoryMap() *memoryMap {
	return &memoryMap{}
}

// mapRegions mmaps fds (one per descriptor, received via SCM_RIGHTS,
// matched by position) and replaces the current mapping.
func (m *memoryMap) mapRegions(descs []memoryRegionDescriptor, fds []int) error {
	if len(descs) != len(fds) {
		return fmt.Errorf("vhostuser: got %d memory regions but %d fds", len(descs), len(fds))
	}

	m.unmapAll()

	regions := make([]memoryRegion, 0, len(descs))

	for i, d := range descs {
		if d.size == 0 {
			continue
		}

		data, err := unix.Mmap(fds[i], int64(d.mmapOffset), int(d.size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			for _, r := range regions {
				_ = unix.Munmap(r.data)
			}

			return fmt.Errorf("vhostuser: mmap region %d (gpa=%#x size=%d): %w", i, d.guestAddr, d.size, err)
		}

		regions = append(regions, memoryRegion{gpa: d.guestAddr, size: d.size, data: data})
	}

	m.regions = regions

	return nil
}

func (m *memoryMap) unmapAll() {
	for _, r := range m.regions {
		_ = unix.Munmap(r.data)
	}

	m.regions = nil
}

// translate returns the host slice backing [gpa, gpa+length), or a typed
// error if the range is not entirely covered by one mapped region.
func (m *memoryMap) translate(gpa, length uint64) ([]byte, error) {
	for _, r := range m.regions {
		if !r.contains(gpa, length) {
			continue
		}

		off := gpa - r.gpa

		return r.data[off : off+length], nil
	}

	return nil, &OutOfBoundsError{GPA: gpa, Length: length}
}

// OutOfBoundsError is returned when a guest descriptor references memory
// outside every region mapped by SET_MEM_TABLE.
type OutOfBoundsError struct {
	GPA    uint64
	Length uint64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("vhostuser: gpa %#x length %d is not within any mapped memory region", e.GPA, e.Length)
}

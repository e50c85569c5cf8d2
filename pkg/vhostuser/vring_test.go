package vhostuser

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestVring builds a ring with num entries and in-memory descriptor/
// avail/used tables, bypassing bind/memoryMap for pure ring-logic tests.
func newTestVring(num uint32) *vring {
	v := newVring(queueTX)
	v.num = num
	v.descTable = make([]byte, num*descSize)
	v.avail = make([]byte, 4+num*2+2)
	v.used = make([]byte, 4+num*usedElemSize+2)

	return v
}

func (v *vring) setDescriptor(idx uint16, d descriptor) {
	off := uint32(idx) * descSize
	binary.LittleEndian.PutUint64(v.descTable[off:off+8], d.addr)
	binary.LittleEndian.PutUint32(v.descTable[off+8:off+12], d.len)
	binary.LittleEndian.PutUint16(v.descTable[off+12:off+14], d.flags)
	binary.LittleEndian.PutUint16(v.descTable[off+14:off+16], d.next)
}

func (v *vring) publishAvail(head uint16) {
	idx := v.availIdx()
	off := 4 + (uint32(idx)%v.num)*2
	binary.LittleEndian.PutUint16(v.avail[off:off+2], head)
	binary.LittleEndian.PutUint16(v.avail[2:4], idx+1)
}

func TestDescChainSingleEntry(t *testing.T) {
	v := newTestVring(4)
	v.setDescriptor(0, descriptor{addr: 0x1000, len: 64})

	chain, err := v.descChain(0)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, uint64(0x1000), chain[0].addr)
}

func TestDescChainFollowsNextFlag(t *testing.T) {
	v := newTestVring(4)
	v.setDescriptor(0, descriptor{addr: 0x1000, len: 64, flags: descFlagNext, next: 2})
	v.setDescriptor(2, descriptor{addr: 0x2000, len: 32})

	chain, err := v.descChain(0)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, uint64(0x2000), chain[1].addr)
}

func TestDescChainRejectsCycle(t *testing.T) {
	v := newTestVring(2)
	v.setDescriptor(0, descriptor{addr: 0x1000, len: 64, flags: descFlagNext, next: 1})
	v.setDescriptor(1, descriptor{addr: 0x2000, len: 64, flags: descFlagNext, next: 0})

	_, err := v.descChain(0)
	require.Error(t, err)
}

func TestPopAvailReturnsEachPublishedHeadOnce(t *testing.T) {
	v := newTestVring(4)
	v.publishAvail(3)

	head, ok := v.popAvail()
	require.True(t, ok)
	assert.Equal(t, uint16(3), head)

	_, ok = v.popAvail()
	assert.False(t, ok)
}

func TestPushUsedAdvancesIdx(t *testing.T) {
	v := newTestVring(4)

	v.pushUsed(5, 128)

	idx := binary.LittleEndian.Uint16(v.used[2:4])
	assert.Equal(t, uint16(1), idx)

	id := binary.LittleEndian.Uint32(v.used[4:8])
	length := binary.LittleEndian.Uint32(v.used[8:12])
	assert.Equal(t, uint32(5), id)
	assert.Equal(t, uint32(128), length)
}

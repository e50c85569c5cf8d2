package vhostuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMemoryMap() *memoryMap {
	data := make([]byte, 0x4000)

	return &memoryMap{regions: []memoryRegion{
		{gpa: 0x1000, size: uint64(len(data)), data: data},
	}}
}

func TestTranslateWithinRegion(t *testing.T) {
	m := testMemoryMap()

	buf, err := m.translate(0x1000, 16)
	require.NoError(t, err)
	assert.Len(t, buf, 16)
}

func TestTranslateRejectsOutOfBoundsLength(t *testing.T) {
	m := testMemoryMap()

	_, err := m.translate(0x1000, 0x5000)
	require.Error(t, err)

	var oobErr *OutOfBoundsError
	assert.ErrorAs(t, err, &oobErr)
}

func TestTranslateRejectsAddressBelowRegion(t *testing.T) {
	m := testMemoryMap()

	_, err := m.translate(0x100, 16)
	require.Error(t, err)
}

func TestTranslateRejectsIntegerOverflow(t *testing.T) {
	m := testMemoryMap()

	_, err := m.translate(0x1000, ^uint64(0))
	require.Error(t, err)
}

func TestTranslateWritesAreVisibleThroughSharedSlice(t *testing.T) {
	m := testMemoryMap()

	buf, err := m.translate(0x1000, 4)
	require.NoError(t, err)

	buf[0] = 0xAB

	buf2, err := m.translate(0x1000, 4)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), buf2[0])
}

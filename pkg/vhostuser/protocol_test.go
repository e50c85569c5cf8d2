package vhostuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := header{request: msgSetFeatures, flags: vhostUserVersion, size: 8}

	decoded, err := decodeHeader(h.encode())
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := decodeHeader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestReplyHeaderSetsReplyFlag(t *testing.T) {
	h := replyHeader(msgGetFeatures, 8)
	assert.NotZero(t, h.flags&flagReply)
	assert.Equal(t, uint32(8), h.size)
}

func TestDecodeVringStateRoundTrip(t *testing.T) {
	v := vringState{index: 1, num: 256}

	decoded, err := decodeVringState(v.encode())
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestDecodeMemTableParsesRegions(t *testing.T) {
	buf := make([]byte, 8+32)
	buf[0] = 1 // count = 1

	copy(buf[8:16], encodeU64(0x1000))  // guest addr
	copy(buf[16:24], encodeU64(0x2000)) // size
	copy(buf[24:32], encodeU64(0x3000)) // user addr
	copy(buf[32:40], encodeU64(0))      // mmap offset

	regions, err := decodeMemTable(buf)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, uint64(0x1000), regions[0].guestAddr)
	assert.Equal(t, uint64(0x2000), regions[0].size)
}

func TestDecodeMemTableRejectsTruncatedPayload(t *testing.T) {
	buf := make([]byte, 8+10)
	buf[0] = 1

	_, err := decodeMemTable(buf)
	require.Error(t, err)
}

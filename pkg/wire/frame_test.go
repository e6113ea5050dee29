package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Dst: 3, Src: 5, Tag: TagCMD, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF}}

	buf := f.Encode()
	require.Len(t, buf, 3+len(f.Payload))

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, f.Dst, got.Dst)
	assert.Equal(t, f.Src, got.Src)
	assert.Equal(t, f.Tag, got.Tag)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestFrame_DecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestFrame_DecodePayloadAliasesInput(t *testing.T) {
	buf := Frame{Dst: 1, Src: 2, Tag: TagRSP, Payload: []byte{0x7A}}.Encode()

	got, err := Decode(buf)
	require.NoError(t, err)

	buf[3] = 0x00
	assert.Equal(t, byte(0x00), got.Payload[0], "Decode's Payload must alias the input buffer, not copy it")
}

func TestFrame_EncodeIntoReusesBackingArrayWhenLargeEnough(t *testing.T) {
	f := Frame{Dst: 1, Src: 2, Tag: TagEVT, Payload: []byte{0x01, 0x02}}

	scratch := make([]byte, 0, 64)
	out := f.EncodeInto(scratch)

	require.Len(t, out, 5)
	assert.Equal(t, cap(scratch), cap(out), "EncodeInto should not reallocate when the supplied buffer already has enough capacity")
}

func TestFrame_EncodeIntoGrowsWhenTooSmall(t *testing.T) {
	f := Frame{Dst: 1, Src: 2, Tag: TagEVT, Payload: make([]byte, 32)}

	scratch := make([]byte, 0, 4)
	out := f.EncodeInto(scratch)

	require.Len(t, out, 3+len(f.Payload))
}

func TestFrame_EncodeIntoNilBufAllocatesFresh(t *testing.T) {
	f := Frame{Dst: 9, Src: 8, Tag: TagACK}
	out := f.EncodeInto(nil)
	require.Len(t, out, 3)
}

func TestTag_StringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "CMD", TagCMD.String())
	assert.Equal(t, "EVT", TagEVT.String())
	assert.Equal(t, "RSP", TagRSP.String())
	assert.Equal(t, "ACK", TagACK.String())
	assert.Contains(t, Tag(0x99).String(), "0x99")
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(0x00))
	assert.True(t, ValidAddress(byte(MaxEndpoint)))
	assert.True(t, ValidAddress(NullEndpoint))
	assert.False(t, ValidAddress(0x80))
	assert.False(t, ValidAddress(0xFF))
}

package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputLayout(t *testing.T) {
	data, err := Encode(Input{ClientID: 7, Sequence: 42, Flags: InputUp | InputFire})
	require.NoError(t, err)

	want := []byte{0x03, 0, 0, 0, 7, 0, 0, 0, 42, byte(InputUp | InputFire)}
	assert.Equal(t, want, data)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Input{ClientID: 7, Sequence: 42, Flags: InputUp | InputFire}, msg)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := Snapshot{
		Tick: 1234,
		Entities: []EntityDescriptor{
			{ID: 0, Kind: KindPlayer, X: 10.5, Y: 20, VX: 200, VY: -200, Health: 5, Flags: StateFiring},
			{ID: 3, Kind: KindEnemy, X: 700, Y: 300, VX: -80, Health: 2, Flags: StateHostile},
			{ID: 9, Kind: KindProjectile, X: 1, Y: 2, VX: 300, Health: -1},
		},
	}

	data, err := Encode(snap)
	require.NoError(t, err)
	assert.Len(t, data, snapshotHeaderSize+3*DescriptorSize)
	assert.Equal(t, Size(snap), len(data))

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap, msg)
}

func TestEmptySnapshot(t *testing.T) {
	data, err := Encode(Snapshot{Tick: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0, 0, 0, 1, 0, 0}, data)

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msg.(Snapshot).Tick)
	assert.Empty(t, msg.(Snapshot).Entities)
}

func TestRoundTripSmallMessages(t *testing.T) {
	msgs := []Message{
		ConnectRequest{Name: "alice"},
		ConnectRequest{Name: ""},
		ConnectAccept{ClientID: 1, EntityID: 99},
		Disconnect{Reason: ReasonTimeout},
		Heartbeat{ClientID: 5},
	}
	for _, m := range msgs {
		t.Run(m.Tag().String(), func(t *testing.T) {
			data, err := Encode(m)
			require.NoError(t, err)
			assert.Equal(t, byte(m.Tag()), data[0])

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestAppendEncodeKeepsPrefix(t *testing.T) {
	prefix := []byte{0xAA, 0xBB}
	data, err := AppendEncode(prefix, Heartbeat{ClientID: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0x06, 0, 0, 0, 1}, data)
}

func TestEncodeRejectsLongName(t *testing.T) {
	_, err := Encode(ConnectRequest{Name: strings.Repeat("x", MaxNameLen+1)})
	assert.True(t, errors.Is(err, ErrNameTooLong))

	_, err = Encode(ConnectRequest{Name: strings.Repeat("x", MaxNameLen)})
	assert.NoError(t, err)
}

func TestEncodeRejectsOversizedSnapshot(t *testing.T) {
	_, err := Encode(Snapshot{Entities: make([]EntityDescriptor, MaxSnapshotEntities+1)})
	assert.True(t, errors.Is(err, ErrTooManyEntities))
}

func TestDecodeRejectsTruncated(t *testing.T) {
	full := map[string]Message{
		"connect_request": ConnectRequest{Name: "bob"},
		"connect_accept":  ConnectAccept{ClientID: 1, EntityID: 2},
		"input":           Input{ClientID: 1, Sequence: 2, Flags: InputLeft},
		"snapshot":        Snapshot{Tick: 3, Entities: []EntityDescriptor{{ID: 1, Kind: KindPlayer}}},
		"disconnect":      Disconnect{Reason: ReasonQuit},
		"heartbeat":       Heartbeat{ClientID: 4},
	}
	for name, m := range full {
		data, err := Encode(m)
		require.NoError(t, err, name)

		for n := 1; n < len(data); n++ {
			_, err := Decode(data[:n])
			assert.Truef(t, errors.Is(err, ErrMalformedPacket), "%s truncated to %d: %v", name, n, err)
		}
	}
}

func TestDecodeRejectsEmptyAndUnknown(t *testing.T) {
	_, err := Decode(nil)
	assert.True(t, errors.Is(err, ErrMalformedPacket))

	_, err = Decode([]byte{0x00})
	assert.True(t, errors.Is(err, ErrMalformedPacket))

	_, err = Decode([]byte{0x7F, 1, 2, 3})
	assert.True(t, errors.Is(err, ErrMalformedPacket))
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(Heartbeat{ClientID: 1})
	require.NoError(t, err)

	_, err = Decode(append(data, 0))
	assert.True(t, errors.Is(err, ErrMalformedPacket))
}

func TestDecodeBoundsNameLength(t *testing.T) {
	// length prefix larger than the payload
	_, err := Decode([]byte{0x01, 10, 'a', 'b'})
	assert.True(t, errors.Is(err, ErrMalformedPacket))

	// length prefix above the maximum even though the bytes are present
	data := append([]byte{0x01, MaxNameLen + 1}, bytes.Repeat([]byte{'a'}, MaxNameLen+1)...)
	_, err = Decode(data)
	assert.True(t, errors.Is(err, ErrMalformedPacket))
}

func TestDecodeBoundsEntityCount(t *testing.T) {
	// claims 0xFFFF entities with no descriptors behind it
	_, err := Decode([]byte{0x04, 0, 0, 0, 1, 0xFF, 0xFF})
	assert.True(t, errors.Is(err, ErrMalformedPacket))

	// claims two entities but carries one
	data, err := Encode(Snapshot{Tick: 1, Entities: []EntityDescriptor{{ID: 1}}})
	require.NoError(t, err)
	data[6] = 2
	_, err = Decode(data)
	assert.True(t, errors.Is(err, ErrMalformedPacket))
}

func TestBufferReadPastEnd(t *testing.T) {
	b := NewBufferFrom([]byte{1, 2, 3})
	_, err := b.ReadUint32()
	assert.Error(t, err)
	assert.Equal(t, 3, b.Remaining())

	x, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), x)
	assert.Equal(t, 1, b.Remaining())
}

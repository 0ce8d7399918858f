package protocol

import (
	"github.com/rotisserie/eris"
)

// Size returns the encoded size of m.
func Size(m Message) int {
	switch msg := m.(type) {
	case ConnectRequest:
		return connectRequestMinSize + len(msg.Name)
	case ConnectAccept:
		return connectAcceptSize
	case Input:
		return inputSize
	case Snapshot:
		return snapshotHeaderSize + len(msg.Entities)*DescriptorSize
	case Disconnect:
		return disconnectSize
	case Heartbeat:
		return heartbeatSize
	default:
		return 0
	}
}

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	return AppendEncode(make([]byte, 0, Size(m)), m)
}

// AppendEncode appends the wire form of m to dst.
func AppendEncode(dst []byte, m Message) ([]byte, error) {
	b := &Buffer{buf: dst}

	switch msg := m.(type) {
	case ConnectRequest:
		if len(msg.Name) > MaxNameLen {
			return dst, eris.Wrapf(ErrNameTooLong, "%d bytes, max %d", len(msg.Name), MaxNameLen)
		}
		b.WriteByte(byte(TagConnectRequest))
		b.WriteByte(byte(len(msg.Name)))
		b.Write([]byte(msg.Name))

	case ConnectAccept:
		b.WriteByte(byte(TagConnectAccept))
		b.WriteUint32(msg.ClientID)
		b.WriteUint32(msg.EntityID)

	case Input:
		b.WriteByte(byte(TagInput))
		b.WriteUint32(msg.ClientID)
		b.WriteUint32(msg.Sequence)
		b.WriteByte(byte(msg.Flags))

	case Snapshot:
		if len(msg.Entities) > MaxSnapshotEntities {
			return dst, eris.Wrapf(ErrTooManyEntities, "%d entities, max %d", len(msg.Entities), MaxSnapshotEntities)
		}
		b.WriteByte(byte(TagSnapshot))
		b.WriteUint32(msg.Tick)
		b.WriteUint16(uint16(len(msg.Entities)))
		for _, e := range msg.Entities {
			writeDescriptor(b, e)
		}

	case Disconnect:
		b.WriteByte(byte(TagDisconnect))
		b.WriteByte(byte(msg.Reason))

	case Heartbeat:
		b.WriteByte(byte(TagHeartbeat))
		b.WriteUint32(msg.ClientID)

	default:
		return dst, eris.Wrapf(ErrUnknownMessage, "%T", m)
	}

	return b.Bytes(), nil
}

func writeDescriptor(b *Buffer, e EntityDescriptor) {
	b.WriteUint32(e.ID)
	b.WriteByte(byte(e.Kind))
	b.WriteFloat32(e.X)
	b.WriteFloat32(e.Y)
	b.WriteFloat32(e.VX)
	b.WriteFloat32(e.VY)
	b.WriteUint16(uint16(e.Health))
	b.WriteByte(byte(e.Flags))
}

// Decode parses one datagram. Every failure wraps ErrMalformedPacket. Length
// fields are checked against their compile-time maximum and against the bytes
// left before anything is allocated from them.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, eris.Wrap(ErrMalformedPacket, "empty datagram")
	}

	tag := Tag(data[0])
	if need := minSize(tag); need == 0 {
		return nil, eris.Wrapf(ErrMalformedPacket, "unknown tag 0x%02x", byte(tag))
	} else if len(data) < need {
		return nil, eris.Wrapf(ErrMalformedPacket, "%s: %d bytes, need %d", tag, len(data), need)
	}

	b := NewBufferFrom(data[1:])

	var (
		msg Message
		err error
	)
	switch tag {
	case TagConnectRequest:
		msg, err = decodeConnectRequest(b)
	case TagConnectAccept:
		msg, err = decodeConnectAccept(b)
	case TagInput:
		msg, err = decodeInput(b)
	case TagSnapshot:
		msg, err = decodeSnapshot(b)
	case TagDisconnect:
		var reason byte
		reason, err = b.ReadByte()
		msg = Disconnect{Reason: DisconnectReason(reason)}
	case TagHeartbeat:
		var id uint32
		id, err = b.ReadUint32()
		msg = Heartbeat{ClientID: id}
	}
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedPacket, "%s: %v", tag, err)
	}
	if b.Remaining() != 0 {
		return nil, eris.Wrapf(ErrMalformedPacket, "%s: %d trailing bytes", tag, b.Remaining())
	}
	return msg, nil
}

func minSize(t Tag) int {
	switch t {
	case TagConnectRequest:
		return connectRequestMinSize
	case TagConnectAccept:
		return connectAcceptSize
	case TagInput:
		return inputSize
	case TagSnapshot:
		return snapshotHeaderSize
	case TagDisconnect:
		return disconnectSize
	case TagHeartbeat:
		return heartbeatSize
	default:
		return 0
	}
}

func decodeConnectRequest(b *Buffer) (Message, error) {
	n, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(n) > MaxNameLen {
		return nil, eris.Errorf("name length %d exceeds %d", n, MaxNameLen)
	}
	if int(n) > b.Remaining() {
		return nil, eris.Errorf("name length %d exceeds remaining %d", n, b.Remaining())
	}
	name, err := b.Next(int(n))
	if err != nil {
		return nil, err
	}
	return ConnectRequest{Name: string(name)}, nil
}

func decodeConnectAccept(b *Buffer) (Message, error) {
	var msg ConnectAccept
	var err error
	if msg.ClientID, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	if msg.EntityID, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeInput(b *Buffer) (Message, error) {
	var msg Input
	var err error
	if msg.ClientID, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	if msg.Sequence, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	flags, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	msg.Flags = InputFlags(flags)
	return msg, nil
}

func decodeSnapshot(b *Buffer) (Message, error) {
	var msg Snapshot
	var err error
	if msg.Tick, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	count, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}
	if int(count) > MaxSnapshotEntities {
		return nil, eris.Errorf("entity count %d exceeds %d", count, MaxSnapshotEntities)
	}
	if int(count)*DescriptorSize > b.Remaining() {
		return nil, eris.Errorf("entity count %d needs %d bytes, %d left", count, int(count)*DescriptorSize, b.Remaining())
	}

	msg.Entities = make([]EntityDescriptor, count)
	for i := range msg.Entities {
		if msg.Entities[i], err = readDescriptor(b); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func readDescriptor(b *Buffer) (EntityDescriptor, error) {
	var e EntityDescriptor
	var err error
	if e.ID, err = b.ReadUint32(); err != nil {
		return e, err
	}
	kind, err := b.ReadByte()
	if err != nil {
		return e, err
	}
	e.Kind = EntityKind(kind)
	for _, f := range []*float32{&e.X, &e.Y, &e.VX, &e.VY} {
		if *f, err = b.ReadFloat32(); err != nil {
			return e, err
		}
	}
	health, err := b.ReadUint16()
	if err != nil {
		return e, err
	}
	e.Health = int16(health)
	flags, err := b.ReadByte()
	if err != nil {
		return e, err
	}
	e.Flags = StateFlags(flags)
	return e, nil
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Buffer is a big-endian reader/writer over a byte slice. Reads never go past
// the end of the slice; they fail with io.ErrUnexpectedEOF instead.
type Buffer struct {
	buf []byte
	pos int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{buf: data}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[pos=%d len=%d cap=%d]", b.pos, len(b.buf), cap(b.buf))
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Remaining() int {
	return len(b.buf) - b.pos
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

// ==================================================================
// Write
// ==================================================================

func (b *Buffer) WriteByte(x byte) error {
	b.buf = append(b.buf, x)
	return nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *Buffer) WriteUint16(x uint16) error {
	b.buf = binary.BigEndian.AppendUint16(b.buf, x)
	return nil
}

func (b *Buffer) WriteUint32(x uint32) error {
	b.buf = binary.BigEndian.AppendUint32(b.buf, x)
	return nil
}

func (b *Buffer) WriteFloat32(x float32) error {
	return b.WriteUint32(math.Float32bits(x))
}

// ==================================================================
// Read
// ==================================================================

func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	x := b.buf[b.pos]
	b.pos++
	return x, nil
}

// Next returns the next n bytes without copying.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	p := b.buf[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

func (b *Buffer) ReadUint16() (uint16, error) {
	p, err := b.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *Buffer) ReadFloat32() (float32, error) {
	x, err := b.ReadUint32()
	return math.Float32frombits(x), err
}

// Package octet implements the big-endian cursor buffer used to frame
// protocol data units and other wire structures.
//
// A Buffer wraps a fixed byte slice with a read/write cursor. Slice shares
// the underlying storage with its parent rather than copying, so a header
// parse followed by a payload slice does not allocate.
package octet

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a fixed-capacity byte container with a position cursor.
type Buffer struct {
	store  []byte
	offset int // index into store where this buffer's logical byte 0 lives
	length int // number of logical bytes visible through this buffer
	pos    int // cursor, relative to offset
}

// Allocate returns a new zeroed buffer of the given size.
func Allocate(size int) *Buffer {
	return &Buffer{store: make([]byte, size), length: size}
}

// Wrap returns a buffer viewing the given bytes directly (no copy).
func Wrap(data []byte) *Buffer {
	return &Buffer{store: data, length: len(data)}
}

// Len returns the number of logical bytes in the buffer.
func (b *Buffer) Len() int { return b.length }

// Pos returns the current cursor position.
func (b *Buffer) Pos() int { return b.pos }

// Seek repositions the cursor to an absolute logical offset.
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > b.length {
		return fmt.Errorf("octet: seek %d out of range [0,%d]", pos, b.length)
	}
	b.pos = pos
	return nil
}

// Remaining returns the number of unread/unwritten bytes ahead of the cursor.
func (b *Buffer) Remaining() int { return b.length - b.pos }

func (b *Buffer) require(n int) error {
	if b.pos+n > b.length {
		return fmt.Errorf("octet: need %d bytes at pos %d, have %d", n, b.pos, b.length)
	}
	return nil
}

func (b *Buffer) abs(i int) int { return b.offset + i }

// WriteUint8 writes one byte at the cursor and advances it.
func (b *Buffer) WriteUint8(v uint8) error {
	if err := b.require(1); err != nil {
		return err
	}
	b.store[b.abs(b.pos)] = v
	b.pos++
	return nil
}

// ReadUint8 reads one byte at the cursor and advances it.
func (b *Buffer) ReadUint8() (uint8, error) {
	if err := b.require(1); err != nil {
		return 0, err
	}
	v := b.store[b.abs(b.pos)]
	b.pos++
	return v, nil
}

// WriteUint16 writes a big-endian 16-bit value at the cursor.
func (b *Buffer) WriteUint16(v uint16) error {
	if err := b.require(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.store[b.abs(b.pos):], v)
	b.pos += 2
	return nil
}

// ReadUint16 reads a big-endian 16-bit value at the cursor.
func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.store[b.abs(b.pos):])
	b.pos += 2
	return v, nil
}

// WriteUint32 writes a big-endian 32-bit value at the cursor.
func (b *Buffer) WriteUint32(v uint32) error {
	if err := b.require(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.store[b.abs(b.pos):], v)
	b.pos += 4
	return nil
}

// ReadUint32 reads a big-endian 32-bit value at the cursor.
func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.store[b.abs(b.pos):])
	b.pos += 4
	return v, nil
}

// WriteBytes copies src into the buffer at the cursor and advances it.
func (b *Buffer) WriteBytes(src []byte) error {
	if err := b.require(len(src)); err != nil {
		return err
	}
	copy(b.store[b.abs(b.pos):], src)
	b.pos += len(src)
	return nil
}

// ReadBytes reads n bytes at the cursor into a freshly allocated slice and
// advances the cursor.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.store[b.abs(b.pos):b.abs(b.pos)+n])
	b.pos += n
	return out, nil
}

// Slice returns a new Buffer sharing the same backing store, viewing the
// bytes from the current cursor to the end of this buffer. The cursor of
// the returned buffer starts at 0. No copy is made.
func (b *Buffer) Slice() *Buffer {
	return &Buffer{
		store:  b.store,
		offset: b.abs(b.pos),
		length: b.length - b.pos,
	}
}

// Bytes returns the logical contents of the buffer as a slice. The slice
// aliases the backing store.
func (b *Buffer) Bytes() []byte {
	return b.store[b.abs(0):b.abs(b.length)]
}

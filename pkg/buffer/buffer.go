// Package buffer provides the growable byte buffer used for both directions of
// an endpoint's byte stream.
package buffer

import "github.com/pkg/errors"

// ErrTooLarge is returned when an append would grow a Buffer past its limit.
var ErrTooLarge = errors.New("buffer: too large")

// Unlimited disables the size limit of a Buffer.
const Unlimited = 0

// Buffer is a FIFO of bytes.  Bytes are appended at the tail and consumed from
// the head.  The zero value is an empty, unlimited buffer.
type Buffer struct {
	b     []byte
	off   int
	limit int
}

// New Buffer holding at most limit bytes.  A limit of Unlimited means no bound.
func New(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return len(b.b) - b.off }

// Limit returns the maximum number of bytes the buffer will hold.
func (b *Buffer) Limit() int { return b.limit }

// Free returns the number of bytes that can be appended before the limit is
// reached.  Unlimited buffers report the largest int.
func (b *Buffer) Free() int {
	if b.limit == Unlimited {
		return int(^uint(0) >> 1)
	}

	return b.limit - b.Len()
}

// Append p to the tail.  Either all of p is appended or, if p does not fit,
// nothing is and ErrTooLarge is returned.
func (b *Buffer) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	if len(p) > b.Free() {
		return errors.Wrapf(ErrTooLarge, "append %d bytes to %d/%d", len(p), b.Len(), b.limit)
	}

	b.compact(len(p))
	b.b = append(b.b, p...)
	return nil
}

// ConsumeFront copies up to len(p) bytes from the head into p and discards
// them from the buffer.  It returns the number of bytes copied.
func (b *Buffer) ConsumeFront(p []byte) int {
	n := copy(p, b.b[b.off:])
	b.Discard(n)
	return n
}

// Discard drops up to n bytes from the head and returns how many were dropped.
func (b *Buffer) Discard(n int) int {
	if n > b.Len() {
		n = b.Len()
	}

	b.off += n
	if b.off == len(b.b) {
		b.Reset()
	}

	return n
}

// Bytes returns the unread portion of the buffer.  It aliases the buffer's
// storage and is only valid until the next mutation.
func (b *Buffer) Bytes() []byte { return b.b[b.off:] }

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

// compact slides unread bytes to the front when the consumed prefix is what
// stands between the tail and capacity for n more bytes.
func (b *Buffer) compact(n int) {
	if b.off == 0 || len(b.b)+n <= cap(b.b) {
		return
	}

	m := copy(b.b, b.b[b.off:])
	b.b = b.b[:m]
	b.off = 0
}

// Package buffer implements helpers to write and read fixed-size values on
// buffered writers and readers, such as the bufio types or [Buffer].
package buffer

import (
	"errors"
	"io"
)

// Writer is the subset of the methods of [bufio.Writer] used by the write
// helpers of this package.
type Writer interface {
	io.Writer
	Flush() (err error)
	AvailableBuffer() []byte
	Available() int
}

// Reader is the subset of the methods of [bufio.Reader] used by the read
// helpers of this package. Values of at most Size bytes are read in place
// with Peek and Discard.
type Reader interface {
	io.Reader
	Size() int
	Peek(n int) ([]byte, error)
	Discard(n int) (discarded int, err error)
}

// Buffer is a [Writer] and [Reader] over a fixed-size byte slice.
// Writes append at the write offset and fail once the slice is full,
// reads consume from the read offset.
type Buffer struct {
	data []byte
	w, r int
}

// NewBuffer returns a [Buffer] over data, with both offsets at data[0]:
// reads see data and writes overwrite it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// NewBufferSize returns an empty [Buffer] able to hold size bytes.
func NewBufferSize(size int) *Buffer {
	return NewBuffer(make([]byte, size))
}

var errFull = errors.New("buffer full")

// Write appends p at the write offset.
func (b *Buffer) Write(p []byte) (n int, err error) {
	if len(p) > b.Available() {
		return 0, errFull
	}
	n = copy(b.data[b.w:], p)
	b.w += n
	return
}

// Flush is a no-op.
func (b *Buffer) Flush() (err error) {
	return nil
}

// AvailableBuffer returns an empty slice with Available() capacity,
// valid until the next write.
func (b *Buffer) AvailableBuffer() []byte {
	return b.data[b.w:b.w]
}

// Available returns the number of bytes that can still be written.
func (b *Buffer) Available() int {
	return len(b.data) - b.w
}

// Bytes returns the backing slice.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Read copies the next len(p) bytes into p and returns [io.EOF] on a short read.
func (b *Buffer) Read(p []byte) (n int, err error) {
	n = copy(p, b.data[b.r:])
	b.r += n
	if n < len(p) {
		err = io.EOF
	}
	return
}

// Size returns the number of unread bytes, which is also the largest
// argument accepted by Peek.
func (b *Buffer) Size() int {
	return len(b.data) - b.r
}

// Peek returns the next n unread bytes without consuming them.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n > b.Size() {
		return b.data[b.r:], io.EOF
	}
	return b.data[b.r : b.r+n], nil
}

// Discard consumes the next n unread bytes.
func (b *Buffer) Discard(n int) (discarded int, err error) {
	if discarded = n; n > b.Size() {
		discarded, err = b.Size(), io.EOF
	}
	b.r += discarded
	return
}

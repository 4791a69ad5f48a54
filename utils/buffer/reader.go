package buffer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadUint64 reads 8 little-endian bytes from r into c.
func ReadUint64(r Reader, c *uint64) (n int64, err error) {

	if c == nil {
		return 0, fmt.Errorf("cannot ReadUint64: c is nil")
	}

	var nint int
	if nint, err = readInPlace(r, 8, func(b []byte) { *c = binary.LittleEndian.Uint64(b) }); err != nil {
		return int64(nint), err
	}

	return int64(nint), nil
}

// ReadFixed reads count consecutive values of width bytes and calls f on each
// of them in order. The slice passed to f may alias the internal buffer of r
// and is only valid until f returns.
func ReadFixed(r Reader, width, count int, f func(i int, b []byte)) (n int64, err error) {

	if width < 0 || count < 0 {
		return 0, fmt.Errorf("cannot ReadFixed: invalid width=%d or count=%d", width, count)
	}

	for i := 0; i < count; i++ {
		var nint int
		nint, err = readInPlace(r, width, func(b []byte) { f(i, b) })
		n += int64(nint)
		if err != nil {
			return
		}
	}

	return
}

// readInPlace reads size bytes from r and passes them to f, without copy when
// they fit in the buffer of r.
func readInPlace(r Reader, size int, f func(b []byte)) (n int, err error) {

	if size > r.Size() {
		buf := make([]byte, size)
		if n, err = io.ReadFull(r, buf); err != nil {
			return
		}
		f(buf)
		return
	}

	var b []byte
	if b, err = r.Peek(size); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	f(b)

	return r.Discard(size)
}

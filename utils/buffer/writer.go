package buffer

import (
	"encoding/binary"
	"fmt"
)

// WriteUint64 writes c on w as 8 little-endian bytes.
func WriteUint64(w Writer, c uint64) (n int64, err error) {

	if w.Available() < 8 {
		if err = w.Flush(); err != nil {
			return
		}

		if w.Available() < 8 {
			return 0, fmt.Errorf("cannot WriteUint64: available buffer is smaller than 8 bytes even after flush")
		}
	}

	buf := w.AvailableBuffer()[:8]

	binary.LittleEndian.PutUint64(buf, c)

	nint, err := w.Write(buf)

	return int64(nint), err
}

// Write writes a slice of bytes to w.
func Write(w Writer, c []byte) (n int64, err error) {
	nint, err := w.Write(c)
	return int64(nint), err
}

// WriteFixed writes the big-endian bytes of c left-padded with zeros
// to exactly size bytes.
// It returns an error if c does not fit in size bytes.
func WriteFixed(w Writer, c []byte, size int) (n int64, err error) {

	if len(c) > size {
		return 0, fmt.Errorf("cannot WriteFixed: value of %d bytes exceeds width %d", len(c), size)
	}

	var inc int64
	if pad := size - len(c); pad > 0 {
		if inc, err = Write(w, make([]byte, pad)); err != nil {
			return inc, err
		}
	}

	n, err = Write(w, c)

	return n + inc, err
}

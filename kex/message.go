package kex

import (
	"bufio"
	"fmt"
	"io"
	"math/big"

	"github.com/tuneinsight/noisykex/utils/buffer"
)

// MaxMessageSize is the largest number of values a decoded [PublicMessage] may hold.
const MaxMessageSize = 1 << 20

// PublicMessage is the message a party sends over the insecure channel:
// its noisy public values, one per dimension.
type PublicMessage struct {
	Values []*big.Int

	// width of each encoded value in bytes
	width int
}

// NewPublicMessage creates a [PublicMessage] holding values, encoded on
// the byte-width of the modulus of params.
func NewPublicMessage(params Parameters, values []*big.Int) PublicMessage {
	return PublicMessage{
		Values: values,
		width:  (params.LogModulus() + 7) >> 3,
	}
}

// Width returns the size in bytes of each encoded value.
func (m PublicMessage) Width() int {
	if m.width != 0 {
		return m.width
	}

	var bitLen int
	for _, v := range m.Values {
		if v.BitLen() > bitLen {
			bitLen = v.BitLen()
		}
	}

	return (bitLen + 7) >> 3
}

// Check returns an error if the message is not a valid message for params.
func (m PublicMessage) Check(params Parameters) error {
	return checkVector(params, "message", m.Values)
}

// CopyNew returns a deep copy of the message.
func (m PublicMessage) CopyNew() PublicMessage {
	values := make([]*big.Int, len(m.Values))
	for i := range m.Values {
		values[i] = new(big.Int).Set(m.Values[i])
	}
	return PublicMessage{Values: values, width: m.width}
}

// Equal returns true if both messages hold the same values.
func (m PublicMessage) Equal(other *PublicMessage) bool {
	return equalVectors(m.Values, other.Values)
}

// BinarySize returns the serialized size of the object in bytes.
func (m PublicMessage) BinarySize() int {
	return 16 + len(m.Values)*m.Width()
}

// WriteTo writes the object on an [io.Writer]. It implements the [io.WriterTo]
// interface, and will write exactly object.BinarySize() bytes on w.
//
// The encoding is the number of values and their width as two little-endian
// uint64, followed by each value in big-endian on exactly width bytes.
//
// Unless w implements the [buffer.Writer] interface (see noisykex/utils/buffer/writer.go),
// it will be wrapped into a [bufio.Writer]. Since this requires allocations, it
// is preferable to pass a [buffer.Writer] directly.
func (m PublicMessage) WriteTo(w io.Writer) (n int64, err error) {
	switch w := w.(type) {
	case buffer.Writer:

		width := m.Width()

		var inc int64
		if inc, err = buffer.WriteUint64(w, uint64(len(m.Values))); err != nil {
			return n + inc, err
		}
		n += inc

		if inc, err = buffer.WriteUint64(w, uint64(width)); err != nil {
			return n + inc, err
		}
		n += inc

		for i, v := range m.Values {
			if v.Sign() < 0 {
				return n, fmt.Errorf("cannot WriteTo: value %d is negative", i)
			}
			if inc, err = buffer.WriteFixed(w, v.Bytes(), width); err != nil {
				return n + inc, err
			}
			n += inc
		}

		return n, w.Flush()

	default:
		return m.WriteTo(bufio.NewWriter(w))
	}
}

// ReadFrom reads on the object from an [io.Reader]. It implements the
// [io.ReaderFrom] interface. It only decodes the structure of the message:
// see [ReadPublicMessage] to also check the values against a parameter set.
//
// Unless r implements the [buffer.Reader] interface (see noisykex/utils/buffer/reader.go),
// it will be wrapped into a [bufio.Reader].
func (m *PublicMessage) ReadFrom(r io.Reader) (n int64, err error) {
	switch r := r.(type) {
	case buffer.Reader:

		var count, width uint64
		var inc int64

		if inc, err = buffer.ReadUint64(r, &count); err != nil {
			return n + inc, err
		}
		n += inc

		if inc, err = buffer.ReadUint64(r, &width); err != nil {
			return n + inc, err
		}
		n += inc

		if count > MaxMessageSize {
			return n, fmt.Errorf("cannot ReadFrom: message of %d values exceeds %d", count, MaxMessageSize)
		}

		if width == 0 && count != 0 || width > 1<<16 {
			return n, fmt.Errorf("cannot ReadFrom: invalid value width %d", width)
		}

		m.Values = make([]*big.Int, count)
		m.width = int(width)

		inc, err = buffer.ReadFixed(r, int(width), int(count), func(i int, b []byte) {
			m.Values[i] = new(big.Int).SetBytes(b)
		})

		return n + inc, err

	default:
		return m.ReadFrom(bufio.NewReader(r))
	}
}

// MarshalBinary encodes the object into a binary form on a newly allocated slice of bytes.
func (m PublicMessage) MarshalBinary() (p []byte, err error) {
	buf := buffer.NewBufferSize(m.BinarySize())
	_, err = m.WriteTo(buf)
	return buf.Bytes(), err
}

// UnmarshalBinary decodes a slice of bytes generated by
// [PublicMessage.MarshalBinary] or [PublicMessage.WriteTo] on the object.
func (m *PublicMessage) UnmarshalBinary(p []byte) (err error) {
	_, err = m.ReadFrom(buffer.NewBuffer(p))
	return
}

// ReadPublicMessage reads a [PublicMessage] from r and checks it against params:
// it must hold Dimension values encoded on the byte-width of the modulus, each
// one in [0, modulus). Otherwise the returned error wraps [ErrInvalidParameters].
func ReadPublicMessage(params Parameters, r io.Reader) (m PublicMessage, err error) {

	if _, err = m.ReadFrom(r); err != nil {
		return PublicMessage{}, fmt.Errorf("cannot ReadPublicMessage: %w", err)
	}

	if width := NewPublicMessage(params, nil).Width(); m.width != width {
		return PublicMessage{}, fmt.Errorf("cannot ReadPublicMessage: %w: value width is %d but modulus width is %d", ErrInvalidParameters, m.width, width)
	}

	if err = m.Check(params); err != nil {
		return PublicMessage{}, fmt.Errorf("cannot ReadPublicMessage: %w", err)
	}

	return m, nil
}

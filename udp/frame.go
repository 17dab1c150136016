// Package udp provides typed access to UDP datagram headers (RFC 768) and
// the send helpers this stack uses to prepare, checksum and transmit
// outbound datagrams over a shared buffer.
package udp

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

const sizeHeader = 8

var (
	errShort  = errors.New("udp: short buffer")
	errBadLen = errors.New("udp: bad length field")
)

// NewFrame returns a Frame backed by buf. buf must be at least 8 bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over a UDP datagram header.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// SourcePort returns the UDP source port.
func (f Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

// SetSourcePort sets the UDP source port.
func (f Frame) SetSourcePort(p uint16) { binary.BigEndian.PutUint16(f.buf[0:2], p) }

// DestinationPort returns the UDP destination port.
func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetDestinationPort sets the UDP destination port.
func (f Frame) SetDestinationPort(p uint16) { binary.BigEndian.PutUint16(f.buf[2:4], p) }

// Length returns the UDP length field (header+payload).
func (f Frame) Length() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

// SetLength sets the UDP length field.
func (f Frame) SetLength(l uint16) { binary.BigEndian.PutUint16(f.buf[4:6], l) }

// CRC returns the UDP checksum field.
func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

// SetCRC sets the UDP checksum field.
func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[6:8], crc) }

// Payload returns the datagram payload, sized per the Length field.
func (f Frame) Payload() []byte {
	l := f.Length()
	return f.buf[sizeHeader:l]
}

// ClearHeader zeros the 8-byte header.
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

// ValidateSize checks the Length field against the actual buffer size.
func (f Frame) ValidateSize(v *wire.Validator) {
	l := f.Length()
	if l < sizeHeader {
		v.AddError(errBadLen)
	}
	if int(l) > len(f.buf) {
		v.AddError(errShort)
	}
}

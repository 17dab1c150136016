// Package ethernet provides typed, bounds-checked access to Ethernet II
// header fields inside a shared buffer, and the broadcast address helper
// used throughout this stack's ARP and DHCP send paths.
package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

const sizeHeader = 14

// NewFrame returns a Frame backed by buf. buf must be at least 14 bytes
// long (the fixed, non-VLAN Ethernet header size).
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over the Ethernet header of a shared buffer. The first
// byte of buf is the first octet of the destination MAC address; no
// preamble or frame check sequence is present, as those are handled by the
// MAC/PHY controller on the wire side of the bus transaction.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// DestinationHardwareAddr returns the destination MAC address field.
func (f Frame) DestinationHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[0:6]) }

// SourceHardwareAddr returns the source MAC address field.
func (f Frame) SourceHardwareAddr() *[6]byte { return (*[6]byte)(f.buf[6:12]) }

// EtherType returns the EtherType field.
func (f Frame) EtherType() wire.EtherType {
	return wire.EtherType(binary.BigEndian.Uint16(f.buf[12:14]))
}

// SetEtherType sets the EtherType field.
func (f Frame) SetEtherType(et wire.EtherType) {
	binary.BigEndian.PutUint16(f.buf[12:14], uint16(et))
}

// Payload returns everything after the 14-byte header.
func (f Frame) Payload() []byte { return f.buf[sizeHeader:] }

// HeaderLength is always 14: this stack never emits or parses 802.1Q VLAN tags.
func (f Frame) HeaderLength() int { return sizeHeader }

// IsBroadcast reports whether the destination address is ff:ff:ff:ff:ff:ff.
func (f Frame) IsBroadcast() bool {
	d := f.DestinationHardwareAddr()
	for _, b := range d {
		if b != 0xff {
			return false
		}
	}
	return true
}

// ClearHeader zeros the 14-byte header.
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

var errShort = errors.New("ethernet: short buffer")

// ValidateSize checks that the buffer is at least as long as the fixed
// Ethernet header.
func (f Frame) ValidateSize(v *wire.Validator) {
	if len(f.buf) < sizeHeader {
		v.AddError(errShort)
	}
}

// BroadcastAddr returns the Ethernet broadcast address.
func BroadcastAddr() [6]byte {
	return [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

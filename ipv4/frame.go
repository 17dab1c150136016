// Package ipv4 provides typed, bounds-checked access to a fixed 20-byte
// (no options) IPv4 header, as accepted on receive by this stack: an IHL
// other than 5 is treated as a malformed header and dropped by the caller.
package ipv4

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"github.com/hlan/mcunet/wire"
)

const sizeHeader = 20

// NewFrame returns a Frame backed by buf. buf must be at least 20 bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over the 20-byte IPv4 header of a shared buffer.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) ihl() uint8     { return f.buf[0] & 0xf }
func (f Frame) version() uint8 { return f.buf[0] >> 4 }

// SetVersionIHL sets the version (always 4) and IHL (always 5: no options) fields.
func (f Frame) SetVersionIHL() { f.buf[0] = 4<<4 | 5 }

// HeaderLength returns IHL*4. This stack only ever produces/accepts 20.
func (f Frame) HeaderLength() int { return int(f.ihl()) * 4 }

// ToS returns the Type-of-Service byte.
func (f Frame) ToS() wire.ToS { return wire.ToS(f.buf[1]) }

// SetToS sets the Type-of-Service byte.
func (f Frame) SetToS(tos wire.ToS) { f.buf[1] = byte(tos) }

// TotalLength returns the total IP packet length, header+payload.
func (f Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetTotalLength sets the total IP packet length field.
func (f Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(f.buf[2:4], tl) }

// ID returns the identification field.
func (f Frame) ID() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

// SetID sets the identification field.
func (f Frame) SetID(id uint16) { binary.BigEndian.PutUint16(f.buf[4:6], id) }

// Flags returns the flags+fragment-offset field.
func (f Frame) Flags() wire.Flags { return wire.Flags(binary.BigEndian.Uint16(f.buf[6:8])) }

// SetFlags sets the flags+fragment-offset field.
func (f Frame) SetFlags(flags wire.Flags) { binary.BigEndian.PutUint16(f.buf[6:8], uint16(flags)) }

// TTL returns the time-to-live field.
func (f Frame) TTL() uint8 { return f.buf[8] }

// SetTTL sets the time-to-live field.
func (f Frame) SetTTL(ttl uint8) { f.buf[8] = ttl }

// Protocol returns the encapsulated transport protocol.
func (f Frame) Protocol() wire.IPProto { return wire.IPProto(f.buf[9]) }

// SetProtocol sets the encapsulated transport protocol field.
func (f Frame) SetProtocol(p wire.IPProto) { f.buf[9] = uint8(p) }

// CRC returns the header checksum field.
func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[10:12]) }

// SetCRC sets the header checksum field.
func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[10:12], crc) }

// SourceAddr returns a pointer to the source address field.
func (f Frame) SourceAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }

// DestinationAddr returns a pointer to the destination address field.
func (f Frame) DestinationAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }

// Payload returns the content following the 20-byte header, sized per TotalLength.
func (f Frame) Payload() []byte {
	tl := f.TotalLength()
	return f.buf[sizeHeader:tl]
}

// ClearHeader zeros the fixed 20-byte header.
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

// CalculateHeaderCRC computes the IPv4 header checksum (header only, no
// pseudo-header), treating the checksum field itself as the value currently
// stored there. Callers recomputing a checksum should zero the CRC field
// first, matching the semantics required by wire.Sum16.
func (f Frame) CalculateHeaderCRC() uint16 {
	var crc wire.CRC791
	crc.Write(f.buf[0:20])
	return crc.Sum16()
}

// PseudoHeaderSpan returns the byte range beginning at the source address
// field and spanning through the end of TotalLength, as required by
// wire.Sum16's UdpPseudo/TcpPseudo modes: 8 octets of addresses followed by
// the transport segment.
func (f Frame) PseudoHeaderSpan() []byte {
	return f.buf[12:f.TotalLength()]
}

var (
	errShort      = errors.New("ipv4: short buffer")
	errBadTL      = errors.New("ipv4: bad total length")
	errBadIHL     = errors.New("ipv4: bad IHL")
	errBadVersion = errors.New("ipv4: bad version")
)

// ValidateSize checks the frame's size fields against the actual buffer length.
func (f Frame) ValidateSize(v *wire.Validator) {
	tl := f.TotalLength()
	if tl < sizeHeader {
		v.AddError(errBadTL)
	}
	if int(tl) > len(f.buf) {
		v.AddError(errShort)
	}
	if f.ihl() != 5 {
		v.AddError(errBadIHL)
	}
}

// ValidateVersion additionally checks the version field is 4.
func (f Frame) ValidateVersion(v *wire.Validator) {
	if f.version() != 4 {
		v.AddError(errBadVersion)
	}
}

// AddrFrom4 is a small convenience wrapper returning a netip.Addr for
// external-facing APIs, matching the wire [4]byte representation used
// internally throughout this stack.
func AddrFrom4(b [4]byte) netip.Addr { return netip.AddrFrom4(b) }

// Package icmpv4 implements the echo request/reply subset of ICMP (RFC 792)
// this stack needs: replying to inbound echo requests in place, and
// recognizing echo replies for an application-level ping monitor.
package icmpv4

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

// Type is the ICMP message type.
type Type uint8

const (
	TypeEchoReply Type = 0
	TypeEcho      Type = 8
)

var errShort = errors.New("icmpv4: short frame")

// NewFrame returns a Frame backed by buf. buf must be at least 8 bytes
// (4-byte ICMP header + 4-byte echo identifier/sequence).
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < 8 {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over an ICMP echo request/reply message.
type Frame struct {
	buf []byte
}

func (f Frame) Type() Type     { return Type(f.buf[0]) }
func (f Frame) SetType(t Type) { f.buf[0] = uint8(t) }

func (f Frame) Code() uint8        { return f.buf[1] }
func (f Frame) SetCode(code uint8) { f.buf[1] = code }

// CRC returns the ICMP checksum field.
func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// SetCRC sets the ICMP checksum field.
func (f Frame) SetCRC(crc uint16) { binary.BigEndian.PutUint16(f.buf[2:4], crc) }

// Identifier returns the echo identifier field.
func (f Frame) Identifier() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

// SetIdentifier sets the echo identifier field.
func (f Frame) SetIdentifier(id uint16) { binary.BigEndian.PutUint16(f.buf[4:6], id) }

// SequenceNumber returns the echo sequence number field.
func (f Frame) SequenceNumber() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

// SetSequenceNumber sets the echo sequence number field.
func (f Frame) SetSequenceNumber(seq uint16) { binary.BigEndian.PutUint16(f.buf[6:8], seq) }

// Data returns the echo payload, following the 8-byte type/code/crc/id/seq header.
func (f Frame) Data() []byte { return f.buf[8:] }

// RawData returns the whole ICMP message, header included.
func (f Frame) RawData() []byte { return f.buf }

// CalculateCRC computes the ICMP checksum treating the CRC field as zero,
// per RFC 792. The stored CRC field is skipped, so it need not be zeroed
// first.
func (f Frame) CalculateCRC() uint16 {
	var crc wire.CRC791
	crc.AddUint16(binary.BigEndian.Uint16(f.buf[0:2]))
	return crc.Sum16WithTail(f.buf[4:])
}

// ReflectEchoReply turns an inbound echo request into an echo reply in
// place: the type byte changes from 8 to 0 and the checksum is adjusted by
// adding 0x0800 with end-around carry, rather than a full checksum
// recompute. Payload bytes are left untouched.
func (f Frame) ReflectEchoReply() {
	f.SetType(TypeEchoReply)
	sum := uint32(f.CRC()) + 0x0800
	if sum > 0xffff {
		sum = sum&0xffff + 1 // carry out of the top bit wraps into the low bit, per one's-complement addition
	}
	f.SetCRC(uint16(sum))
}

// PingMonitor callback signature: invoked with the source address whenever
// an echo reply whose data begins with the application sentinel byte 0x42
// is received.
type PingMonitor func(srcIP [4]byte)

// SentinelByte is the first payload byte application-initiated echo
// requests use to mark themselves so [PingMonitor] can distinguish their
// replies from third-party echo traffic reflected by this stack.
const SentinelByte = 0x42

// IsMonitoredReply reports whether f is an echo reply whose payload begins
// with SentinelByte.
func (f Frame) IsMonitoredReply() bool {
	data := f.Data()
	return f.Type() == TypeEchoReply && len(data) > 0 && data[0] == SentinelByte
}

package tcp

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

const sizeHeader = 20

var (
	errShort       = errors.New("tcp: short buffer")
	errBadOffset   = errors.New("tcp: data offset out of range")
	errNoMSSOption = errors.New("tcp: no MSS option present")
)

// NewFrame returns a Frame backed by buf. buf must be at least 20 bytes,
// the fixed TCP header with no options.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over a TCP segment header and its option space.
type Frame struct {
	buf []byte
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16      { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) SetSourcePort(p uint16)  { binary.BigEndian.PutUint16(f.buf[0:2], p) }
func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetDestinationPort(p uint16) {
	binary.BigEndian.PutUint16(f.buf[2:4], p)
}

func (f Frame) Seq() Value     { return Value(binary.BigEndian.Uint32(f.buf[4:8])) }
func (f Frame) SetSeq(v Value) { binary.BigEndian.PutUint32(f.buf[4:8], uint32(v)) }

func (f Frame) Ack() Value     { return Value(binary.BigEndian.Uint32(f.buf[8:12])) }
func (f Frame) SetAck(v Value) { binary.BigEndian.PutUint32(f.buf[8:12], uint32(v)) }

// Offset returns the data offset in 32-bit words (5..15).
func (f Frame) Offset() uint8 { return f.buf[12] >> 4 }

// HeaderLength returns the header length in bytes, including options.
func (f Frame) HeaderLength() int { return int(f.Offset()) * 4 }

// SetOffsetAndFlags sets the data-offset (in 32-bit words) and flags fields.
func (f Frame) SetOffsetAndFlags(offsetWords uint8, flags Flags) {
	f.buf[12] = offsetWords << 4
	f.buf[13] = byte(flags)
}

func (f Frame) Flags() Flags { return Flags(f.buf[13] & 0x3f) }

func (f Frame) WindowSize() uint16     { return binary.BigEndian.Uint16(f.buf[14:16]) }
func (f Frame) SetWindowSize(w uint16) { binary.BigEndian.PutUint16(f.buf[14:16], w) }

func (f Frame) CRC() uint16     { return binary.BigEndian.Uint16(f.buf[16:18]) }
func (f Frame) SetCRC(c uint16) { binary.BigEndian.PutUint16(f.buf[16:18], c) }

func (f Frame) UrgentPtr() uint16     { return binary.BigEndian.Uint16(f.buf[18:20]) }
func (f Frame) SetUrgentPtr(u uint16) { binary.BigEndian.PutUint16(f.buf[18:20], u) }

// Options returns the option bytes between the fixed header and the
// payload, sized per the data-offset field.
func (f Frame) Options() []byte {
	return f.buf[sizeHeader:f.HeaderLength()]
}

// Payload returns the segment's data, everything past the header. totalLen
// is the total segment length (header+data) as carried by the enclosing
// IPv4 total-length field.
func (f Frame) Payload(totalLen int) []byte {
	return f.buf[f.HeaderLength():totalLen]
}

// ClearHeader zeros the fixed 20-byte header (not the variable option space).
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

// ValidateSize checks the data-offset field against the buffer length.
func (f Frame) ValidateSize(v *wire.Validator) {
	off := f.HeaderLength()
	if off < sizeHeader || off > len(f.buf) {
		v.AddError(errBadOffset)
	}
}

// optKind is the TCP option-kind byte (RFC 793/RFC 1323, the handful this
// stack understands).
type optKind uint8

const (
	optKindEnd       optKind = 0
	optKindNop       optKind = 1
	optKindMSS       optKind = 2
	optKindWindowLog optKind = 3
)

// SetMSSOption writes a single 4-byte MSS option (kind 2, length 4) as the
// only option, and returns the data-offset in 32-bit words the caller
// should pass to SetOffsetAndFlags.
func (f Frame) SetMSSOption(mss uint16) (offsetWords uint8) {
	opt := f.buf[sizeHeader : sizeHeader+4]
	opt[0] = byte(optKindMSS)
	opt[1] = 4
	binary.BigEndian.PutUint16(opt[2:4], mss)
	return (sizeHeader + 4) / 4
}

// MSSOption scans the option space for a kind-2 MSS option and returns its
// value. Options are a short, linear kind/length/value walk per RFC 793;
// unknown multi-byte options are skipped by their declared length, and the
// single-byte NOP/END kinds advance by one.
func (f Frame) MSSOption() (uint16, error) {
	opts := f.Options()
	for i := 0; i < len(opts); {
		kind := optKind(opts[i])
		switch kind {
		case optKindEnd:
			return 0, errNoMSSOption
		case optKindNop:
			i++
			continue
		}
		if i+1 >= len(opts) {
			return 0, errNoMSSOption
		}
		length := int(opts[i+1])
		if length < 2 || i+length > len(opts) {
			return 0, errNoMSSOption
		}
		if kind == optKindMSS && length == 4 {
			return binary.BigEndian.Uint16(opts[i+2 : i+4]), nil
		}
		i += length
	}
	return 0, errNoMSSOption
}

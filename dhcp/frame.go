// Package dhcp implements a DHCPv4 client state machine (RFC 2131) over
// this stack's shared buffer: frame accessors, an options walk, and the
// Init→Discover→Offer→Request→Ack→Ok→Renew client used to obtain and
// renew a leased IPv4 configuration.
package dhcp

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

// Op is the BOOTP op field: 1 for a client request, 2 for a server reply.
type Op uint8

const (
	OpRequest Op = 1
	OpReply   Op = 2
)

const (
	sizeHeader   = 44
	sizeSName    = 64
	sizeBootFile = 128
	// MagicCookie offset, measured from the start of the UDP payload.
	magicCookieOffset = sizeHeader + sizeSName + sizeBootFile
	// MagicCookie is the fixed DHCP options marker (RFC 2131 §3).
	MagicCookie uint32 = 0x63825363
	optionsOffset      = magicCookieOffset + 4

	DefaultClientPort = 68
	DefaultServerPort = 67
)

var (
	errSmallFrame    = errors.New("dhcp: frame smaller than 240 bytes")
	errBadOption     = errors.New("dhcp: option length exceeds payload")
	errOptionNotFit  = errors.New("dhcp: options don't fit in buffer")
)

// NewFrame returns a Frame backed by buf, which must be at least 240
// bytes (the fixed BOOTP header with no options).
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < optionsOffset {
		return Frame{}, errSmallFrame
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over a BOOTP/DHCPv4 packet.
type Frame struct {
	buf []byte
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) Op() Op      { return Op(f.buf[0]) }
func (f Frame) SetOp(op Op) { f.buf[0] = byte(op) }

func (f Frame) SetHardware(htype, hlen, hops uint8) {
	f.buf[1], f.buf[2], f.buf[3] = htype, hlen, hops
}

func (f Frame) XID() uint32      { return binary.BigEndian.Uint32(f.buf[4:8]) }
func (f Frame) SetXID(xid uint32) { binary.BigEndian.PutUint32(f.buf[4:8], xid) }

func (f Frame) Secs() uint16        { return binary.BigEndian.Uint16(f.buf[8:10]) }
func (f Frame) SetSecs(secs uint16) { binary.BigEndian.PutUint16(f.buf[8:10], secs) }

// Flags is the BOOTP flags field; bit 15 is the broadcast flag.
type Flags uint16

const FlagBroadcast Flags = 0x8000

func (f Frame) Flags() Flags         { return Flags(binary.BigEndian.Uint16(f.buf[10:12])) }
func (f Frame) SetFlags(flags Flags) { binary.BigEndian.PutUint16(f.buf[10:12], uint16(flags)) }

func (f Frame) CIAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }
func (f Frame) YIAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }
func (f Frame) SIAddr() *[4]byte { return (*[4]byte)(f.buf[20:24]) }
func (f Frame) GIAddr() *[4]byte { return (*[4]byte)(f.buf[24:28]) }

// CHAddr returns the client hardware address field, up to 16 bytes (only
// the first 6 are used for Ethernet).
func (f Frame) CHAddr() *[16]byte { return (*[16]byte)(f.buf[28:44]) }

// CHAddrAs6 returns CHAddr limited to the first 6 bytes, the Ethernet case.
func (f Frame) CHAddrAs6() *[6]byte { return (*[6]byte)(f.buf[28 : 28+6]) }

func (f Frame) MagicCookie() uint32 { return binary.BigEndian.Uint32(f.buf[magicCookieOffset:]) }
func (f Frame) SetMagicCookie(cookie uint32) {
	binary.BigEndian.PutUint32(f.buf[magicCookieOffset:], cookie)
}

// ClearHeader zeros the fixed 240-byte header.
func (f Frame) ClearHeader() {
	for i := range f.buf[:optionsOffset] {
		f.buf[i] = 0
	}
}

// OptionsPayload returns the options area following the magic cookie.
func (f Frame) OptionsPayload() []byte { return f.buf[optionsOffset:] }

// ForEachOption walks the TLV-encoded options area, calling fn for each
// one. OptPad (0) bytes are skipped one at a time; OptEnd (255) stops the
// walk. A nil fn performs validation only.
func (f Frame) ForEachOption(fn func(opt OptNum, data []byte) error) error {
	ptr := optionsOffset
	if ptr > len(f.buf) {
		return errSmallFrame
	}
	for ptr+1 < len(f.buf) {
		opt := OptNum(f.buf[ptr])
		if opt == OptEnd {
			break
		}
		if opt == OptPad {
			ptr++
			continue
		}
		optlen := int(f.buf[ptr+1])
		if ptr+2+optlen > len(f.buf) {
			return errBadOption
		}
		if fn != nil {
			if err := fn(opt, f.buf[ptr+2:ptr+2+optlen]); err != nil {
				return err
			}
		}
		ptr += 2 + optlen
	}
	return nil
}

// ValidateSize walks the options area to check every TLV fits.
func (f Frame) ValidateSize(v *wire.Validator) {
	if err := f.ForEachOption(nil); err != nil {
		v.AddError(err)
	}
}

// putOption appends a TLV option to buf at off and returns the new offset.
func putOption(buf []byte, off int, opt OptNum, data []byte) (int, error) {
	if off+2+len(data) > len(buf) {
		return off, errOptionNotFit
	}
	buf[off] = byte(opt)
	buf[off+1] = byte(len(data))
	copy(buf[off+2:], data)
	return off + 2 + len(data), nil
}

// putOptionEnd writes the terminating OptEnd marker.
func putOptionEnd(buf []byte, off int) (int, error) {
	if off >= len(buf) {
		return off, errOptionNotFit
	}
	buf[off] = byte(OptEnd)
	return off + 1, nil
}

// Package arp implements the IPv4-over-Ethernet subset of ARP (RFC 826) this
// stack needs: answering inbound requests for our own address, and
// resolving the default gateway's hardware address.
package arp

import (
	"encoding/binary"
	"errors"

	"github.com/hlan/mcunet/wire"
)

// sizeHeader is the fixed 8-byte ARP header (htype, ptype, hlen, plen, op)
// preceding the address fields. sizeHeaderIPv4Ethernet additionally accounts
// for two 6-byte hardware addresses and two 4-byte protocol addresses, the
// only combination this stack ever produces or accepts.
const (
	sizeHeader           = 8
	sizeHeaderIPv4Ethernet = sizeHeader + 2*6 + 2*4 // 28
)

var errShort = errors.New("arp: short buffer")

// NewFrame returns a Frame backed by buf. buf must be at least 28 bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderIPv4Ethernet {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over an ARP packet fixed to 6-byte hardware addresses and
// 4-byte IPv4 protocol addresses.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was constructed with.
func (f Frame) RawData() []byte { return f.buf }

// Hardware returns the hardware type and address length fields.
func (f Frame) Hardware() (htype uint16, hlen uint8) {
	return binary.BigEndian.Uint16(f.buf[0:2]), f.buf[4]
}

// SetHardware sets the hardware type and address length fields.
func (f Frame) SetHardware(htype uint16, hlen uint8) {
	binary.BigEndian.PutUint16(f.buf[0:2], htype)
	f.buf[4] = hlen
}

// Protocol returns the protocol type and address length fields.
func (f Frame) Protocol() (ptype wire.EtherType, plen uint8) {
	return wire.EtherType(binary.BigEndian.Uint16(f.buf[2:4])), f.buf[5]
}

// SetProtocol sets the protocol type and address length fields.
func (f Frame) SetProtocol(ptype wire.EtherType, plen uint8) {
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(ptype))
	f.buf[5] = plen
}

// Operation returns the ARP operation field.
func (f Frame) Operation() wire.ARPOp { return wire.ARPOp(binary.BigEndian.Uint16(f.buf[6:8])) }

// SetOperation sets the ARP operation field.
func (f Frame) SetOperation(op wire.ARPOp) { binary.BigEndian.PutUint16(f.buf[6:8], uint16(op)) }

// Sender returns the sender hardware and protocol address fields.
func (f Frame) Sender() (hw *[6]byte, proto *[4]byte) {
	return (*[6]byte)(f.buf[8:14]), (*[4]byte)(f.buf[14:18])
}

// Target returns the target hardware and protocol address fields.
func (f Frame) Target() (hw *[6]byte, proto *[4]byte) {
	return (*[6]byte)(f.buf[18:24]), (*[4]byte)(f.buf[24:28])
}

// SwapSenderTarget exchanges the sender and target address fields in place,
// the first step in turning an inbound request into a reply.
func (f Frame) SwapSenderTarget() {
	senderHW, senderProto := f.Sender()
	targetHW, targetProto := f.Target()
	*senderHW, *targetHW = *targetHW, *senderHW
	*senderProto, *targetProto = *targetProto, *senderProto
}

// ValidateSize checks the frame against the fixed Ethernet/IPv4 ARP layout.
func (f Frame) ValidateSize(v *wire.Validator) {
	if len(f.buf) < sizeHeaderIPv4Ethernet {
		v.AddError(errShort)
	}
}

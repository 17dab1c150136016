package udp

import (
	"errors"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/wire"
)

// MaxPayload is the largest UDP payload SendDatagram and
// MakeReplyFromRequest accept, chosen to fit comfortably within the
// ~550-byte buffer alongside Ethernet/IP/UDP headers. Transmit itself only
// checks that the payload fits in buf, so callers that fill the data region
// in place (the DHCP client) may write more.
const MaxPayload = 220

var (
	errPayloadTooLarge = errors.New("udp: payload exceeds MaxPayload")
	errBufferTooSmall  = errors.New("udp: buffer too small for headers")
)

// DatagramConfig names the fixed fields of an outbound UDP datagram this
// stack produces.
type DatagramConfig struct {
	DstMAC  [6]byte
	SrcMAC  [6]byte
	SrcIP   [4]byte
	DstIP   [4]byte
	SrcPort uint16
	DstPort uint16
	TTL     uint8
}

const headerLen = 14 + 20 + sizeHeader // Ethernet + IPv4 + UDP

// PrepareDatagram writes the Ethernet/IPv4/UDP headers for cfg into buf and
// returns the offset at which the caller should write payload bytes
// in-place, avoiding a second copy. Call Transmit once the payload is
// written to finalize length fields and checksum.
func PrepareDatagram(buf []byte, cfg DatagramConfig) (dataOffset int, err error) {
	if len(buf) < headerLen {
		return 0, errBufferTooSmall
	}
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}

	*efrm.DestinationHardwareAddr() = cfg.DstMAC
	*efrm.SourceHardwareAddr() = cfg.SrcMAC
	efrm.SetEtherType(wire.EtherTypeIPv4)

	ifrm.ClearHeader()
	ifrm.SetVersionIHL()
	ifrm.SetToS(0)
	ifrm.SetTTL(cfg.TTL)
	ifrm.SetProtocol(wire.IPProtoUDP)
	*ifrm.SourceAddr() = cfg.SrcIP
	*ifrm.DestinationAddr() = cfg.DstIP

	ufrm, err := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	ufrm.SetSourcePort(cfg.SrcPort)
	ufrm.SetDestinationPort(cfg.DstPort)

	return headerLen, nil
}

// Transmit finalizes a datagram prepared with PrepareDatagram once
// dataLen bytes of payload have been written starting at the offset
// PrepareDatagram returned. It fills in the IPv4 total length, UDP length,
// and both checksums, and returns the total frame length ready to hand to
// the MAC driver.
func Transmit(buf []byte, dataLen int) (frameLen int, err error) {
	if len(buf) < headerLen+dataLen {
		return 0, errBufferTooSmall
	}
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	ufrm, err := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return 0, err
	}

	udpLen := sizeHeader + dataLen
	ifrm.SetTotalLength(uint16(ifrm.HeaderLength() + udpLen))
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	ufrm.SetLength(uint16(udpLen))
	ufrm.SetCRC(0)
	crc := wire.Sum16(ifrm.PseudoHeaderSpan(), udpLen, wire.UdpPseudo)
	ufrm.SetCRC(wire.NeverZero(crc))

	return efrm.HeaderLength() + ifrm.HeaderLength() + udpLen, nil
}

// SendDatagram writes a complete UDP datagram (headers + data) into buf and
// returns the total frame length ready to hand to the MAC driver. len(data)
// must not exceed MaxPayload.
func SendDatagram(buf []byte, data []byte, cfg DatagramConfig) (frameLen int, err error) {
	off, err := PrepareDatagram(buf, cfg)
	if err != nil {
		return 0, err
	}
	if len(data) > MaxPayload {
		return 0, errPayloadTooLarge
	}
	if len(buf) < off+len(data) {
		return 0, errBufferTooSmall
	}
	n := copy(buf[off:], data)
	return Transmit(buf, n)
}

// MakeReplyFromRequest turns an already-received datagram sitting in buf
// into a reply: it swaps Ethernet/IP/UDP source and destination fields,
// sets the UDP source port to sport, overwrites the payload with data
// (capped at MaxPayload), and recomputes both checksums. It returns the
// total frame length ready to hand to the MAC driver.
func MakeReplyFromRequest(buf []byte, data []byte, sport uint16) (frameLen int, err error) {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	ufrm, err := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return 0, err
	}

	dstMAC := *efrm.SourceHardwareAddr()
	*efrm.DestinationHardwareAddr() = dstMAC

	dstIP := *ifrm.SourceAddr()
	srcIP := *ifrm.DestinationAddr()
	*ifrm.SourceAddr() = srcIP
	*ifrm.DestinationAddr() = dstIP

	dstPort := ufrm.SourcePort()
	ufrm.SetSourcePort(sport)
	ufrm.SetDestinationPort(dstPort)

	if len(data) > MaxPayload {
		data = data[:MaxPayload]
	}
	off := efrm.HeaderLength() + ifrm.HeaderLength() + sizeHeader
	if len(buf) < off+len(data) {
		return 0, errBufferTooSmall
	}
	n := copy(buf[off:], data)
	return Transmit(buf, n)
}

package tcp

import (
	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/wire"
)

// segmentConfig carries everything needed to emit one TCP segment for a
// Conn; the fields overlapping Conn are passed explicitly rather than
// reaching into the connection table, keeping send.go ignorant of Table.
type segmentConfig struct {
	dstMAC, srcMAC [6]byte
	srcIP, dstIP   [4]byte
	srcPort        uint16
	dstPort        uint16
	seq, ack       Value
	flags          Flags
	window         uint16
	mss            uint16 // 0: omit the MSS option.
	ttl            uint8
}

const headerLenNoOpts = 14 + 20 + sizeHeader

// writeSegment assembles one Ethernet/IPv4/TCP segment (plus optional data)
// into buf and returns the total frame length.
func writeSegment(buf []byte, cfg segmentConfig, data []byte) (int, error) {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}

	*efrm.DestinationHardwareAddr() = cfg.dstMAC
	*efrm.SourceHardwareAddr() = cfg.srcMAC
	efrm.SetEtherType(wire.EtherTypeIPv4)

	ifrm.ClearHeader()
	ifrm.SetVersionIHL()
	ifrm.SetTTL(cfg.ttl)
	ifrm.SetProtocol(wire.IPProtoTCP)
	*ifrm.SourceAddr() = cfg.srcIP
	*ifrm.DestinationAddr() = cfg.dstIP

	tfrm, err := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	tfrm.ClearHeader()
	tfrm.SetSourcePort(cfg.srcPort)
	tfrm.SetDestinationPort(cfg.dstPort)
	tfrm.SetSeq(cfg.seq)
	tfrm.SetAck(cfg.ack)
	tfrm.SetWindowSize(cfg.window)

	offsetWords := uint8(sizeHeader / 4)
	if cfg.mss != 0 {
		offsetWords = tfrm.SetMSSOption(cfg.mss)
	}
	tfrm.SetOffsetAndFlags(offsetWords, cfg.flags)

	hdrLen := efrm.HeaderLength() + ifrm.HeaderLength() + tfrm.HeaderLength()
	n := copy(buf[hdrLen:], data)
	segLen := tfrm.HeaderLength() + n

	ifrm.SetTotalLength(uint16(ifrm.HeaderLength() + segLen))
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	tfrm.SetCRC(0)
	crc := wire.Sum16(ifrm.PseudoHeaderSpan(), segLen, wire.TcpPseudo)
	tfrm.SetCRC(wire.NeverZero(crc))

	return efrm.HeaderLength() + ifrm.HeaderLength() + segLen, nil
}

// Package pcap decodes a single Ethernet frame from this module's shared
// buffer into a human-readable breakdown, for logging and offline capture
// inspection. It understands exactly the protocols the rest of this module
// speaks (ARP, IPv4, ICMP, UDP, TCP, and the UDP-carried DHCP/DNS/NTP
// application protocols) and nothing else: it is a diagnostic aid, not a
// general-purpose packet parser.
package pcap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hlan/mcunet/arp"
	"github.com/hlan/mcunet/dhcp"
	"github.com/hlan/mcunet/dns"
	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/ipv4/icmpv4"
	"github.com/hlan/mcunet/ntp"
	"github.com/hlan/mcunet/tcp"
	"github.com/hlan/mcunet/udp"
	"github.com/hlan/mcunet/wire"
)

var errUnknownEtherType = errors.New("pcap: unrecognized EtherType")

// PacketBreakdown is the decoded summary of one captured frame, one line
// per layer, innermost layer named Application when this module recognizes
// the port or message shape.
type PacketBreakdown struct {
	Ethernet    EthernetInfo
	ARP         *ARPInfo
	IPv4        *IPv4Info
	ICMP        *ICMPInfo
	UDP         *UDPInfo
	TCP         *TCPInfo
	Application string // One-line application-layer summary, if recognized.
}

type EthernetInfo struct {
	Dst, Src [6]byte
	EtherType wire.EtherType
}

type ARPInfo struct {
	Operation    wire.ARPOp
	SenderHW     [6]byte
	SenderProto  [4]byte
	TargetHW     [6]byte
	TargetProto  [4]byte
}

type IPv4Info struct {
	Src, Dst [4]byte
	Protocol wire.IPProto
	TTL      uint8
	ID       uint16
	Total    uint16
}

type ICMPInfo struct {
	Type icmpv4.Type
	Code uint8
}

type UDPInfo struct {
	SrcPort, DstPort uint16
	Length           uint16
}

type TCPInfo struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            tcp.Flags
	Window           uint16
}

// Decode parses buf (a complete Ethernet frame) into a PacketBreakdown.
// Any layer the stack doesn't recognize or that fails a size check leaves
// the remaining fields nil/empty rather than returning an error: a
// diagnostic dump should show what it could parse, not abort entirely.
func Decode(buf []byte) (PacketBreakdown, error) {
	var pb PacketBreakdown
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return pb, err
	}
	pb.Ethernet = EthernetInfo{
		Dst:       *efrm.DestinationHardwareAddr(),
		Src:       *efrm.SourceHardwareAddr(),
		EtherType: efrm.EtherType(),
	}

	switch efrm.EtherType() {
	case wire.EtherTypeARP:
		decodeARP(&pb, efrm.Payload())
		return pb, nil
	case wire.EtherTypeIPv4:
		decodeIPv4(&pb, efrm.Payload())
		return pb, nil
	default:
		return pb, errUnknownEtherType
	}
}

func decodeARP(pb *PacketBreakdown, payload []byte) {
	afrm, err := arp.NewFrame(payload)
	if err != nil {
		return
	}
	senderHW, senderProto := afrm.Sender()
	targetHW, targetProto := afrm.Target()
	pb.ARP = &ARPInfo{
		Operation:   afrm.Operation(),
		SenderHW:    *senderHW,
		SenderProto: *senderProto,
		TargetHW:    *targetHW,
		TargetProto: *targetProto,
	}
}

func decodeIPv4(pb *PacketBreakdown, payload []byte) {
	ifrm, err := ipv4.NewFrame(payload)
	if err != nil {
		return
	}
	pb.IPv4 = &IPv4Info{
		Src:      *ifrm.SourceAddr(),
		Dst:      *ifrm.DestinationAddr(),
		Protocol: ifrm.Protocol(),
		TTL:      ifrm.TTL(),
		ID:       ifrm.ID(),
		Total:    ifrm.TotalLength(),
	}
	transport := payload[ifrm.HeaderLength():]
	switch ifrm.Protocol() {
	case wire.IPProtoICMP:
		decodeICMP(pb, transport)
	case wire.IPProtoUDP:
		decodeUDP(pb, transport)
	case wire.IPProtoTCP:
		decodeTCP(pb, transport, int(ifrm.TotalLength())-ifrm.HeaderLength())
	}
}

func decodeICMP(pb *PacketBreakdown, payload []byte) {
	cfrm, err := icmpv4.NewFrame(payload)
	if err != nil {
		return
	}
	pb.ICMP = &ICMPInfo{Type: cfrm.Type(), Code: cfrm.Code()}
}

func decodeUDP(pb *PacketBreakdown, payload []byte) {
	ufrm, err := udp.NewFrame(payload)
	if err != nil {
		return
	}
	pb.UDP = &UDPInfo{
		SrcPort: ufrm.SourcePort(),
		DstPort: ufrm.DestinationPort(),
		Length:  ufrm.Length(),
	}
	data := ufrm.Payload()
	switch {
	case ufrm.SourcePort() == dhcp.DefaultServerPort || ufrm.DestinationPort() == dhcp.DefaultServerPort ||
		ufrm.DestinationPort() == dhcp.DefaultClientPort:
		pb.Application = decodeDHCP(data)
	case ufrm.SourcePort() == 53:
		pb.Application = decodeDNS(data)
	case ufrm.SourcePort() == 123 || ufrm.DestinationPort() == 123:
		pb.Application = decodeNTP(data)
	}
}

func decodeDHCP(data []byte) string {
	dfrm, err := dhcp.NewFrame(data)
	if err != nil {
		return ""
	}
	var msg dhcp.MessageType
	dfrm.ForEachOption(func(opt dhcp.OptNum, optData []byte) error {
		if opt == dhcp.OptMessageType && len(optData) == 1 {
			msg = dhcp.MessageType(optData[0])
		}
		return nil
	})
	return fmt.Sprintf("DHCP op=%v xid=%#x msg=%d yiaddr=%v", dfrm.Op(), dfrm.XID(), msg, *dfrm.YIAddr())
}

func decodeDNS(data []byte) string {
	txid, err := dns.TxID(data)
	if err != nil {
		return ""
	}
	flags := dns.Flags(data)
	var b strings.Builder
	fmt.Fprintf(&b, "DNS txid=%#x rcode=%d qd=%d an=%d", txid, dns.RCodeOf(flags), dns.QDCount(data), dns.ANCount(data))
	dns.ForEachAnswer(data, func(a dns.Answer) {
		fmt.Fprintf(&b, " A=%v", a.Addr)
	})
	return b.String()
}

func decodeNTP(data []byte) string {
	nfrm, err := ntp.NewFrame(data)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("NTP xmt=%s", nfrm.TransmitTimestamp())
}

func decodeTCP(pb *PacketBreakdown, payload []byte, totalSegLen int) {
	tfrm, err := tcp.NewFrame(payload)
	if err != nil {
		return
	}
	pb.TCP = &TCPInfo{
		SrcPort: tfrm.SourcePort(),
		DstPort: tfrm.DestinationPort(),
		Seq:     uint32(tfrm.Seq()),
		Ack:     uint32(tfrm.Ack()),
		Flags:   tfrm.Flags(),
		Window:  tfrm.WindowSize(),
	}
	if totalSegLen > tfrm.HeaderLength() {
		data := tfrm.Payload(totalSegLen)
		if len(data) > 0 {
			pb.Application = fmt.Sprintf("TCP payload (%d bytes)", len(data))
		}
	}
}

// String renders a one-line-per-layer human-readable summary, the shape a
// log line or a capture-file annotation uses.
func (pb PacketBreakdown) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eth %x > %x type=%v", pb.Ethernet.Src, pb.Ethernet.Dst, pb.Ethernet.EtherType)
	if pb.ARP != nil {
		fmt.Fprintf(&b, "\n  arp op=%v %v(%x) -> %v(%x)", pb.ARP.Operation,
			pb.ARP.SenderProto, pb.ARP.SenderHW, pb.ARP.TargetProto, pb.ARP.TargetHW)
	}
	if pb.IPv4 != nil {
		fmt.Fprintf(&b, "\n  ip %v > %v proto=%v ttl=%d id=%#x len=%d",
			pb.IPv4.Src, pb.IPv4.Dst, pb.IPv4.Protocol, pb.IPv4.TTL, pb.IPv4.ID, pb.IPv4.Total)
	}
	if pb.ICMP != nil {
		fmt.Fprintf(&b, "\n  icmp type=%v code=%d", pb.ICMP.Type, pb.ICMP.Code)
	}
	if pb.UDP != nil {
		fmt.Fprintf(&b, "\n  udp %d > %d len=%d", pb.UDP.SrcPort, pb.UDP.DstPort, pb.UDP.Length)
	}
	if pb.TCP != nil {
		fmt.Fprintf(&b, "\n  tcp %d > %d seq=%d ack=%d flags=%v win=%d",
			pb.TCP.SrcPort, pb.TCP.DstPort, pb.TCP.Seq, pb.TCP.Ack, pb.TCP.Flags, pb.TCP.Window)
	}
	if pb.Application != "" {
		fmt.Fprintf(&b, "\n  %s", pb.Application)
	}
	return b.String()
}

// Package wire holds the wire-format enums and primitives shared by every
// protocol package in this module: EtherType/IPProto/ARPOp constants, the
// RFC 791 one's-complement checksum engine and a small error-accumulating
// Validator used by each frame type's ValidateSize method.
package wire

// EtherType is the EtherType field of an Ethernet header.
type EtherType uint16

// IsSize returns true if et is actually the payload size of an untagged
// 802.3 frame and must not be interpreted as an EtherType.
func (et EtherType) IsSize() bool { return et <= 1500 }

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeVLAN EtherType = 0x8100
)

func (et EtherType) String() string {
	switch et {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeVLAN:
		return "VLAN"
	default:
		return "EtherType(unknown)"
	}
}

// IPProto is the protocol field of an IPv4 header.
type IPProto uint8

// Protocol numbers this stack actually dispatches on. The full IANA list
// carries hundreds of entries the single-interface stack never sees.
const (
	IPProtoICMP IPProto = 1
	IPProtoTCP  IPProto = 6
	IPProtoUDP  IPProto = 17
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "IPProto(unknown)"
	}
}

// ARPOp is the operation field of an ARP packet.
type ARPOp uint16

const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

func (op ARPOp) String() string {
	switch op {
	case ARPRequest:
		return "request"
	case ARPReply:
		return "reply"
	default:
		return "ARPOp(unknown)"
	}
}

// ToS is the IPv4 Type-of-Service / DSCP+ECN byte.
type ToS uint8

// Flags is the IPv4 flags+fragment-offset field.
type Flags uint16

func (f Flags) DontFragment() bool     { return f&0x4000 != 0 }
func (f Flags) MoreFragments() bool    { return f&0x8000 != 0 }
func (f Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }

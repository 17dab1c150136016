package arp

import (
	"log/slog"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/wire"
)

// State is the gateway-resolution flag set described in the data model:
// a small bitset rather than a linear state enum, since "AcceptArpReply"
// may be combined with either "InitialArpNeeded" or "Refreshing".
type State uint8

const (
	InitialArpNeeded State = 1 << iota
	HaveGwMac
	Refreshing
	AcceptArpReply
)

// refreshDelayPolls is how many idle polls GatewayResolver waits between
// between-frame ARP whohas emissions while InitialArpNeeded or Refreshing
// is set.
const refreshDelayPolls = 50

// GatewayResolver resolves and caches the default gateway's Ethernet
// address via ARP, per spec §4.3. It holds no reference to the shared
// packet buffer between calls.
type GatewayResolver struct {
	log      *slog.Logger
	ourMAC   [6]byte
	ourIP    [4]byte
	gwIP     [4]byte
	gwMAC    [6]byte
	state    State
	delay    int
}

// Config configures a GatewayResolver.
type Config struct {
	OurMAC  [6]byte
	OurIP   [4]byte
	GatewayIP [4]byte
	Log     *slog.Logger
}

// Reset (re)initializes the resolver to InitialArpNeeded, per spec §3:
// "startup → InitialArpNeeded".
func (r *GatewayResolver) Reset(cfg Config) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	*r = GatewayResolver{
		log:    log,
		ourMAC: cfg.OurMAC,
		ourIP:  cfg.OurIP,
		gwIP:   cfg.GatewayIP,
		state:  InitialArpNeeded,
	}
}

// GwMACReady returns true iff the cached gateway MAC is valid.
func (r *GatewayResolver) GwMACReady() bool { return r.state&HaveGwMac != 0 }

// GatewayMAC returns the cached gateway hardware address. Only valid when
// GwMACReady returns true.
func (r *GatewayResolver) GatewayMAC() [6]byte { return r.gwMAC }

// SetGatewayIP updates the configured gateway address and forces
// re-resolution, used when DHCP (re)configures the network.
func (r *GatewayResolver) SetGatewayIP(gw [4]byte) {
	r.gwIP = gw
	r.state = InitialArpNeeded
	r.gwMAC = [6]byte{}
}

// ArpWhoHas writes a broadcast ARP request for targetIP into buf (which
// must have at least 14 bytes reserved for the Ethernet header followed by
// 28 bytes for the ARP packet) and sets AcceptArpReply. It returns the
// number of bytes written, measured from the start of buf.
func (r *GatewayResolver) ArpWhoHas(buf []byte, targetIP [4]byte) (int, error) {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	afrm, err := NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	broadcast := ethernet.BroadcastAddr()
	*efrm.DestinationHardwareAddr() = broadcast
	*efrm.SourceHardwareAddr() = r.ourMAC
	efrm.SetEtherType(wire.EtherTypeARP)

	afrm.SetHardware(1, 6)
	afrm.SetProtocol(wire.EtherTypeIPv4, 4)
	afrm.SetOperation(wire.ARPRequest)
	senderHW, senderProto := afrm.Sender()
	*senderHW = r.ourMAC
	*senderProto = r.ourIP
	targetHW, targetProto := afrm.Target()
	*targetHW = [6]byte{}
	*targetProto = targetIP

	r.state |= AcceptArpReply
	return efrm.HeaderLength() + sizeHeaderIPv4Ethernet, nil
}

// gwArpWhoHas sends a who-has for the configured gateway IP.
func (r *GatewayResolver) gwArpWhoHas(buf []byte) (int, error) {
	return r.ArpWhoHas(buf, r.gwIP)
}

// HandleFrame processes an inbound ARP packet (buf points at the start of
// the Ethernet frame). If the packet is a request for our IP, it writes a
// reply in place into buf and returns the reply length. If it is a reply
// matching the configured gateway IP and AcceptArpReply is set (that is, a
// who-has has been sent), the gateway MAC cache is updated and
// (0, nil) is returned, having consumed the frame. Any other ARP traffic is
// ignored, also returning (0, nil).
func (r *GatewayResolver) HandleFrame(buf []byte) (replyLen int, err error) {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	afrm, err := NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	var vld wire.Validator
	afrm.ValidateSize(&vld)
	if vld.HasError() {
		return 0, vld.ErrPop()
	}

	switch afrm.Operation() {
	case wire.ARPRequest:
		_, targetProto := afrm.Target()
		if *targetProto != r.ourIP {
			return 0, nil // Not for us.
		}
		afrm.SwapSenderTarget()
		afrm.SetOperation(wire.ARPReply)
		senderHW, senderProto := afrm.Sender()
		*senderHW = r.ourMAC
		*senderProto = r.ourIP
		targetHW, _ := afrm.Target()
		*efrm.DestinationHardwareAddr() = *targetHW
		*efrm.SourceHardwareAddr() = r.ourMAC
		return efrm.HeaderLength() + sizeHeaderIPv4Ethernet, nil

	case wire.ARPReply:
		if r.state&AcceptArpReply == 0 {
			return 0, nil
		}
		senderHW, senderProto := afrm.Sender()
		if *senderProto != r.gwIP {
			return 0, nil // Not the gateway.
		}
		r.gwMAC = *senderHW
		r.state = HaveGwMac
		r.delay = 0
		r.log.Info("arp: gateway resolved", slog.Any("mac", r.gwMAC))
		return 0, nil

	default:
		return 0, nil
	}
}

// PollIdle runs the between-frame ARP refresh behavior: if link is up and
// (InitialArpNeeded|Refreshing) is set and the internal delay counter has
// reached zero, it emits a who-has for the gateway into buf and returns the
// length written; otherwise it decrements the delay counter and returns 0.
func (r *GatewayResolver) PollIdle(buf []byte, linkUp bool) (int, error) {
	if !linkUp || r.state&(InitialArpNeeded|Refreshing) == 0 {
		return 0, nil
	}
	if r.delay > 0 {
		r.delay--
		return 0, nil
	}
	r.delay = refreshDelayPolls
	return r.gwArpWhoHas(buf)
}

// BeginRefresh marks the gateway MAC stale and schedules a refresh ARP,
// used by periodic housekeeping outside the scope of this package.
func (r *GatewayResolver) BeginRefresh() {
	r.state |= Refreshing
	r.delay = 0
}

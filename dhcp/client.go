package dhcp

import (
	"encoding/binary"
	"log/slog"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/udp"
)

// State is the client's position in the lease acquisition/renewal cycle.
type State uint8

const (
	StateInit State = iota
	StateDiscover
	StateOffer
	StateRequest
	StateAck
	StateOk
	StateRenew
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDiscover:
		return "DISCOVER"
	case StateOffer:
		return "OFFER"
	case StateRequest:
		return "REQUEST"
	case StateAck:
		return "ACK"
	case StateOk:
		return "OK"
	case StateRenew:
		return "RENEW"
	default:
		return "State(unknown)"
	}
}

// leaseInfo holds what the client learned from the OFFER/ACK exchange.
type leaseInfo struct {
	offeredIP  [4]byte
	serverIP   [4]byte
	router     [4]byte
	subnet     [4]byte
	dns        [4]byte
	leaseSecs  uint32
	renewAt    uint32 // tick (ms) at which Renew begins: lease start plus the full lease.
}

// Client implements the DHCPv4 client exchange over this stack's shared
// buffer. It holds no reference to the buffer between calls.
type Client struct {
	log       *slog.Logger
	ourMAC    [6]byte
	hostname  string
	xid       uint32
	state     State
	lease     leaseInfo
	pollCount uint32
	retryWait uint32
}

// Config configures a Client.
type Config struct {
	OurMAC   [6]byte
	Hostname string // may include the hex MAC suffix disambiguation scheme.
	Log      *slog.Logger
}

func (c *Client) Reset(cfg Config) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	*c = Client{log: log, ourMAC: cfg.OurMAC, hostname: cfg.Hostname, state: StateInit}
}

func (c *Client) State() State { return c.state }

// Bound reports whether the client holds a usable lease (states Ok or
// Renew both count: a renewal in progress still has a valid lease).
func (c *Client) Bound() bool { return c.state == StateOk || c.state == StateRenew }

func (c *Client) OfferedIP() [4]byte { return c.lease.offeredIP }
func (c *Client) Router() [4]byte    { return c.lease.router }
func (c *Client) Subnet() [4]byte    { return c.lease.subnet }
func (c *Client) DNS() [4]byte       { return c.lease.dns }

const (
	discoverRetryPolls = 30
	headerLen          = 14 + 20 + 8 // Ethernet + IPv4 + UDP
)

// Discover begins lease acquisition: it writes a DHCPDISCOVER broadcast
// into buf and transitions Init→Discover.
func (c *Client) Discover(buf []byte) (int, error) {
	c.xid++
	c.state = StateDiscover
	c.retryWait = discoverRetryPolls
	return c.writeRequest(buf, MsgDiscover, [4]byte{})
}

// writeRequest builds a DHCPDISCOVER or DHCPREQUEST datagram, broadcast at
// the Ethernet/IP layer, addressed to the DHCP server port.
func (c *Client) writeRequest(buf []byte, msg MessageType, requestedIP [4]byte) (int, error) {
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  ethernet.BroadcastAddr(),
		SrcMAC:  c.ourMAC,
		SrcIP:   [4]byte{0, 0, 0, 0},
		DstIP:   [4]byte{255, 255, 255, 255},
		SrcPort: DefaultClientPort,
		DstPort: DefaultServerPort,
		TTL:     64,
	})
	if err != nil {
		return 0, err
	}
	dfrm, err := NewFrame(buf[off:])
	if err != nil {
		return 0, err
	}
	dfrm.ClearHeader()
	dfrm.SetOp(OpRequest)
	dfrm.SetHardware(1, 6, 0)
	dfrm.SetXID(c.xid)
	dfrm.SetFlags(FlagBroadcast)
	*dfrm.CHAddrAs6() = c.ourMAC
	dfrm.SetMagicCookie(MagicCookie)

	optOff := optionsOffset
	optOff, err = putOption(buf[off:], optOff, OptMessageType, []byte{byte(msg)})
	if err != nil {
		return 0, err
	}
	if msg == MsgRequest {
		optOff, err = putOption(buf[off:], optOff, OptRequestedIPAddress, requestedIP[:])
		if err != nil {
			return 0, err
		}
		optOff, err = putOption(buf[off:], optOff, OptServerIdentifier, c.lease.serverIP[:])
		if err != nil {
			return 0, err
		}
	}
	if c.hostname != "" {
		optOff, err = putOption(buf[off:], optOff, OptHostname, []byte(c.hostname))
		if err != nil {
			return 0, err
		}
	}
	optOff, err = putOption(buf[off:], optOff, OptParameterRequest,
		[]byte{byte(OptSubnetMask), byte(OptRouter), byte(OptDNS)})
	if err != nil {
		return 0, err
	}
	optOff, err = putOptionEnd(buf[off:], optOff)
	if err != nil {
		return 0, err
	}
	return udp.Transmit(buf, optOff)
}

// HandleDatagram processes an inbound UDP datagram that DefaultClientPort
// dispatch routed here. buf points at the start of the Ethernet frame.
func (c *Client) HandleDatagram(buf []byte) error {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return err
	}
	ufrm, err := udp.NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return err
	}
	dfrm, err := NewFrame(ufrm.Payload())
	if err != nil {
		return err
	}
	if dfrm.XID() != c.xid {
		return nil // Stale/foreign exchange, ignore.
	}

	var msgType MessageType
	var lease leaseInfo
	lease.offeredIP = *dfrm.YIAddr()
	err = dfrm.ForEachOption(func(opt OptNum, data []byte) error {
		switch opt {
		case OptMessageType:
			if len(data) == 1 {
				msgType = MessageType(data[0])
			}
		case OptServerIdentifier:
			if len(data) == 4 {
				copy(lease.serverIP[:], data)
			}
		case OptRouter:
			if len(data) >= 4 {
				copy(lease.router[:], data[:4])
			}
		case OptSubnetMask:
			if len(data) == 4 {
				copy(lease.subnet[:], data)
			}
		case OptDNS:
			if len(data) >= 4 {
				copy(lease.dns[:], data[:4])
			}
		case OptIPAddressLeaseTime:
			if len(data) == 4 {
				lease.leaseSecs = binary.BigEndian.Uint32(data)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case msgType == MsgOffer && c.state == StateDiscover:
		c.lease = lease
		c.state = StateOffer
		c.log.Info("dhcp: offer received", slog.Any("ip", lease.offeredIP))
	case msgType == MsgAck && (c.state == StateRequest || c.state == StateRenew):
		c.lease.leaseSecs = lease.leaseSecs
		if lease.serverIP != ([4]byte{}) {
			c.lease.serverIP = lease.serverIP
		}
		c.lease.renewAt = c.pollCount + lease.leaseSecs*1000
		c.state = StateOk
		c.log.Info("dhcp: lease acquired", slog.Any("ip", c.lease.offeredIP), slog.Uint64("lease_secs", uint64(lease.leaseSecs)))
	case msgType == MsgNak:
		c.state = StateInit
	}
	return nil
}

// PollIdle runs between-frame housekeeping: after an Offer, it sends the
// DHCPREQUEST; while waiting it retries Discover; once bound, it watches
// for the renewal deadline. poll is the caller's monotonic millisecond tick;
// the tick of the last PollIdle before an ACK is taken as the lease start,
// and Renew begins once poll reaches lease start plus the lease duration.
func (c *Client) PollIdle(buf []byte, poll uint32) (int, error) {
	c.pollCount = poll
	switch c.state {
	case StateInit:
		return c.Discover(buf)

	case StateDiscover:
		if c.retryWait > 0 {
			c.retryWait--
			return 0, nil
		}
		return c.Discover(buf)

	case StateOffer:
		c.state = StateRequest
		c.retryWait = discoverRetryPolls
		return c.writeRequest(buf, MsgRequest, c.lease.offeredIP)

	case StateRequest:
		if c.retryWait > 0 {
			c.retryWait--
			return 0, nil
		}
		c.state = StateInit // No ACK arrived in time; start over.
		return 0, nil

	case StateOk:
		if c.pollCount >= c.lease.renewAt {
			c.state = StateRenew
			return c.writeRequest(buf, MsgRequest, c.lease.offeredIP)
		}
		return 0, nil

	case StateRenew:
		return 0, nil

	default:
		return 0, nil
	}
}

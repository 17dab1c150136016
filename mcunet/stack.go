// Package mcunet composes the per-protocol packages in this module into a
// single dispatch loop over one caller-owned packet buffer: ARP, ICMP
// echo, UDP (DHCP/DNS/NTP/application), and TCP (client and passive
// server), matching the cooperative single-threaded scheduling model a
// microcontroller main loop runs under.
package mcunet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hlan/mcunet/arp"
	"github.com/hlan/mcunet/dhcp"
	"github.com/hlan/mcunet/dns"
	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/ipv4/icmpv4"
	"github.com/hlan/mcunet/mac"
	"github.com/hlan/mcunet/ntp"
	"github.com/hlan/mcunet/rtc"
	"github.com/hlan/mcunet/tcp"
	"github.com/hlan/mcunet/udp"
	"github.com/hlan/mcunet/wire"
)

const (
	defaultClientMSS = 550
	defaultHTTPPort  = 80
)

var broadcastIP = [4]byte{255, 255, 255, 255}

// Stack is the single-interface IPv4 network stack: one shared packet
// buffer, one dispatch entry point (Poll), no goroutines of its own. Poll
// must be called sequentially from one caller goroutine; the connection
// table, gateway cache and protocol client state machines are all
// single-writer by construction under that rule.
type Stack struct {
	log    *slog.Logger
	id     Identity
	now    func() uint64
	device mac.Device
	clock  rtc.Clock

	gw       arp.GatewayResolver
	dhcpc    dhcp.Client
	dnsc     dns.Client
	ntpc     ntp.Client
	tcpe     tcp.Engine
	commands CommandTable

	clientMSS uint16
	httpPort  uint16

	pingMonitor icmpv4.PingMonitor
	httpHandler HTTPHandler
}

// New builds a Stack from cfg and initializes the device. Init order
// follows the required bring-up sequence: mac_init happens here; the
// caller still drives DHCPAllocateIP / ResolveHostname / NTPRequest itself
// afterward in that order.
func New(cfg Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Stack{
		log:    log,
		id:     cfg.Identity,
		now:    cfg.Now,
		device: cfg.Device,
		clock:  cfg.Clock,
	}
	s.clientMSS = cfg.ClientMSS
	if s.clientMSS == 0 {
		s.clientMSS = defaultClientMSS
	}
	s.httpPort = cfg.ListeningHTTPPort
	if s.httpPort == 0 {
		s.httpPort = defaultHTTPPort
	}

	s.gw.Reset(arp.Config{OurMAC: s.id.MAC, OurIP: s.id.IP, GatewayIP: s.id.Gateway, Log: log})
	s.dhcpc.Reset(dhcp.Config{OurMAC: s.id.MAC, Hostname: dhcpHostname(s.id), Log: log})
	s.dnsc.Reset(dns.Config{OurMAC: s.id.MAC, OurIP: s.id.IP, ServerIP: s.id.DNSServer, Log: log})
	if s.clock != nil {
		s.ntpc.Reset(ntp.Config{OurMAC: s.id.MAC, OurIP: s.id.IP, ServerIP: s.id.NTPServer, Clock: s.clock, Log: log})
	}
	s.tcpe.Reset(tcp.Config{OurMAC: s.id.MAC, OurIP: s.id.IP, MSS: s.clientMSS, Log: log, OnData: s.onTCPData})
	s.commands.Reset(log)
	if err := s.tcpe.Listen(s.httpPort); err != nil {
		return nil, newError(TransportFatal, err)
	}

	if err := s.device.Init(s.id.MAC); err != nil {
		return nil, newError(TransportFatal, err)
	}
	return s, nil
}

// dhcpHostname appends two hex characters derived from the last MAC octet
// to the configured hostname, the disambiguation scheme multiple devices
// on one segment use to avoid colliding DHCP client identifiers.
func dhcpHostname(id Identity) string {
	if id.Hostname == "" {
		return ""
	}
	const hexDigits = "0123456789abcdef"
	last := id.MAC[5]
	suffix := [2]byte{hexDigits[last>>4], hexDigits[last&0xf]}
	return id.Hostname + string(suffix[:])
}

// Identity returns the stack's current network identity, reflecting any
// lease DHCPAllocateIP has bound.
func (s *Stack) Identity() Identity { return s.id }

// TCPEngine exposes the TCP engine for Listen/Connect/Send/Close calls,
// the application-facing half of the TCP API this package does not wrap
// further since its shape already matches this stack's buffer-passing
// convention.
func (s *Stack) TCPEngine() *tcp.Engine { return &s.tcpe }

// Commands returns the UDP command dispatch table so the caller can
// register application handlers before the first Poll.
func (s *Stack) Commands() *CommandTable { return &s.commands }

// SetPingMonitor installs a callback invoked for inbound ICMP echo
// replies whose payload carries the application sentinel byte, letting an
// application-initiated ping distinguish its own replies from third-party
// echo traffic this stack reflects automatically.
func (s *Stack) SetPingMonitor(fn icmpv4.PingMonitor) { s.pingMonitor = fn }

// Poll is the single dispatch entry point: buf holds n bytes of a
// just-received Ethernet frame (n == 0 runs between-frame housekeeping
// instead). Any reply is written into buf in place and sent through the
// configured mac.Device before Poll returns; PollResult.SentLen reports
// its length.
func (s *Stack) Poll(buf []byte, n int) (PollResult, error) {
	if n == 0 {
		return s.pollIdle(buf)
	}
	buf = buf[:n]

	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return PollResult{}, nil // Too short to be a frame; drop silently.
	}

	switch efrm.EtherType() {
	case wire.EtherTypeARP:
		replyLen, err := s.gw.HandleFrame(buf)
		if err != nil {
			return PollResult{}, nil
		}
		return PollResult{SentLen: replyLen}, s.send(buf, replyLen)

	case wire.EtherTypeIPv4:
		return s.pollIPv4(buf, efrm)

	default:
		return PollResult{}, nil
	}
}

// PollResult reports what Poll did with a frame: SentLen is the number of
// bytes of a reply written into buf and already sent through the device,
// or 0 if no reply was produced. TCP application
// data is not surfaced here: it is delivered synchronously through the
// HTTPHandler/CommandHandler callbacks a caller registers before Poll
// starts running.
type PollResult struct {
	SentLen int
}

func (s *Stack) pollIPv4(buf []byte, efrm ethernet.Frame) (PollResult, error) {
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return PollResult{}, nil
	}
	var vld wire.Validator
	ifrm.ValidateSize(&vld)
	ifrm.ValidateVersion(&vld)
	if vld.HasError() {
		return PollResult{}, nil // Malformed header, drop silently.
	}

	dst := *ifrm.DestinationAddr()
	forUs := dst == s.id.IP || dst == broadcastIP || s.id.IP == ([4]byte{})
	if !forUs {
		return PollResult{}, nil
	}

	switch ifrm.Protocol() {
	case wire.IPProtoICMP:
		return s.pollICMP(buf, efrm, ifrm)
	case wire.IPProtoUDP:
		return s.pollUDP(buf, efrm, ifrm)
	case wire.IPProtoTCP:
		return s.pollTCP(buf)
	default:
		return PollResult{}, nil
	}
}

func (s *Stack) pollICMP(buf []byte, efrm ethernet.Frame, ifrm ipv4.Frame) (PollResult, error) {
	cfrm, err := icmpv4.NewFrame(ifrm.Payload())
	if err != nil {
		return PollResult{}, nil
	}
	if cfrm.IsMonitoredReply() && s.pingMonitor != nil {
		s.pingMonitor(*ifrm.SourceAddr())
		return PollResult{}, nil
	}
	if cfrm.Type() != icmpv4.TypeEcho {
		return PollResult{}, nil
	}
	dstMAC := *efrm.SourceHardwareAddr()
	*efrm.DestinationHardwareAddr() = dstMAC
	*efrm.SourceHardwareAddr() = s.id.MAC
	srcIP := *ifrm.SourceAddr()
	*ifrm.SourceAddr() = *ifrm.DestinationAddr()
	*ifrm.DestinationAddr() = srcIP
	ifrm.SetTTL(64)
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	cfrm.ReflectEchoReply()
	n := efrm.HeaderLength() + int(ifrm.TotalLength())
	return PollResult{SentLen: n}, s.send(buf, n)
}

func (s *Stack) pollUDP(buf []byte, efrm ethernet.Frame, ifrm ipv4.Frame) (PollResult, error) {
	ufrm, err := udp.NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return PollResult{}, nil
	}
	var vld wire.Validator
	ufrm.ValidateSize(&vld)
	if vld.HasError() {
		return PollResult{}, nil
	}

	srcPort := ufrm.SourcePort()
	dstPort := ufrm.DestinationPort()

	switch {
	case srcPort == ntpServerPort || dstPort == ntpServerPort:
		if err := s.ntpc.HandleDatagram(buf); err != nil {
			s.log.Warn("mcunet: ntp datagram rejected", slog.Any("err", err))
		}
		return PollResult{}, nil

	case srcPort == dnsServerPort:
		if err := s.dnsc.HandleDatagram(buf); err != nil {
			s.log.Warn("mcunet: dns datagram rejected", slog.Any("err", err))
		}
		return PollResult{}, nil

	case dstPort == dhcp.DefaultClientPort || dstPort == dhcp.DefaultServerPort:
		if err := s.dhcpc.HandleDatagram(buf); err != nil {
			s.log.Warn("mcunet: dhcp datagram rejected", slog.Any("err", err))
			return PollResult{}, nil
		}
		if s.dhcpc.Bound() {
			s.applyLease()
		}
		return PollResult{}, nil

	default:
		n, err := s.commands.Dispatch(buf, dstPort, ufrm.Payload())
		if err != nil {
			return PollResult{}, nil
		}
		return PollResult{SentLen: n}, s.send(buf, n)
	}
}

func (s *Stack) pollTCP(buf []byte) (PollResult, error) {
	n, err := s.tcpe.HandleSegment(buf)
	if err != nil {
		return PollResult{}, nil
	}
	return PollResult{SentLen: n}, s.send(buf, n)
}

// pollIdle runs the between-frame housekeeping named in the dispatch
// classification order: ARP refresh, pending TCP SYN/FIN emission and
// retransmission, and DHCP/DNS retry timers. At most one outbound frame is
// produced per call, matching the "single outbound frame per poll"
// ordering guarantee.
func (s *Stack) pollIdle(buf []byte) (PollResult, error) {
	if n, err := s.dhcpc.PollIdle(buf, uint32(s.now())); err != nil {
		return PollResult{}, newError(FrameDrop, err)
	} else if n > 0 {
		return PollResult{SentLen: n}, s.send(buf, n)
	}
	if _, err := s.dnsc.PollIdle(buf); err != nil {
		s.log.Warn("mcunet: dns resolution abandoned", slog.Any("err", err))
	}
	peerMAC := func(remoteIP [4]byte) [6]byte { return s.gw.GatewayMAC() }
	if n, err := s.tcpe.PollIdle(buf, peerMAC); err != nil {
		return PollResult{}, newError(FrameDrop, err)
	} else if n > 0 {
		return PollResult{SentLen: n}, s.send(buf, n)
	}
	if n, err := s.gw.PollIdle(buf, s.device.LinkUp()); err != nil {
		return PollResult{}, newError(FrameDrop, err)
	} else if n > 0 {
		return PollResult{SentLen: n}, s.send(buf, n)
	}
	return PollResult{}, nil
}

func (s *Stack) send(buf []byte, n int) error {
	if n <= 0 {
		return nil
	}
	if err := s.device.Send(buf[:n]); err != nil {
		return newError(TransportFatal, err)
	}
	return nil
}

func (s *Stack) recvOnce(buf []byte) (PollResult, error) {
	n, err := s.device.Recv(buf)
	if err != nil {
		return PollResult{}, newError(TransportFatal, err)
	}
	return s.Poll(buf, n)
}

// applyLease copies a newly bound DHCP lease into the stack's identity,
// reconfigures the gateway resolver for the new router, and disables
// broadcast reception, matching the "on ACK" behavior.
func (s *Stack) applyLease() {
	s.id.IP = s.dhcpc.OfferedIP()
	s.id.Mask = s.dhcpc.Subnet()
	s.id.Gateway = s.dhcpc.Router()
	s.id.DNSServer = s.dhcpc.DNS()
	s.gw.SetGatewayIP(s.id.Gateway)
	s.dnsc.Reset(dns.Config{OurMAC: s.id.MAC, OurIP: s.id.IP, ServerIP: s.id.DNSServer, Log: s.log})
	s.device.DisableBroadcast()
}

const (
	ntpServerPort = 123
	dnsServerPort = 53
)

// Bounded-retry orchestration: DHCPAllocateIP, ResolveHostname and
// NTPRequest each repeatedly drive Recv+Poll from the caller's own
// goroutine, matching the "suspension points: none inside the stack"
// rule — ctx only bounds this loop, the stack's Poll never selects on it.

const (
	dhcpAttemptTimeoutMS = 10_000
	dhcpMaxAttempts      = 10
	dnsAttemptTimeoutMS  = 60_000
	dnsMaxAttempts       = 3
	ntpTimeoutMS         = 5_000
)

var (
	// ErrAllocationFailed reports DHCPAllocateIP exhausting all attempts.
	ErrAllocationFailed = errors.New("mcunet: dhcp allocation failed")
	// ErrResolutionFailed reports ResolveHostname exhausting all attempts.
	ErrResolutionFailed = errors.New("mcunet: dns resolution failed")
	// ErrNTPTimeout reports NTPRequest's single attempt going unanswered.
	ErrNTPTimeout = errors.New("mcunet: ntp request timed out")
	// ErrGatewayUnresolved is returned by orchestration helpers that need
	// the gateway MAC and it has not yet been resolved by ARP.
	ErrGatewayUnresolved = errors.New("mcunet: gateway MAC not yet resolved")
)

// DHCPAllocateIP runs the bounded DHCP lease acquisition loop: up to 10
// attempts, 10 seconds apart, each re-invoking Discover. It returns nil
// once a lease is bound (Identity reflects the new address), or
// ErrAllocationFailed wrapped in ErrKind(ProtocolTimeout) if every attempt
// times out, or ctx.Err() if the caller cancels first.
func (s *Stack) DHCPAllocateIP(ctx context.Context, buf []byte) error {
	s.dhcpc.Reset(dhcp.Config{OurMAC: s.id.MAC, Hostname: dhcpHostname(s.id), Log: s.log})
	for attempt := 0; attempt < dhcpMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.dhcpc.Discover(buf)
		if err != nil {
			return newError(FrameDrop, err)
		}
		if err := s.send(buf, n); err != nil {
			return err
		}
		deadline := s.now() + dhcpAttemptTimeoutMS
		for s.now() < deadline {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.recvOnce(buf); err != nil {
				return err
			}
			if s.dhcpc.Bound() {
				s.applyLease()
				return nil
			}
		}
	}
	return newError(ProtocolTimeout, ErrAllocationFailed)
}

// ResolveHostname resolves name to an IPv4 address: up to 3 attempts, 60
// seconds apart. It requires the gateway MAC to already be resolved (the
// DNS server is virtually always off-link).
func (s *Stack) ResolveHostname(ctx context.Context, buf []byte, name string) ([4]byte, error) {
	if !s.gw.GwMACReady() {
		return [4]byte{}, ErrGatewayUnresolved
	}
	gatewayMAC := s.gw.GatewayMAC()
	for attempt := 0; attempt < dnsMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return [4]byte{}, err
		}
		txid := uint16(s.now()) + uint16(attempt)
		n, err := s.dnsc.StartResolve(buf, gatewayMAC, txid, name)
		if err != nil {
			return [4]byte{}, newError(FrameDrop, err)
		}
		if err := s.send(buf, n); err != nil {
			return [4]byte{}, err
		}
		deadline := s.now() + dnsAttemptTimeoutMS
		for s.now() < deadline {
			if err := ctx.Err(); err != nil {
				return [4]byte{}, err
			}
			if _, err := s.recvOnce(buf); err != nil {
				return [4]byte{}, err
			}
			if s.dnsc.State() == dns.StateAnswer {
				return s.dnsc.Result(), nil
			}
		}
	}
	return [4]byte{}, newError(ProtocolTimeout, ErrResolutionFailed)
}

// NTPRequest sends a single NTP request to the configured NTP server and
// waits up to 5 seconds for a reply, applying the result to the
// configured rtc.Clock on success. It requires the gateway MAC to already
// be resolved.
func (s *Stack) NTPRequest(ctx context.Context, buf []byte) error {
	if !s.gw.GwMACReady() {
		return ErrGatewayUnresolved
	}
	if s.clock == nil {
		return errors.New("mcunet: no rtc.Clock configured")
	}
	gatewayMAC := s.gw.GatewayMAC()
	n, err := s.ntpc.Request(buf, gatewayMAC, time.Now())
	if err != nil {
		return newError(FrameDrop, err)
	}
	if err := s.send(buf, n); err != nil {
		return err
	}
	deadline := s.now() + ntpTimeoutMS
	for s.now() < deadline {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.recvOnce(buf); err != nil {
			return err
		}
		if s.ntpc.State() == ntp.StateDone {
			return nil
		}
	}
	return newError(ProtocolTimeout, ErrNTPTimeout)
}

package ntp

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/rtc"
	"github.com/hlan/mcunet/udp"
)

// State is the client's position in a single time-sync exchange.
type State uint8

const (
	StateInit State = iota
	StateRequested
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRequested:
		return "REQUESTED"
	case StateDone:
		return "DONE"
	default:
		return "State(unknown)"
	}
}

var errUnanswered = errors.New("ntp: request not yet answered")

const clientPort = 123

// Client performs a single NTP time-sync request/response exchange and
// applies the result to an rtc.Clock.
type Client struct {
	log      *slog.Logger
	ourMAC   [6]byte
	ourIP    [4]byte
	serverIP [4]byte
	clock    rtc.Clock
	state    State
	sentAt   time.Time
}

// Config configures a Client.
type Config struct {
	OurMAC   [6]byte
	OurIP    [4]byte
	ServerIP [4]byte
	Clock    rtc.Clock
	Log      *slog.Logger
}

func (c *Client) Reset(cfg Config) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	*c = Client{log: log, ourMAC: cfg.OurMAC, ourIP: cfg.OurIP, serverIP: cfg.ServerIP, clock: cfg.Clock, state: StateInit}
}

func (c *Client) State() State { return c.state }

// Request writes a one-shot NTP request into buf, addressed at the
// Ethernet layer to gatewayMAC (the default gateway, since the NTP server
// is virtually always off-link), with now as its transmit timestamp. The
// clock is later set from the server's transmit timestamp, not from now.
func (c *Client) Request(buf []byte, gatewayMAC [6]byte, now time.Time) (int, error) {
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  gatewayMAC,
		SrcMAC:  c.ourMAC,
		SrcIP:   c.ourIP,
		DstIP:   c.serverIP,
		SrcPort: clientPort,
		DstPort: clientPort,
		TTL:     64,
	})
	if err != nil {
		return 0, err
	}
	n, err := PrepareRequest(buf[off:], now)
	if err != nil {
		return 0, err
	}
	c.state = StateRequested
	c.sentAt = now
	return udp.Transmit(buf, n)
}

// HandleDatagram processes an inbound UDP datagram the dispatch loop
// routed here (source UDP port 123). It sets the rtc.Clock from the
// server's transmit timestamp directly: round-trip delay is ignored since
// the target RTC has no sub-second resolution to benefit from correcting
// it.
func (c *Client) HandleDatagram(buf []byte) error {
	if c.state != StateRequested {
		return nil
	}
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
	frm, err := NewFrame(ufrm.Payload())
	if err != nil {
		return err
	}

	serverTime := frm.TransmitTimestamp()
	c.applyTime(serverTime)
	c.state = StateDone
	c.log.Info("ntp: clock synchronized", slog.Time("server_time", serverTime))
	return nil
}

func (c *Client) applyTime(t time.Time) {
	c.clock.SetDate(t.Year(), uint8(t.Month()), uint8(t.Day()), uint8(t.Weekday()))
	c.clock.SetTime(uint8(t.Hour()), uint8(t.Minute()), uint8(t.Second()))
}

// PollIdle reports whether the request has gone unanswered; this one-shot
// client makes no retry, leaving retry policy to the caller's
// bounded-retry orchestration.
func (c *Client) PollIdle() error {
	if c.state == StateRequested {
		return errUnanswered
	}
	return nil
}

package dns

import (
	"errors"
	"log/slog"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/udp"
)

// State is the client's position in a single name resolution.
type State uint8

const (
	StateInit State = iota
	StateRequested
	StateAnswer
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRequested:
		return "REQUESTED"
	case StateAnswer:
		return "ANSWER"
	default:
		return "State(unknown)"
	}
}

var (
	errBusy       = errors.New("dns: a resolution is already in progress")
	errNoAnswer   = errors.New("dns: no A record in the answer")
	errNotReady   = errors.New("dns: no answer available yet")
)

// srcPortBase is ORed with the transaction ID's low byte to produce the
// ephemeral source port for a query, so the reply's destination port alone
// is enough to recover which outstanding query it answers, the same
// identifier-reuse trick this stack's other one-shot clients use.
const srcPortBase = 0xE000

const requestTimeoutPolls = 30

// Client resolves one hostname to an A record at a time.
type Client struct {
	log       *slog.Logger
	ourMAC    [6]byte
	ourIP     [4]byte
	serverIP  [4]byte
	state     State
	txid      uint16
	name      string
	result    [4]byte
	retryWait uint32
}

// Config configures a Client.
type Config struct {
	OurMAC   [6]byte
	OurIP    [4]byte
	ServerIP [4]byte
	Log      *slog.Logger
}

func (c *Client) Reset(cfg Config) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	*c = Client{log: log, ourMAC: cfg.OurMAC, ourIP: cfg.OurIP, serverIP: cfg.ServerIP, state: StateInit}
}

func (c *Client) State() State { return c.state }

// Result returns the resolved address. Only valid once State returns
// StateAnswer.
func (c *Client) Result() [4]byte { return c.result }

// SourcePort returns the ephemeral port this resolution used, derived from
// the transaction ID.
func (c *Client) SourcePort() uint16 { return srcPortBase | uint16(byte(c.txid)) }

// StartResolve begins resolving name, writing the outbound query into buf
// addressed at the Ethernet layer to gatewayMAC (the configured DNS
// server is virtually always off-link). txid's low byte becomes this
// resolution's ephemeral source port.
func (c *Client) StartResolve(buf []byte, gatewayMAC [6]byte, txid uint16, name string) (int, error) {
	if c.state == StateRequested {
		return 0, errBusy
	}
	c.txid = txid
	c.name = name
	c.state = StateRequested
	c.retryWait = requestTimeoutPolls

	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  gatewayMAC,
		SrcMAC:  c.ourMAC,
		SrcIP:   c.ourIP,
		DstIP:   c.serverIP,
		SrcPort: c.SourcePort(),
		DstPort: 53,
		TTL:     64,
	})
	if err != nil {
		return 0, err
	}
	n, err := EncodeQuestion(buf[off:], txid, name)
	if err != nil {
		return 0, err
	}
	return udp.Transmit(buf, n)
}

// HandleDatagram processes an inbound UDP datagram the dispatch loop
// routed to this client because its source port is 53; the reply is
// matched to the outstanding query by transaction ID alone.
// buf points at the start of the Ethernet frame.
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
	msg := ufrm.Payload()
	txid, err := TxID(msg)
	if err != nil {
		return err
	}
	if txid != c.txid {
		return nil // Foreign/stale reply, ignore.
	}

	var found bool
	err = ForEachAnswer(msg, func(a Answer) {
		if !found {
			c.result = a.Addr
			found = true
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return errNoAnswer
	}
	c.state = StateAnswer
	c.log.Info("dns: resolved", slog.String("name", c.name), slog.Any("addr", c.result))
	return nil
}

// PollIdle abandons the outstanding query once requestTimeoutPolls idle
// polls pass without an answer, returning to Init and reporting
// errNotReady. It never resends the query; repeating the resolution is up
// to the caller.
func (c *Client) PollIdle(buf []byte) (int, error) {
	if c.state != StateRequested {
		return 0, nil
	}
	if c.retryWait > 0 {
		c.retryWait--
		return 0, nil
	}
	c.state = StateInit
	return 0, errNotReady
}

package tcp

import (
	"errors"
	"log/slog"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
)

// defaultWindow is the receive window this stack advertises: one shared
// buffer's worth of room, never more, since there is no reassembly queue.
const defaultWindow = 550

// defaultMSS is the fallback client MSS when Config.MSS is left zero.
const defaultMSS = 550

// retransmitAfterPolls bounds how long a connection waits for an ACK: after
// this many idle polls without one, a bare ACK carrying the oldest
// unacknowledged sequence number is sent once (the segment's data and
// SYN/FIN flags are not resent, since no copy is kept); after twice this
// many the slot is released without sending an RST.
const retransmitAfterPolls = 40

var (
	errNoSuchConn  = errors.New("tcp: no matching connection")
	errNotEstablished = errors.New("tcp: connection not established")
)

// Engine runs the single-threaded TCP state machine over a fixed Table: at
// most one outstanding (unacknowledged) segment per connection, and no
// retransmission queue.
type Engine struct {
	log      *slog.Logger
	table    Table
	ourMAC   [6]byte
	ourIP    [4]byte
	isn      Value
	sessions ClientSession
	onData   func(c *Conn, data []byte) (reply []byte, closeConn bool)
	mss      uint16
}

// Config configures an Engine.
type Config struct {
	OurMAC [6]byte
	OurIP  [4]byte
	Log    *slog.Logger

	// MSS is offered on outbound SYNs and SYN-ACKs; 0 selects defaultMSS.
	MSS uint16

	// OnData, if non-nil, is invoked with the payload of every inbound
	// segment carrying data on an Established connection. A non-nil
	// reply is piggybacked onto the same ACK as a PSH+ACK segment;
	// closeConn additionally sets FIN on it and begins an active close,
	// matching the single-response-then-close HTTP callback contract.
	// This is the seam the application-level HTTP handler hangs off
	// rather than the engine reaching into application concerns itself.
	OnData func(c *Conn, data []byte) (reply []byte, closeConn bool)
}

func (e *Engine) Reset(cfg Config) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	mss := cfg.MSS
	if mss == 0 {
		mss = defaultMSS
	}
	*e = Engine{log: log, ourMAC: cfg.OurMAC, ourIP: cfg.OurIP, onData: cfg.OnData, mss: mss}
}

// Table returns the engine's connection table, for inspection by tests and
// orchestration code.
func (e *Engine) Table() *Table { return &e.table }

// nextISN advances the initial-sequence-number generator by 3 per
// connection opened; the increment is arbitrary but deterministic
// rather than a time-derived ISN.
func (e *Engine) nextISN() Value {
	v := e.isn
	e.isn = e.isn.Add(3)
	return v
}

// Listen opens a passive slot on localPort.
func (e *Engine) Listen(localPort uint16) error {
	_, err := e.table.Listen(localPort)
	return err
}

// Connect opens an active connection to (dstIP, dstPort) using an
// ephemeral source port allocated from the ClientSession fd namespace. The
// initial SYN is not sent here; it is emitted on the next PollIdle.
func (e *Engine) Connect(fd uint8, dstIP [4]byte, dstPort uint16) (*Conn, error) {
	srcPort, err := e.sessions.Open(fd)
	if err != nil {
		return nil, err
	}
	c, err := e.table.FindFree()
	if err != nil {
		e.sessions.Close(srcPort)
		return nil, err
	}
	isn := e.nextISN()
	*c = Conn{
		State:      StateSynSent,
		LocalIP:    e.ourIP,
		LocalPort:  srcPort,
		RemoteIP:   dstIP,
		RemotePort: dstPort,
		SndNxt:     isn.Add(1),
		SndUna:     isn,
		MSS:        e.mss,
		pendingSYN: true,
		unackedSeq: isn,
		fd:         fd,
	}
	return c, nil
}

// segCfgFor builds the segmentConfig to reply to/continue a connection
// given the peer's MAC, which the caller recovers from the inbound
// Ethernet frame (this stack has no ARP cache keyed by arbitrary IP, only
// the default gateway's).
func (e *Engine) segCfgFor(c *Conn, peerMAC [6]byte, flags Flags, seq, ack Value, mss uint16) segmentConfig {
	return segmentConfig{
		dstMAC:  peerMAC,
		srcMAC:  e.ourMAC,
		srcIP:   c.LocalIP,
		dstIP:   c.RemoteIP,
		srcPort: c.LocalPort,
		dstPort: c.RemotePort,
		seq:     seq,
		ack:     ack,
		flags:   flags,
		window:  defaultWindow,
		mss:     mss,
		ttl:     64,
	}
}

// HandleSegment processes one inbound Ethernet frame containing a TCP
// segment. buf points at the start of the Ethernet frame; it may be
// overwritten in place with a reply. Unmatched segments (no listener, no
// open connection) receive an RST per RFC 793 §3.4, unless they are
// themselves an RST.
func (e *Engine) HandleSegment(buf []byte) (replyLen int, err error) {
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return 0, err
	}
	ifrm, err := ipv4.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	tfrm, err := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		return 0, err
	}
	totalSegLen := int(ifrm.TotalLength()) - ifrm.HeaderLength()
	peerMAC := *efrm.SourceHardwareAddr()
	peerIP := *ifrm.SourceAddr()
	flags := tfrm.Flags()
	localPort := tfrm.DestinationPort()
	remotePort := tfrm.SourcePort()

	c := e.table.Find(localPort, peerIP, remotePort)
	if c == nil {
		if l := e.table.FindListener(localPort); l != nil && flags.Has(FlagSYN) {
			return e.acceptSYN(buf, efrm, ifrm, tfrm, l, peerIP, peerMAC, remotePort)
		}
		if !flags.Has(FlagRST) {
			return e.sendRST(buf, efrm, ifrm, tfrm, peerMAC)
		}
		return 0, nil
	}

	c.LocalIP = *ifrm.DestinationAddr()

	if flags.Has(FlagRST) {
		e.releaseConn(c)
		return 0, nil
	}

	seg := tfrm.Seq()
	dataLen := totalSegLen - tfrm.HeaderLength()

	switch c.State {
	case StateSynSent:
		if flags.Has(FlagSYN) && flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			c.RcvNxt = seg.Add(1)
			c.SndUna = c.SndNxt
			c.awaitingAck = false
			c.State = StateEstablished
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		return 0, nil

	case StateSynReceived:
		if flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			c.SndUna = c.SndNxt
			c.awaitingAck = false
			c.State = StateEstablished
		}
		return 0, nil

	case StateEstablished:
		if dataLen > 0 {
			var reply []byte
			var closeConn bool
			if e.onData != nil {
				reply, closeConn = e.onData(c, tfrm.Payload(totalSegLen))
			}
			c.RcvNxt = seg.Add(dataLen)
			if len(reply) > 0 || closeConn {
				flags := FlagPSH | FlagACK
				if closeConn {
					flags |= FlagFIN
				}
				cfg := e.segCfgFor(c, peerMAC, flags, c.SndNxt, c.RcvNxt, 0)
				n, err := writeSegment(buf, cfg, reply)
				if err != nil {
					return 0, err
				}
				c.unackedSeq = c.SndNxt
				c.SndNxt = c.SndNxt.Add(len(reply))
				if closeConn {
					c.SndNxt = c.SndNxt.Add(1)
					c.State = StateFinWait1
				}
				c.awaitingAck = true
				return n, nil
			}
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		if flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			c.SndUna = c.SndNxt
			c.awaitingAck = false
		}
		if flags.Has(FlagFIN) {
			c.RcvNxt = seg.Add(1)
			c.State = StateCloseWait
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		return 0, nil

	case StateFinWait1:
		if flags.Has(FlagFIN) && flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			c.RcvNxt = seg.Add(1)
			c.State = StateTimeWait
			c.awaitingAck = false
			c.timeWaitDelay = timeWaitPolls
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		if flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			c.State = StateFinWait2
			c.awaitingAck = false
		}
		if flags.Has(FlagFIN) {
			c.RcvNxt = seg.Add(1)
			c.State = StateClosing
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		return 0, nil

	case StateFinWait2:
		if flags.Has(FlagFIN) {
			c.RcvNxt = seg.Add(1)
			c.State = StateTimeWait
			c.timeWaitDelay = timeWaitPolls
			cfg := e.segCfgFor(c, peerMAC, FlagACK, c.SndNxt, c.RcvNxt, 0)
			return writeSegment(buf, cfg, nil)
		}
		return 0, nil

	case StateClosing, StateLastAck:
		if flags.Has(FlagACK) && tfrm.Ack() == c.SndNxt {
			e.releaseConn(c)
		}
		return 0, nil

	default:
		return 0, nil
	}
}

func (e *Engine) acceptSYN(buf []byte, efrm ethernet.Frame, ifrm ipv4.Frame, tfrm Frame, listener *Conn, peerIP [4]byte, peerMAC [6]byte, remotePort uint16) (int, error) {
	c, err := e.table.FindFree()
	if err != nil {
		return e.sendRST(buf, efrm, ifrm, tfrm, peerMAC)
	}
	isn := e.nextISN()
	mss := int(e.mss)
	if peerMSS, err := tfrm.MSSOption(); err == nil && peerMSS < uint16(mss) {
		mss = int(peerMSS)
	}
	*c = Conn{
		State:      StateSynReceived,
		LocalIP:    *ifrm.DestinationAddr(),
		LocalPort:  listener.LocalPort,
		RemoteIP:   peerIP,
		RemotePort: remotePort,
		RcvNxt:     tfrm.Seq().Add(1),
		SndNxt:     isn.Add(1),
		SndUna:     isn,
		MSS:        uint16(mss),
		awaitingAck: true,
		unackedSeq: isn,
	}
	cfg := e.segCfgFor(c, peerMAC, FlagSYN|FlagACK, isn, c.RcvNxt, uint16(mss))
	return writeSegment(buf, cfg, nil)
}

func (e *Engine) sendRST(buf []byte, efrm ethernet.Frame, ifrm ipv4.Frame, tfrm Frame, peerMAC [6]byte) (int, error) {
	cfg := segmentConfig{
		dstMAC:  peerMAC,
		srcMAC:  e.ourMAC,
		srcIP:   *ifrm.DestinationAddr(),
		dstIP:   *ifrm.SourceAddr(),
		srcPort: tfrm.DestinationPort(),
		dstPort: tfrm.SourcePort(),
		seq:     tfrm.Ack(),
		ack:     0,
		flags:   FlagRST,
		window:  0,
		ttl:     64,
	}
	return writeSegment(buf, cfg, nil)
}

func (e *Engine) releaseConn(c *Conn) {
	if c.LocalPort>>8 == clientSrcPortHigh {
		e.sessions.Close(c.LocalPort)
	}
	*c = Conn{}
}

// Send writes outbound data on an Established connection (PSH+ACK) into
// buf and marks the segment awaiting acknowledgement; only one such
// segment may be outstanding per connection at a time, per the data
// model's no-retransmit-buffer invariant.
func (e *Engine) Send(buf []byte, c *Conn, peerMAC [6]byte, data []byte) (int, error) {
	if c.State != StateEstablished {
		return 0, errNotEstablished
	}
	if c.awaitingAck {
		return 0, errors.New("tcp: segment already in flight")
	}
	cfg := e.segCfgFor(c, peerMAC, FlagPSH|FlagACK, c.SndNxt, c.RcvNxt, 0)
	n, err := writeSegment(buf, cfg, data)
	if err != nil {
		return 0, err
	}
	c.unackedSeq = c.SndNxt
	c.SndNxt = c.SndNxt.Add(len(data))
	c.awaitingAck = true
	return n, nil
}

// Close begins an active close on c: a FIN is queued and emitted by the
// first PollIdle at which no segment on c is awaiting acknowledgement.
func (e *Engine) Close(c *Conn) {
	if c.State == StateEstablished {
		c.State = StateFinWait1
	} else if c.State == StateCloseWait {
		c.State = StateLastAck
	}
	c.pendingFIN = true
}

// PollIdle runs between-frame housekeeping for every open connection: it
// emits queued SYNs/FINs that have not yet been sent, sends one bare ACK at
// the oldest unacknowledged sequence number if no ACK has arrived after
// retransmitAfterPolls idle polls (the unacknowledged data itself is not
// resent), and releases the connection without an RST after twice that
// many polls. peerMAC resolves the next-hop Ethernet address for
// a connection's remote IP (the default gateway, for any off-link peer).
// It writes at most one segment into buf per call.
func (e *Engine) PollIdle(buf []byte, peerMAC func(remoteIP [4]byte) [6]byte) (int, error) {
	var n int
	var err error
	e.table.Each(func(c *Conn) {
		if n != 0 || err != nil {
			return
		}
		mac := peerMAC(c.RemoteIP)
		switch {
		case c.pendingSYN:
			c.pendingSYN = false
			c.awaitingAck = true
			cfg := e.segCfgFor(c, mac, FlagSYN, c.unackedSeq, 0, e.mss)
			n, err = writeSegment(buf, cfg, nil)
		case c.pendingFIN && !c.awaitingAck:
			c.pendingFIN = false
			c.awaitingAck = true
			c.unackedSeq = c.SndNxt
			cfg := e.segCfgFor(c, mac, FlagFIN|FlagACK, c.SndNxt, c.RcvNxt, 0)
			n, err = writeSegment(buf, cfg, nil)
			c.SndNxt = c.SndNxt.Add(1)
		case c.awaitingAck:
			c.timeWaitDelay++
			if c.timeWaitDelay == retransmitAfterPolls {
				cfg := e.segCfgFor(c, mac, FlagACK, c.unackedSeq, c.RcvNxt, 0)
				n, err = writeSegment(buf, cfg, nil)
			} else if c.timeWaitDelay > retransmitAfterPolls*2 {
				e.log.Warn("tcp: giving up on unacknowledged segment", slog.Any("remote", c.RemoteAddrPort()))
				e.releaseConn(c)
			}
		case c.State == StateTimeWait:
			c.timeWaitDelay--
			if c.timeWaitDelay <= 0 {
				e.releaseConn(c)
			}
		}
	})
	return n, err
}

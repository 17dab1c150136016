package tcp

import (
	"errors"
	"net/netip"
)

// State is a TCP connection's position in the RFC 793 state machine,
// trimmed to the states this stack's single-shot engine actually visits:
// there is no passive Listen-without-a-backing-slot, and Closed frees the
// slot immediately rather than lingering.
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "State(unknown)"
	}
}

// timeWaitPolls bounds how long a closed connection blocks its (localIP,
// localPort, remoteIP, remotePort) tuple from reuse, measured in idle
// polls rather than wall-clock time since the engine has no timer.
const timeWaitPolls = 100

// Conn is one fixed slot in a Table. A zero-value Conn is StateClosed and
// free for reuse.
type Conn struct {
	State      State
	LocalIP    [4]byte
	LocalPort  uint16
	RemoteIP   [4]byte
	RemotePort uint16

	SndNxt Value // Next sequence number we will send.
	SndUna Value // Oldest unacknowledged sequence number we sent.
	RcvNxt Value // Next sequence number expected from peer.

	MSS uint16

	pendingSYN    bool // Active-open SYN not yet transmitted.
	pendingFIN    bool
	awaitingAck   bool // A segment was sent and has not yet been ACKed.
	unackedSeq    Value
	timeWaitDelay int

	// fd identifies the application-level handle this connection serves;
	// ClientSession encodes the same value into the ephemeral LocalPort.
	fd uint8
}

func (c *Conn) matches(localPort uint16, remoteIP [4]byte, remotePort uint16) bool {
	return c.State != StateClosed &&
		c.LocalPort == localPort &&
		c.RemoteIP == remoteIP &&
		c.RemotePort == remotePort
}

var errTableFull = errors.New("tcp: connection table full")

// Table is the fixed-size connection table described in the data model: a
// small array of slots, never a map, so memory use is bounded at compile
// time regardless of traffic.
type Table struct {
	conns [10]Conn
}

// NumSlots is how many simultaneous connections a Table holds.
const NumSlots = 10

// Find returns the slot matching the 4-tuple, or nil if none is open.
func (t *Table) Find(localPort uint16, remoteIP [4]byte, remotePort uint16) *Conn {
	for i := range t.conns {
		if t.conns[i].matches(localPort, remoteIP, remotePort) {
			return &t.conns[i]
		}
	}
	return nil
}

// FindListener returns a slot in StateListen bound to localPort, if any.
func (t *Table) FindListener(localPort uint16) *Conn {
	for i := range t.conns {
		if t.conns[i].State == StateListen && t.conns[i].LocalPort == localPort {
			return &t.conns[i]
		}
	}
	return nil
}

// FindFree returns a free (StateClosed) slot, or an error if the table is
// full. Per the data model invariant, no two open slots ever share a
// 4-tuple; callers must check Find first.
func (t *Table) FindFree() (*Conn, error) {
	for i := range t.conns {
		if t.conns[i].State == StateClosed {
			return &t.conns[i], nil
		}
	}
	return nil, errTableFull
}

// Listen opens a passive slot on localPort. It fails if the table is full
// or localPort already has a listener.
func (t *Table) Listen(localPort uint16) (*Conn, error) {
	if t.FindListener(localPort) != nil {
		return nil, errors.New("tcp: already listening on port")
	}
	c, err := t.FindFree()
	if err != nil {
		return nil, err
	}
	*c = Conn{State: StateListen, LocalPort: localPort}
	return c, nil
}

// Each calls fn for every open (non-Closed) connection slot.
func (t *Table) Each(fn func(*Conn)) {
	for i := range t.conns {
		if t.conns[i].State != StateClosed {
			fn(&t.conns[i])
		}
	}
}

// LocalAddrPort reports a Conn's local endpoint using net/netip, the
// boundary type this stack's non-wire APIs use.
func (c *Conn) LocalAddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(c.LocalIP), c.LocalPort)
}

// RemoteAddrPort reports a Conn's remote endpoint.
func (c *Conn) RemoteAddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(c.RemoteIP), c.RemotePort)
}

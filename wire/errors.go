package wire

// ErrKind is the closed error taxonomy for this stack: frame drop, protocol
// timeout, TCP reset and transport fatal. The protocol packages return
// concrete sentinel errors; the root mcunet package reports these same four
// categories through its own mcunet.ErrKind rather than this type.
type ErrKind uint8

const (
	_ ErrKind = iota // zero value is non-initialized
	// FrameDrop: malformed header, bad checksum, wrong destination, or an
	// unknown TCP connection in a non-SYN state. Locally recoverable; the
	// caller simply drops the frame and returns.
	FrameDrop
	// ProtocolTimeout: DHCP/DNS retries exhausted. The orchestration helper
	// returns false/an error; the caller decides whether to retry again.
	ProtocolTimeout
	// TCPReset: remote sent RST, or the local state machine transitioned to
	// Closed unexpectedly.
	TCPReset
	// TransportFatal: the MAC bus transaction itself failed. The stack is
	// unusable until the caller resets it.
	TransportFatal
)

func (k ErrKind) Error() string { return k.String() }

func (k ErrKind) String() string {
	switch k {
	case FrameDrop:
		return "frame dropped"
	case ProtocolTimeout:
		return "protocol timeout"
	case TCPReset:
		return "tcp reset"
	case TransportFatal:
		return "transport fatal"
	default:
		return "ErrKind(uninitialized)"
	}
}

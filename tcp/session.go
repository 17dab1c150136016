package tcp

import "errors"

// clientSrcPortHigh is the fixed high byte of every ephemeral port this
// stack allocates for outbound TCP connections, keeping them in a
// distinguishable range from the well-known ports servers listen on.
const clientSrcPortHigh = 11

var errTooManySessions = errors.New("tcp: too many concurrent client sessions")

// ClientSession packs an application file-descriptor into the low byte of
// an ephemeral source port, so the engine can recover which caller a
// connection belongs to from the port alone: port = clientSrcPortHigh<<8 |
// (fd<<5 | counter&0x1F). The 3 fd bits and 5-bit counter cap this stack at
// 8 concurrently open client descriptors with up to 32 sequential
// connections each before a counter wraps and risks colliding with a
// still-open TIME_WAIT session.
type ClientSession struct {
	counters [8]uint8
	open     [256]bool // indexed by the port's low byte; no heap allocation.
}

// Open allocates a fresh ephemeral port for fd (0..7).
func (s *ClientSession) Open(fd uint8) (uint16, error) {
	if fd > 7 {
		return 0, errTooManySessions
	}
	for try := 0; try < 32; try++ {
		counter := s.counters[fd]
		s.counters[fd] = (counter + 1) & 0x1f
		low := fd<<5 | counter&0x1f
		if !s.open[low] {
			s.open[low] = true
			return uint16(clientSrcPortHigh)<<8 | uint16(low), nil
		}
	}
	return 0, errTooManySessions
}

// Close releases a port allocated by Open, making it eligible for reuse.
func (s *ClientSession) Close(port uint16) {
	s.open[byte(port)] = false
}

// FD extracts the file-descriptor this stack encoded into an ephemeral
// client port.
func FD(port uint16) uint8 {
	return uint8(port>>5) & 0x7
}

// Package tcp implements a fixed-size-table, no-retransmit-buffer TCP
// engine (RFC 793) suited to a single-threaded poll loop: one shared
// buffer, a handful of connection slots, and at most one unacknowledged
// segment in flight per connection.
package tcp

import "strings"

// Flags is the 6-bit control-flags field of a TCP header (the upper
// reserved/NS bits this stack never sets are ignored on read).
type Flags uint8

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "<none>"
	}
	var b strings.Builder
	add := func(name string, bit Flags) {
		if f&bit != 0 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(name)
		}
	}
	add("FIN", FlagFIN)
	add("SYN", FlagSYN)
	add("RST", FlagRST)
	add("PSH", FlagPSH)
	add("ACK", FlagACK)
	add("URG", FlagURG)
	return b.String()
}

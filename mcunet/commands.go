package mcunet

import (
	"errors"
	"log/slog"

	"github.com/hlan/mcunet/udp"
)

var errCommandTableFull = errors.New("mcunet: command table full")

// maxCommands bounds the dispatch table the way the connection table and
// DHCP lease are bounded: a fixed array, no map, no allocation per frame.
const maxCommands = 16

// CommandHandler is invoked when an inbound UDP datagram's payload begins
// with the registered command name. It returns the bytes to reply with
// and whether a reply should be sent at all (a handler may act purely for
// side effect and decline to answer).
type CommandHandler func(payload []byte) (response []byte, ok bool)

type commandEntry struct {
	name    string
	handler CommandHandler
}

// CommandTable is the fixed (name, handler) dispatch table matched against
// the inbound UDP payload prefix: no handler failure is fatal to the
// stack, and an unmatched datagram is logged and dropped rather than
// answered.
type CommandTable struct {
	log     *slog.Logger
	entries [maxCommands]commandEntry
	count   int
}

func (t *CommandTable) Reset(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	*t = CommandTable{log: log}
}

// Register adds a (name, handler) pair to the table. It returns an error
// if the table is already at maxCommands.
func (t *CommandTable) Register(name string, handler CommandHandler) error {
	if t.count >= maxCommands {
		return errCommandTableFull
	}
	t.entries[t.count] = commandEntry{name: name, handler: handler}
	t.count++
	return nil
}

// Dispatch matches payload's prefix against the registered command names
// in registration order and, on a match whose handler both returns ok and
// a non-empty response, writes the reply into buf in place (swapping
// Ethernet/IP/UDP source and destination) and returns its length. A miss
// logs and returns (0, nil); a declining handler returns (0, nil) without
// logging. Neither is a fatal frame drop, per the "no handler is fatal"
// rule.
func (t *CommandTable) Dispatch(buf []byte, sourcePort uint16, payload []byte) (int, error) {
	for i := 0; i < t.count; i++ {
		e := t.entries[i]
		if len(payload) < len(e.name) || string(payload[:len(e.name)]) != e.name {
			continue
		}
		resp, ok := e.handler(payload)
		if !ok || len(resp) == 0 {
			return 0, nil
		}
		return udp.MakeReplyFromRequest(buf, resp, sourcePort)
	}
	t.log.Warn("mcunet: unexpected UDP message", slog.Int("len", len(payload)))
	return 0, nil
}

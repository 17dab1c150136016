// Package dns implements a single-outstanding-query DNS client (RFC 1035):
// enough to resolve one A record at a time, reusing the low byte of the
// transaction ID as the ephemeral source port the way this stack's other
// one-shot protocol clients reuse identifiers across layers.
package dns

import (
	"encoding/binary"
	"errors"
)

const headerSize = 12

// Type is a DNS RR type. Only A is used by this client's query path; others
// are recognized so ForEachAnswer can skip past them.
type Type uint16

const (
	TypeA     Type = 1
	TypeCNAME Type = 5
)

// Class is a DNS RR class.
type Class uint16

const ClassINET Class = 1

var (
	errShortMessage = errors.New("dns: message too short")
	errBadName      = errors.New("dns: malformed name")
	errBadPointer   = errors.New("dns: compression pointer out of range")
)

// EncodeQuestion writes a single-question DNS query for name (an A
// record, class IN) into buf, with the given 16-bit transaction ID, and
// returns the number of bytes written.
func EncodeQuestion(buf []byte, txid uint16, name string) (int, error) {
	if len(buf) < headerSize {
		return 0, errShortMessage
	}
	binary.BigEndian.PutUint16(buf[0:2], txid)
	binary.BigEndian.PutUint16(buf[2:4], 0x0100) // RD (recursion desired).
	binary.BigEndian.PutUint16(buf[4:6], 1)      // QDCOUNT.
	binary.BigEndian.PutUint16(buf[6:8], 0)
	binary.BigEndian.PutUint16(buf[8:10], 0)
	binary.BigEndian.PutUint16(buf[10:12], 0)

	off := headerSize
	n, err := encodeName(buf[off:], name)
	if err != nil {
		return 0, err
	}
	off += n
	if off+4 > len(buf) {
		return 0, errShortMessage
	}
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(TypeA))
	binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(ClassINET))
	return off + 4, nil
}

// encodeName writes name as a sequence of length-prefixed labels
// terminated by a zero byte; this client never emits compression
// pointers, only reads them.
func encodeName(buf []byte, name string) (int, error) {
	off := 0
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			label := name[start:i]
			if len(label) == 0 || len(label) > 63 {
				return 0, errBadName
			}
			if off+1+len(label) > len(buf) {
				return 0, errShortMessage
			}
			buf[off] = byte(len(label))
			copy(buf[off+1:], label)
			off += 1 + len(label)
			start = i + 1
		}
	}
	if off >= len(buf) {
		return 0, errShortMessage
	}
	buf[off] = 0
	return off + 1, nil
}

// TxID reads the transaction ID of a DNS message.
func TxID(msg []byte) (uint16, error) {
	if len(msg) < headerSize {
		return 0, errShortMessage
	}
	return binary.BigEndian.Uint16(msg[0:2]), nil
}

// RCode is the 4-bit response code of the header flags.
type RCode uint8

func Flags(msg []byte) uint16 { return binary.BigEndian.Uint16(msg[2:4]) }

// RCodeOf extracts the response code from a header flags value.
func RCodeOf(flags uint16) RCode { return RCode(flags & 0xf) }

func QDCount(msg []byte) uint16 { return binary.BigEndian.Uint16(msg[4:6]) }
func ANCount(msg []byte) uint16 { return binary.BigEndian.Uint16(msg[6:8]) }

// skipName advances past a (possibly compressed) name starting at off and
// returns the offset immediately following it. Compression pointers (top
// two bits 11) always point backward and terminate the name; per RFC 1035
// §4.1.4 they may only appear as the final element.
func skipName(msg []byte, off int) (int, error) {
	for {
		if off >= len(msg) {
			return 0, errShortMessage
		}
		lead := msg[off]
		switch {
		case lead&0xc0 == 0xc0:
			if off+1 >= len(msg) {
				return 0, errBadPointer
			}
			return off + 2, nil
		case lead == 0:
			return off + 1, nil
		default:
			off += 1 + int(lead)
		}
	}
}

// readName decodes a (possibly compressed) name starting at off into a
// dotted string, following at most five compression pointer hops, each of
// which must point backwards in msg.
func readName(msg []byte, off int) (string, error) {
	var out []byte
	hops := 0
	for {
		if off >= len(msg) {
			return "", errShortMessage
		}
		lead := msg[off]
		if lead&0xc0 == 0xc0 {
			if off+1 >= len(msg) {
				return "", errBadPointer
			}
			hops++
			if hops > 5 {
				return "", errBadPointer
			}
			ptr := int(lead&0x3f)<<8 | int(msg[off+1])
			if ptr >= off {
				return "", errBadPointer
			}
			off = ptr
			continue
		}
		if lead == 0 {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			return string(out), nil
		}
		n := int(lead)
		if off+1+n > len(msg) {
			return "", errBadName
		}
		out = append(out, msg[off+1:off+1+n]...)
		out = append(out, '.')
		off += 1 + n
	}
}

// Answer is a decoded A-record resource, the only RR type this client
// surfaces to callers.
type Answer struct {
	Name string
	TTL  uint32
	Addr [4]byte
}

// ForEachAnswer walks the answer section of msg, calling fn for each A
// record found (other RR types are skipped). It assumes exactly one
// question, matching what EncodeQuestion produces.
func ForEachAnswer(msg []byte, fn func(Answer)) error {
	if len(msg) < headerSize {
		return errShortMessage
	}
	qd := QDCount(msg)
	an := ANCount(msg)
	off := headerSize
	for i := uint16(0); i < qd; i++ {
		next, err := skipName(msg, off)
		if err != nil {
			return err
		}
		off = next + 4 // TYPE + CLASS.
	}
	for i := uint16(0); i < an; i++ {
		name, err := readName(msg, off)
		if err != nil {
			return err
		}
		next, err := skipName(msg, off)
		if err != nil {
			return err
		}
		off = next
		if off+10 > len(msg) {
			return errShortMessage
		}
		typ := Type(binary.BigEndian.Uint16(msg[off : off+2]))
		ttl := binary.BigEndian.Uint32(msg[off+4 : off+8])
		rdlen := int(binary.BigEndian.Uint16(msg[off+8 : off+10]))
		off += 10
		if off+rdlen > len(msg) {
			return errShortMessage
		}
		if typ == TypeA && rdlen == 4 {
			var a Answer
			a.Name = name
			a.TTL = ttl
			copy(a.Addr[:], msg[off:off+4])
			fn(a)
		}
		off += rdlen
	}
	return nil
}

// Package ntp implements a one-shot NTPv4 client-mode request (RFC 5905):
// a fixed 48-byte payload sent once per time sync, with no polling
// interval negotiation or clock discipline, the minimum needed to seed an
// rtc.Clock at startup.
package ntp

import (
	"encoding/binary"
	"errors"
	"time"
)

const sizeHeader = 48

var errShort = errors.New("ntp: short buffer")

// clientHeader is the fixed first 10 bytes of an outbound client-mode
// request: LI=0 (no warning), VN=4, Mode=3 (client); Stratum=0 (unspecified);
// Poll=4; Precision=-6 (0xfa); RootDelay=0x00010001; RootDispersion's first
// two bytes zero (PrepareRequest zeroes the rest).
var clientHeader = [10]byte{0xe3, 0x00, 0x04, 0xfa, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}

// Frame is a view over an NTP packet.
type Frame struct {
	buf []byte
}

// NewFrame returns a Frame backed by buf, which must be at least 48 bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// PrepareRequest writes the fixed client-mode request header and a
// transmit timestamp derived from txTime into buf, leaving the rest of the
// 48-byte payload zeroed as this client never populates reference or
// receive timestamps on send. It returns 48.
func PrepareRequest(buf []byte, txTime time.Time) (int, error) {
	if len(buf) < sizeHeader {
		return 0, errShort
	}
	for i := range buf[:sizeHeader] {
		buf[i] = 0
	}
	copy(buf[:10], clientHeader[:])
	sec, frac := toNTPTime(txTime)
	binary.BigEndian.PutUint32(buf[40:44], sec)
	binary.BigEndian.PutUint32(buf[44:48], frac)
	return sizeHeader, nil
}

// TransmitTimestamp returns the server's transmit timestamp field (the
// field this client's one-shot model actually needs) converted to a Go
// time.
func (f Frame) TransmitTimestamp() time.Time {
	sec := binary.BigEndian.Uint32(f.buf[40:44])
	frac := binary.BigEndian.Uint32(f.buf[44:48])
	return fromNTPTime(sec, frac)
}

// OriginTimestamp echoes what this client put in its request's transmit
// field (RFC 5905's "Origin Timestamp"). Client.HandleDatagram does not
// check it.
func (f Frame) OriginTimestamp() time.Time {
	sec := binary.BigEndian.Uint32(f.buf[24:28])
	frac := binary.BigEndian.Uint32(f.buf[28:32])
	return fromNTPTime(sec, frac)
}

// ntpUnixDelta is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpUnixDelta = 2208988800

func toNTPTime(t time.Time) (sec, frac uint32) {
	u := t.Unix()
	sec = uint32(u + ntpUnixDelta)
	frac = uint32((uint64(t.Nanosecond()) << 32) / 1e9)
	return sec, frac
}

func fromNTPTime(sec, frac uint32) time.Time {
	unixSec := int64(sec) - ntpUnixDelta
	nsec := (int64(frac) * 1e9) >> 32
	return time.Unix(unixSec, nsec).UTC()
}

// Package syslog implements a minimal RFC 5424-flavored UDP log transport
// over this stack's own udp package, so a deployed device can ship log
// records to a collector without a TCP connection or local storage.
package syslog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hlan/mcunet/udp"
)

// Severity mirrors the syslog PRI severity values this stack actually
// emits; facility is always fixed at "local0" (16), this being a single
// embedded application with no multi-facility need.
type Severity uint8

const (
	SeverityError Severity = 3
	SeverityWarn  Severity = 4
	SeverityInfo  Severity = 6
	SeverityDebug Severity = 7
)

const facilityLocal0 = 16

func priority(sev Severity) int { return facilityLocal0*8 + int(sev) }

// Transport formats and sends log records as UDP syslog datagrams. It
// holds no socket; every call to Send prepares one datagram directly into
// the caller's shared buffer, consistent with every other sender in this
// module.
type Transport struct {
	hostname string
	appName  string
	srcMAC   [6]byte
	srcIP    [4]byte
	dstMAC   [6]byte
	dstIP    [4]byte
	dstPort  uint16
}

// Config configures a Transport.
type Config struct {
	Hostname string
	AppName  string
	SrcMAC   [6]byte
	SrcIP    [4]byte
	DstMAC   [6]byte // The collector's next-hop MAC (gateway, if off-link).
	DstIP    [4]byte
	DstPort  uint16 // 0 selects 514, the standard syslog UDP port.
}

func (t *Transport) Reset(cfg Config) {
	port := cfg.DstPort
	if port == 0 {
		port = 514
	}
	*t = Transport{
		hostname: cfg.Hostname,
		appName:  cfg.AppName,
		srcMAC:   cfg.SrcMAC,
		srcIP:    cfg.SrcIP,
		dstMAC:   cfg.DstMAC,
		dstIP:    cfg.DstIP,
		dstPort:  port,
	}
}

// Send writes one syslog datagram for msg into buf and returns the total
// frame length. now is the record's timestamp, taken from an rtc.Clock by
// the caller since this package has no clock of its own.
func (t *Transport) Send(buf []byte, sev Severity, now time.Time, msg string) (int, error) {
	line := fmt.Sprintf("<%d>1 %s %s %s - - - %s",
		priority(sev), now.UTC().Format(time.RFC3339), t.hostname, t.appName, msg)
	return udp.SendDatagram(buf, []byte(line), udp.DatagramConfig{
		DstMAC:  t.dstMAC,
		SrcMAC:  t.srcMAC,
		SrcIP:   t.srcIP,
		DstIP:   t.dstIP,
		SrcPort: 514,
		DstPort: t.dstPort,
		TTL:     64,
	})
}

// Handler adapts a Transport into a slog.Handler, so application and
// stack logging can be routed to the syslog collector the same way any
// other slog.Handler would be attached.
type Handler struct {
	transport *Transport
	buf       []byte
	sendErr   func(error)
	attrs     []slog.Attr
	minLevel  slog.Level
}

// NewHandler returns a Handler writing through transport using scratch as
// its working buffer (must outlive the Handler and not be shared with
// concurrent callers, per this stack's single-threaded poll loop). sendErr,
// if non-nil, is called when a Send fails rather than silently dropping
// the record.
func NewHandler(transport *Transport, scratch []byte, minLevel slog.Level, sendErr func(error)) *Handler {
	return &Handler{transport: transport, buf: scratch, minLevel: minLevel, sendErr: sendErr}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.minLevel }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	_, err := h.transport.Send(h.buf, levelToSeverity(r.Level), r.Time, b.String())
	if err != nil && h.sendErr != nil {
		h.sendErr(err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{transport: h.transport, buf: h.buf, sendErr: h.sendErr, minLevel: h.minLevel,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *Handler) WithGroup(name string) slog.Handler { return h }

func levelToSeverity(lvl slog.Level) Severity {
	switch {
	case lvl >= slog.LevelError:
		return SeverityError
	case lvl >= slog.LevelWarn:
		return SeverityWarn
	case lvl >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

package mcunet

import (
	"testing"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/udp"
)

func buildCommandDatagram(t *testing.T, payload []byte, dstPort uint16) []byte {
	t.Helper()
	buf := make([]byte, 600)
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  [6]byte{1, 1, 1, 1, 1, 1},
		SrcMAC:  [6]byte{2, 2, 2, 2, 2, 2},
		SrcIP:   [4]byte{10, 0, 0, 5},
		DstIP:   [4]byte{10, 0, 0, 1},
		SrcPort: 9000,
		DstPort: dstPort,
		TTL:     64,
	})
	if err != nil {
		t.Fatal(err)
	}
	n := copy(buf[off:], payload)
	frameLen, err := udp.Transmit(buf, n)
	if err != nil {
		t.Fatal(err)
	}
	return buf[:frameLen]
}

func payloadOf(t *testing.T, frame []byte) []byte {
	t.Helper()
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	ifrm, err := ipv4.NewFrame(frame[efrm.HeaderLength():])
	if err != nil {
		t.Fatal(err)
	}
	ufrm, err := udp.NewFrame(frame[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		t.Fatal(err)
	}
	return ufrm.Payload()
}

func TestCommandTable_MatchAndReply(t *testing.T) {
	var tbl CommandTable
	tbl.Reset(nil)

	if err := tbl.Register("PING", func(payload []byte) ([]byte, bool) {
		return []byte("PONG"), true
	}); err != nil {
		t.Fatal(err)
	}

	req := buildCommandDatagram(t, []byte("PING"), 7000)
	n, err := tbl.Dispatch(req, 7000, payloadOf(t, req))
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a reply")
	}
	got := payloadOf(t, req[:n])
	if string(got) != "PONG" {
		t.Fatalf("got reply %q, want PONG", got)
	}
}

func TestCommandTable_UnmatchedIsDroppedNotFatal(t *testing.T) {
	var tbl CommandTable
	tbl.Reset(nil)
	if err := tbl.Register("PING", func(payload []byte) ([]byte, bool) { return []byte("PONG"), true }); err != nil {
		t.Fatal(err)
	}

	req := buildCommandDatagram(t, []byte("NOPE"), 7000)
	n, err := tbl.Dispatch(req, 7000, payloadOf(t, req))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("expected no reply for an unmatched command")
	}
}

func TestCommandTable_DecliningHandlerSendsNothing(t *testing.T) {
	var tbl CommandTable
	tbl.Reset(nil)
	if err := tbl.Register("RESET", func(payload []byte) ([]byte, bool) { return nil, false }); err != nil {
		t.Fatal(err)
	}

	req := buildCommandDatagram(t, []byte("RESET"), 7000)
	n, err := tbl.Dispatch(req, 7000, payloadOf(t, req))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("expected no reply from a declining handler")
	}
}

func TestCommandTable_RegisterFullTable(t *testing.T) {
	var tbl CommandTable
	tbl.Reset(nil)
	noop := func(payload []byte) ([]byte, bool) { return nil, false }
	for i := 0; i < maxCommands; i++ {
		if err := tbl.Register("X", noop); err != nil {
			t.Fatalf("unexpected error registering entry %d: %v", i, err)
		}
	}
	if err := tbl.Register("OVERFLOW", noop); err != errCommandTableFull {
		t.Fatalf("got %v, want errCommandTableFull", err)
	}
}

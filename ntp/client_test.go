package ntp

import (
	"testing"
	"time"

	"github.com/hlan/mcunet/rtc"
	"github.com/hlan/mcunet/udp"
)

var (
	ourMAC   = [6]byte{0, 1, 2, 3, 4, 5}
	ourIP    = [4]byte{192, 168, 0, 100}
	serverIP = [4]byte{192, 168, 0, 1}
)

func TestClient_RequestThenSync(t *testing.T) {
	clock := rtc.NewFake()
	var c Client
	c.Reset(Config{OurMAC: ourMAC, OurIP: ourIP, ServerIP: serverIP, Clock: clock})

	buf := make([]byte, 128)
	now := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)
	gatewayMAC := [6]byte{9, 9, 9, 9, 9, 9}
	n, err := c.Request(buf, gatewayMAC, now)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || c.State() != StateRequested {
		t.Fatalf("expected request to be sent, state=%v", c.State())
	}

	// Build a server reply.
	reply := make([]byte, 128)
	off, err := udp.PrepareDatagram(reply, udp.DatagramConfig{
		DstMAC: ourMAC, SrcMAC: [6]byte{9, 9, 9, 9, 9, 9},
		SrcIP: serverIP, DstIP: ourIP, SrcPort: clientPort, DstPort: clientPort, TTL: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	serverTime := time.Date(2026, time.July, 31, 12, 0, 5, 0, time.UTC)
	pn, err := PrepareRequest(reply[off:], serverTime)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := udp.Transmit(reply, pn)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.HandleDatagram(reply[:fn]); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateDone {
		t.Fatalf("expected DONE, got %v", c.State())
	}
	y, mo, d, h, m, s, err := clock.Now()
	if err != nil {
		t.Fatal(err)
	}
	if y != 2026 || mo != uint8(time.July) || d != 31 {
		t.Fatalf("bad date applied: %d-%d-%d", y, mo, d)
	}
	if h != 12 || m != 0 || s != 5 {
		t.Fatalf("bad time applied: %02d:%02d:%02d", h, m, s)
	}
}

func TestNTPTimeRoundTrip(t *testing.T) {
	want := time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC)
	sec, frac := toNTPTime(want)
	got := fromNTPTime(sec, frac)
	if !got.Equal(want) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
}

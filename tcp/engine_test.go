package tcp

import (
	"testing"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
)

var (
	ourMAC  = [6]byte{0, 0, 0, 0, 0, 1}
	ourIP   = [4]byte{192, 168, 0, 100}
	peerMAC = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	peerIP  = [4]byte{192, 168, 0, 50}
)

func newEngine() *Engine {
	var e Engine
	e.Reset(Config{OurMAC: ourMAC, OurIP: ourIP})
	return &e
}

// Scenario E: passive open completes the three-way handshake.
func TestEngine_PassiveOpenHandshake(t *testing.T) {
	e := newEngine()
	if err := e.Listen(80); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 256)

	// Client SYN arrives.
	cfg := segmentConfig{dstMAC: ourMAC, srcMAC: peerMAC, srcIP: peerIP, dstIP: ourIP,
		srcPort: 4000, dstPort: 80, seq: Value(1000), flags: FlagSYN, window: 1024, mss: 536, ttl: 64}
	n, err := writeSegment(buf, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	replyLen, err := e.HandleSegment(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if replyLen == 0 {
		t.Fatal("expected a SYN-ACK reply")
	}
	efrm, _ := ethernet.NewFrame(buf[:replyLen])
	ifrm, _ := ipv4.NewFrame(buf[efrm.HeaderLength():])
	tfrm, _ := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if !tfrm.Flags().Has(FlagSYN) || !tfrm.Flags().Has(FlagACK) {
		t.Fatalf("expected SYN|ACK, got %v", tfrm.Flags())
	}
	if tfrm.Ack() != Value(1001) {
		t.Fatalf("bad ack: %v", tfrm.Ack())
	}

	c := e.Table().Find(80, peerIP, 4000)
	if c == nil || c.State != StateSynReceived {
		t.Fatal("expected connection in SYN_RECEIVED")
	}
	isn := tfrm.Seq()

	// Client ACKs the SYN-ACK.
	cfg2 := segmentConfig{dstMAC: ourMAC, srcMAC: peerMAC, srcIP: peerIP, dstIP: ourIP,
		srcPort: 4000, dstPort: 80, seq: Value(1001), ack: isn.Add(1), flags: FlagACK, window: 1024, ttl: 64}
	n2, err := writeSegment(buf, cfg2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.HandleSegment(buf[:n2]); err != nil {
		t.Fatal(err)
	}
	if c.State != StateEstablished {
		t.Fatalf("expected ESTABLISHED, got %v", c.State)
	}
}

// Scenario F: active open via Connect, then data exchange.
func TestEngine_ActiveOpenAndData(t *testing.T) {
	e := newEngine()
	c, err := e.Connect(0, peerIP, 80)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 256)
	peerMACOf := func([4]byte) [6]byte { return peerMAC }

	n, err := e.PollIdle(buf, peerMACOf)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected the queued SYN to be emitted")
	}
	efrm, _ := ethernet.NewFrame(buf[:n])
	ifrm, _ := ipv4.NewFrame(buf[efrm.HeaderLength():])
	tfrm, _ := NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	if tfrm.Flags() != FlagSYN {
		t.Fatalf("expected bare SYN, got %v", tfrm.Flags())
	}
	clientISN := tfrm.Seq()

	// Server SYN-ACKs.
	serverISN := Value(9000)
	cfg := segmentConfig{dstMAC: ourMAC, srcMAC: peerMAC, srcIP: peerIP, dstIP: ourIP,
		srcPort: 80, dstPort: c.LocalPort, seq: serverISN, ack: clientISN.Add(1),
		flags: FlagSYN | FlagACK, window: 1024, mss: 536, ttl: 64}
	n2, _ := writeSegment(buf, cfg, nil)
	replyLen, err := e.HandleSegment(buf[:n2])
	if err != nil {
		t.Fatal(err)
	}
	if replyLen == 0 {
		t.Fatal("expected final ACK of handshake")
	}
	if c.State != StateEstablished {
		t.Fatalf("expected ESTABLISHED, got %v", c.State)
	}

	if _, err := e.Send(buf, c, peerMAC, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	if !c.awaitingAck {
		t.Fatal("expected data segment to be awaiting ack")
	}
}

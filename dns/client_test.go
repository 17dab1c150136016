package dns

import (
	"testing"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/udp"
)

var (
	ourMAC   = [6]byte{0, 1, 2, 3, 4, 5}
	ourIP    = [4]byte{192, 168, 0, 100}
	serverIP = [4]byte{192, 168, 0, 1}
)

func buildAnswer(t *testing.T, txid uint16, srcPort uint16, name string, addr [4]byte) []byte {
	t.Helper()
	buf := make([]byte, 512)
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  ourMAC,
		SrcMAC:  [6]byte{9, 9, 9, 9, 9, 9},
		SrcIP:   serverIP,
		DstIP:   ourIP,
		SrcPort: 53,
		DstPort: srcPort,
		TTL:     64,
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := EncodeQuestion(buf[off:], txid, name)
	if err != nil {
		t.Fatal(err)
	}
	msg := buf[off:]
	// Flip QR bit and bump ANCOUNT before appending the answer RR.
	msg[2] |= 0x80
	msg[7] = 1

	aoff := n
	// Name: a compression pointer back to the question's name at offset 12.
	msg[aoff] = 0xc0
	msg[aoff+1] = 12
	aoff += 2
	msg[aoff] = 0
	msg[aoff+1] = byte(TypeA)
	msg[aoff+2] = 0
	msg[aoff+3] = byte(ClassINET)
	aoff += 4
	msg[aoff], msg[aoff+1], msg[aoff+2], msg[aoff+3] = 0, 0, 1, 0x2c // TTL 300
	aoff += 4
	msg[aoff], msg[aoff+1] = 0, 4 // RDLENGTH
	aoff += 2
	copy(msg[aoff:aoff+4], addr[:])
	aoff += 4

	fn, err := udp.Transmit(buf, aoff)
	if err != nil {
		t.Fatal(err)
	}
	return buf[:fn]
}

// Scenario D: StartResolve -> server answer -> StateAnswer with the
// resolved address.
func TestClient_ResolveScenario(t *testing.T) {
	var c Client
	c.Reset(Config{OurMAC: ourMAC, OurIP: ourIP, ServerIP: serverIP})

	buf := make([]byte, 512)
	txid := uint16(0x1234)
	gatewayMAC := [6]byte{9, 9, 9, 9, 9, 9}
	n, err := c.StartResolve(buf, gatewayMAC, txid, "example.mcunet.local")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || c.State() != StateRequested {
		t.Fatalf("expected a query to be sent, state=%v", c.State())
	}

	wantAddr := [4]byte{10, 0, 0, 7}
	reply := buildAnswer(t, txid, c.SourcePort(), "example.mcunet.local", wantAddr)

	efrm, _ := ethernet.NewFrame(reply)
	ifrm, _ := ipv4.NewFrame(reply[efrm.HeaderLength():])
	ufrm, _ := udp.NewFrame(reply[efrm.HeaderLength()+ifrm.HeaderLength():])
	if ufrm.DestinationPort() != c.SourcePort() {
		t.Fatalf("reply port mismatch: got %d want %d", ufrm.DestinationPort(), c.SourcePort())
	}

	if err := c.HandleDatagram(reply); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateAnswer {
		t.Fatalf("expected ANSWER, got %v", c.State())
	}
	if c.Result() != wantAddr {
		t.Fatalf("bad resolved address: %v", c.Result())
	}
}

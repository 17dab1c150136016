package arp

import (
	"testing"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/wire"
)

var (
	ourMAC = [6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	ourIP  = [4]byte{192, 168, 0, 100}
	gwIP   = [4]byte{192, 168, 0, 1}
	gwMAC  = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
)

func newResolver() *GatewayResolver {
	var r GatewayResolver
	r.Reset(Config{OurMAC: ourMAC, OurIP: ourIP, GatewayIP: gwIP})
	return &r
}

// Default gateway ARP resolution: idle poll emits a who-has, a reply populates the cache.
func TestGatewayResolver_Scenario(t *testing.T) {
	r := newResolver()
	buf := make([]byte, 64)

	n, err := r.PollIdle(buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected an ARP whohas on first idle poll")
	}
	efrm, _ := ethernet.NewFrame(buf)
	afrm, _ := NewFrame(buf[efrm.HeaderLength():])
	if afrm.Operation() != wire.ARPRequest {
		t.Fatalf("expected request, got %v", afrm.Operation())
	}
	senderHW, senderProto := afrm.Sender()
	if *senderHW != ourMAC || *senderProto != ourIP {
		t.Fatalf("bad sender fields: %v %v", *senderHW, *senderProto)
	}
	targetHW, targetProto := afrm.Target()
	if *targetHW != ([6]byte{}) || *targetProto != gwIP {
		t.Fatalf("bad target fields: %v %v", *targetHW, *targetProto)
	}
	if r.GwMACReady() {
		t.Fatal("should not be ready yet")
	}

	// Inject a reply from the gateway.
	efrm2, _ := ethernet.NewFrame(buf)
	afrm2, _ := NewFrame(buf[efrm2.HeaderLength():])
	afrm2.SetOperation(wire.ARPReply)
	sHW, sProto := afrm2.Sender()
	*sHW, *sProto = gwMAC, gwIP
	tHW, tProto := afrm2.Target()
	*tHW, *tProto = ourMAC, ourIP

	_, err = r.HandleFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !r.GwMACReady() {
		t.Fatal("expected gateway MAC to be ready")
	}
	if r.GatewayMAC() != gwMAC {
		t.Fatalf("gateway MAC mismatch: %v", r.GatewayMAC())
	}
}

// Invariant 2: ARP echo for our own IP.
func TestGatewayResolver_EchoesRequestForOurIP(t *testing.T) {
	r := newResolver()
	buf := make([]byte, 64)
	efrm, _ := ethernet.NewFrame(buf)
	afrm, _ := NewFrame(buf[efrm.HeaderLength():])
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(wire.EtherTypeIPv4, 4)
	afrm.SetOperation(wire.ARPRequest)
	peerMAC := [6]byte{1, 2, 3, 4, 5, 6}
	peerIP := [4]byte{10, 0, 0, 5}
	sHW, sProto := afrm.Sender()
	*sHW, *sProto = peerMAC, peerIP
	_, tProto := afrm.Target()
	*tProto = ourIP

	n, err := r.HandleFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected a reply to be generated")
	}
	replyEth, _ := ethernet.NewFrame(buf)
	replyArp, _ := NewFrame(buf[replyEth.HeaderLength():])
	if replyArp.Operation() != wire.ARPReply {
		t.Fatal("expected reply opcode")
	}
	replySenderHW, replySenderProto := replyArp.Sender()
	if *replySenderHW != ourMAC || *replySenderProto != ourIP {
		t.Fatal("reply sender should be us")
	}
	replyTargetHW, replyTargetProto := replyArp.Target()
	if *replyTargetHW != peerMAC || *replyTargetProto != peerIP {
		t.Fatal("reply target should be the original sender")
	}
}

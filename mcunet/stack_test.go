package mcunet

import (
	"testing"

	"github.com/hlan/mcunet/arp"
	"github.com/hlan/mcunet/dhcp"
	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/mac"
	"github.com/hlan/mcunet/udp"
	"github.com/hlan/mcunet/wire"
)

var testMAC = [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

func newTestStack(t *testing.T, dev mac.Device) *Stack {
	t.Helper()
	var tick uint64
	s, err := New(Config{
		Identity: Identity{MAC: testMAC, Hostname: "devkit"},
		Now:      func() uint64 { tick++; return tick },
		Device:   dev,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error for a zero-value Config")
	}
}

func TestDhcpHostname_AppendsMACSuffix(t *testing.T) {
	id := Identity{MAC: [6]byte{0, 0, 0, 0, 0, 0xAB}, Hostname: "devkit"}
	got := dhcpHostname(id)
	if got != "devkitab" {
		t.Fatalf("got %q, want %q", got, "devkitab")
	}
	if dhcpHostname(Identity{MAC: id.MAC}) != "" {
		t.Fatal("expected no suffix appended to an empty hostname")
	}
}

// putDHCPOption appends one TLV option to buf at off, mirroring the
// package-internal helper dhcp.putOption (unexported, so this package
// cannot call it directly when acting as a DHCP server for a test).
func putDHCPOption(buf []byte, off int, opt dhcp.OptNum, data []byte) int {
	buf[off] = byte(opt)
	buf[off+1] = byte(len(data))
	copy(buf[off+2:], data)
	return off + 2 + len(data)
}

// buildDHCPReply crafts a minimal OFFER or ACK addressed back at the
// client whose request is in reqFrame.
func buildDHCPReply(t *testing.T, reqFrame []byte, msg dhcp.MessageType, offeredIP, router, subnet, dnsServer [4]byte) []byte {
	t.Helper()
	efrm, err := ethernet.NewFrame(reqFrame)
	if err != nil {
		t.Fatal(err)
	}
	ifrm, err := ipv4.NewFrame(reqFrame[efrm.HeaderLength():])
	if err != nil {
		t.Fatal(err)
	}
	ufrm, err := udp.NewFrame(reqFrame[efrm.HeaderLength()+ifrm.HeaderLength():])
	if err != nil {
		t.Fatal(err)
	}
	reqDHCP, err := dhcp.NewFrame(ufrm.Payload())
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 600)
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  testMAC,
		SrcMAC:  [6]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa},
		SrcIP:   [4]byte{192, 168, 1, 1},
		DstIP:   [4]byte{255, 255, 255, 255},
		SrcPort: dhcp.DefaultServerPort,
		DstPort: dhcp.DefaultClientPort,
		TTL:     64,
	})
	if err != nil {
		t.Fatal(err)
	}
	dfrm, err := dhcp.NewFrame(buf[off:])
	if err != nil {
		t.Fatal(err)
	}
	dfrm.ClearHeader()
	dfrm.SetOp(dhcp.OpReply)
	dfrm.SetXID(reqDHCP.XID())
	*dfrm.YIAddr() = offeredIP
	*dfrm.CHAddrAs6() = testMAC
	dfrm.SetMagicCookie(dhcp.MagicCookie)

	optOff := 240 // dhcp.optionsOffset, fixed BOOTP header size.
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptMessageType, []byte{byte(msg)})
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptServerIdentifier, []byte{192, 168, 1, 1})
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptRouter, router[:])
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptSubnetMask, subnet[:])
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptDNS, dnsServer[:])
	optOff = putDHCPOption(buf[off:], optOff, dhcp.OptIPAddressLeaseTime, []byte{0, 0, 0x0e, 0x10}) // 3600s
	buf[off+optOff] = 255                                                                           // OptEnd
	optOff++

	n, err := udp.Transmit(buf, optOff)
	if err != nil {
		t.Fatal(err)
	}
	return buf[:n]
}

// buildARPReply answers a who-has frame with senderIP/senderMAC.
func buildARPReply(t *testing.T, whoHas []byte, senderMAC [6]byte, senderIP [4]byte) []byte {
	t.Helper()
	buf := append([]byte(nil), whoHas...)
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	afrm, err := arp.NewFrame(buf[efrm.HeaderLength():])
	if err != nil {
		t.Fatal(err)
	}
	afrm.SwapSenderTarget()
	afrm.SetOperation(wire.ARPReply)
	sHW, sProto := afrm.Sender()
	*sHW = senderMAC
	*sProto = senderIP
	*efrm.DestinationHardwareAddr() = testMAC
	*efrm.SourceHardwareAddr() = senderMAC
	return buf
}

// Scenario: DHCP lease acquisition through Stack.Poll, followed by the
// gateway ARP resolution the new lease triggers.
func TestStack_DHCPBringupThenARPResolution(t *testing.T) {
	dev := mac.NewLoopbackDevice(4)
	s := newTestStack(t, dev)
	buf := make([]byte, 600)

	// Idle poll drives the DHCP client from Init, emitting a DISCOVER.
	res, err := s.Poll(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.SentLen == 0 {
		t.Fatal("expected a DISCOVER to be sent")
	}
	discover := append([]byte(nil), buf[:res.SentLen]...)
	if dev.Pending() != 1 {
		t.Fatalf("expected the DISCOVER queued on the device, pending=%d", dev.Pending())
	}
	drained := make([]byte, 600)
	dev.Recv(drained) // Drain it, simulating it having gone out on the wire.

	router := [4]byte{192, 168, 1, 1}
	subnet := [4]byte{255, 255, 255, 0}
	dnsServer := [4]byte{192, 168, 1, 1}
	offeredIP := [4]byte{192, 168, 1, 77}

	offer := buildDHCPReply(t, discover, dhcp.MsgOffer, offeredIP, router, subnet, dnsServer)
	if _, err := s.Poll(append([]byte(nil), offer...), len(offer)); err != nil {
		t.Fatal(err)
	}

	// Idle poll drives the DHCP client from Offer to Request.
	res, err = s.Poll(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.SentLen == 0 {
		t.Fatal("expected a REQUEST to be sent")
	}
	request := append([]byte(nil), buf[:res.SentLen]...)
	dev.Recv(drained)

	ack := buildDHCPReply(t, request, dhcp.MsgAck, offeredIP, router, subnet, dnsServer)
	if _, err := s.Poll(append([]byte(nil), ack...), len(ack)); err != nil {
		t.Fatal(err)
	}

	id := s.Identity()
	if id.IP != offeredIP {
		t.Fatalf("got bound IP %v, want %v", id.IP, offeredIP)
	}
	if id.Gateway != router {
		t.Fatalf("got gateway %v, want %v", id.Gateway, router)
	}
	if id.DNSServer != dnsServer {
		t.Fatalf("got dns server %v, want %v", id.DNSServer, dnsServer)
	}

	// The newly bound gateway should now trigger an ARP who-has on the
	// next idle poll.
	res, err = s.Poll(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.SentLen == 0 {
		t.Fatal("expected an ARP who-has for the new gateway")
	}
	whoHas := append([]byte(nil), buf[:res.SentLen]...)
	efrm, err := ethernet.NewFrame(whoHas)
	if err != nil {
		t.Fatal(err)
	}
	if efrm.EtherType() != wire.EtherTypeARP {
		t.Fatalf("expected an ARP frame, got EtherType %v", efrm.EtherType())
	}
	dev.Recv(drained)

	gwMAC := [6]byte{1, 2, 3, 4, 5, 6}
	arpReply := buildARPReply(t, whoHas, gwMAC, router)
	if _, err := s.Poll(append([]byte(nil), arpReply...), len(arpReply)); err != nil {
		t.Fatal(err)
	}
	if !s.gw.GwMACReady() {
		t.Fatal("expected the gateway MAC to be resolved")
	}
	if s.gw.GatewayMAC() != gwMAC {
		t.Fatalf("got gateway MAC %v, want %v", s.gw.GatewayMAC(), gwMAC)
	}
}

func TestStack_UDPCommandDispatchEndToEnd(t *testing.T) {
	dev := mac.NewLoopbackDevice(4)
	s := newTestStack(t, dev)
	s.id.IP = [4]byte{10, 0, 0, 9} // Pretend DHCP already bound.

	if err := s.Commands().Register("STATUS", func(payload []byte) ([]byte, bool) {
		return []byte("OK"), true
	}); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 600)
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  testMAC,
		SrcMAC:  [6]byte{7, 7, 7, 7, 7, 7},
		SrcIP:   [4]byte{10, 0, 0, 5},
		DstIP:   s.id.IP,
		SrcPort: 5000,
		DstPort: 6000,
		TTL:     64,
	})
	if err != nil {
		t.Fatal(err)
	}
	n := copy(buf[off:], []byte("STATUS"))
	frameLen, err := udp.Transmit(buf, n)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Poll(buf[:frameLen], frameLen)
	if err != nil {
		t.Fatal(err)
	}
	if res.SentLen == 0 {
		t.Fatal("expected a reply for the matched command")
	}
}

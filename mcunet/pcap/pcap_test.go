package pcap

import (
	"testing"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/udp"
	"github.com/hlan/mcunet/wire"
)

func TestDecode_ARP(t *testing.T) {
	buf := make([]byte, 64)
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	*efrm.SourceHardwareAddr() = [6]byte{1, 2, 3, 4, 5, 6}
	*efrm.DestinationHardwareAddr() = ethernet.BroadcastAddr()
	efrm.SetEtherType(wire.EtherTypeARP)

	pb, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if pb.ARP == nil {
		t.Fatal("expected an ARP layer to be decoded")
	}
	if pb.Ethernet.EtherType != wire.EtherTypeARP {
		t.Fatalf("got EtherType %v, want ARP", pb.Ethernet.EtherType)
	}
}

func TestDecode_UDPCommandDatagram(t *testing.T) {
	buf := make([]byte, 200)
	off, err := udp.PrepareDatagram(buf, udp.DatagramConfig{
		DstMAC:  [6]byte{1, 1, 1, 1, 1, 1},
		SrcMAC:  [6]byte{2, 2, 2, 2, 2, 2},
		SrcIP:   [4]byte{10, 0, 0, 1},
		DstIP:   [4]byte{10, 0, 0, 2},
		SrcPort: 9000,
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

	pb, err := Decode(buf[:frameLen])
	if err != nil {
		t.Fatal(err)
	}
	if pb.UDP == nil {
		t.Fatal("expected a UDP layer to be decoded")
	}
	if pb.UDP.SrcPort != 9000 || pb.UDP.DstPort != 6000 {
		t.Fatalf("got ports %d/%d, want 9000/6000", pb.UDP.SrcPort, pb.UDP.DstPort)
	}
	if pb.String() == "" {
		t.Fatal("expected a non-empty rendered summary")
	}
}

func TestDecode_UnknownEtherType(t *testing.T) {
	buf := make([]byte, 64)
	efrm, _ := ethernet.NewFrame(buf)
	efrm.SetEtherType(0x9999)
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected an error for an unrecognized EtherType")
	}
}

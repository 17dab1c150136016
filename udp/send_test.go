package udp

import (
	"testing"

	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/wire"
)

// Invariant 1 (checksum): recomputing sum16 over the emitted datagram with
// the checksum field left in place must yield zero.
func TestSendDatagram_ChecksumRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	cfg := DatagramConfig{
		DstMAC:  [6]byte{1, 2, 3, 4, 5, 6},
		SrcMAC:  [6]byte{6, 5, 4, 3, 2, 1},
		SrcIP:   [4]byte{192, 168, 0, 100},
		DstIP:   [4]byte{192, 168, 0, 1},
		SrcPort: 5000,
		DstPort: 53,
		TTL:     32,
	}
	data := []byte("hello, network")
	n, err := SendDatagram(buf, data, cfg)
	if err != nil {
		t.Fatal(err)
	}

	ifrm, _ := ipv4.NewFrame(buf[14:n])
	if got := ifrm.CalculateHeaderCRC(); got != 0 {
		t.Fatalf("IP header checksum did not fold to zero: %#x", got)
	}

	udpLen := int(ifrm.TotalLength()) - ifrm.HeaderLength()
	gotUDP := wire.Sum16(ifrm.PseudoHeaderSpan(), udpLen, wire.UdpPseudo)
	if gotUDP != 0 {
		t.Fatalf("UDP checksum did not fold to zero: %#x", gotUDP)
	}
}

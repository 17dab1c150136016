package wire

import "testing"

// TestCRC791_RoundTrip checks the defining property of a ones'-complement
// checksum: folding the computed checksum back into the same data and
// recomputing yields zero, for arbitrary even-length buffers.
func TestCRC791_RoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		{0xff, 0xff, 0x01, 0x02, 0x03, 0x04},
		{0xde, 0xad, 0xbe, 0xef},
	}
	for _, buf := range cases {
		var crc CRC791
		crc.Write(buf)
		sum := crc.Sum16()

		folded := append([]byte(nil), buf...)
		folded = append(folded, byte(sum>>8), byte(sum))

		var verify CRC791
		got := verify.Sum16WithTail(folded)
		if got != 0 {
			t.Fatalf("round-trip checksum over %x with sum %#04x = %#04x, want 0", buf, sum, got)
		}
	}
}

// TestCRC791_WriteChunking checks that splitting a buffer across multiple
// Write calls gives the same result as one Write over the whole buffer,
// the incremental-accumulation property the IPv4/UDP/TCP header builders
// rely on when writing pseudo-header then payload separately.
func TestCRC791_WriteChunking(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	var whole CRC791
	whole.Write(buf)

	var chunked CRC791
	chunked.Write(buf[:4])
	chunked.Write(buf[4:])

	if whole.Sum16() != chunked.Sum16() {
		t.Fatalf("got %#04x chunked vs %#04x whole", chunked.Sum16(), whole.Sum16())
	}
}

func TestCRC791_OddTailPadded(t *testing.T) {
	var a, b CRC791
	gotOdd := a.Sum16WithTail([]byte{0x01, 0x02, 0x03})
	gotPadded := b.Sum16WithTail([]byte{0x01, 0x02, 0x03, 0x00})
	if gotOdd != gotPadded {
		t.Fatalf("odd tail %#04x should match zero-padded even buffer %#04x", gotOdd, gotPadded)
	}
}

func TestNeverZero(t *testing.T) {
	if got := NeverZero(0); got != 0xffff {
		t.Fatalf("got %#04x, want 0xffff", got)
	}
	if got := NeverZero(0x1234); got != 0x1234 {
		t.Fatalf("got %#04x, want unchanged 0x1234", got)
	}
}

func TestSum16_UdpPseudoHeaderMatchesManualPrefix(t *testing.T) {
	// buf: 4 bytes src IP, 4 bytes dst IP, then transport.
	transport := []byte{0x04, 0x00, 0x00, 0x35, 0x00, 0x08, 0x12, 0x34}
	buf := append([]byte{192, 168, 1, 1, 192, 168, 1, 2}, transport...)

	got := Sum16(buf, len(transport), UdpPseudo)

	var manual CRC791
	manual.Write(buf[:8])
	manual.AddUint16(uint16(IPProtoUDP))
	manual.AddUint16(uint16(len(transport)))
	want := manual.Sum16WithTail(transport)

	if got != want {
		t.Fatalf("got %#04x, want %#04x", got, want)
	}
}

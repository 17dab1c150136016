package syslog

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/hlan/mcunet/ethernet"
	"github.com/hlan/mcunet/ipv4"
	"github.com/hlan/mcunet/udp"
)

func TestTransport_SendFormatsRFC5424(t *testing.T) {
	var tr Transport
	tr.Reset(Config{
		Hostname: "mcunet-dev",
		AppName:  "mcunetd",
		SrcMAC:   [6]byte{1, 2, 3, 4, 5, 6},
		SrcIP:    [4]byte{192, 168, 0, 100},
		DstMAC:   [6]byte{6, 5, 4, 3, 2, 1},
		DstIP:    [4]byte{192, 168, 0, 9},
	})

	buf := make([]byte, 512)
	now := time.Date(2026, time.July, 31, 10, 0, 0, 0, time.UTC)
	n, err := tr.Send(buf, SeverityInfo, now, "link up")
	if err != nil {
		t.Fatal(err)
	}

	efrm, _ := ethernet.NewFrame(buf[:n])
	ifrm, _ := ipv4.NewFrame(buf[efrm.HeaderLength():])
	ufrm, _ := udp.NewFrame(buf[efrm.HeaderLength()+ifrm.HeaderLength():])
	payload := ufrm.Payload()
	if !bytes.Contains(payload, []byte("mcunetd")) || !bytes.Contains(payload, []byte("link up")) {
		t.Fatalf("unexpected payload: %q", payload)
	}
	if ufrm.DestinationPort() != 514 {
		t.Fatalf("expected port 514, got %d", ufrm.DestinationPort())
	}
}

func TestHandler_RoutesThroughTransport(t *testing.T) {
	var tr Transport
	tr.Reset(Config{
		Hostname: "mcunet-dev", AppName: "mcunetd",
		SrcMAC: [6]byte{1, 2, 3, 4, 5, 6}, SrcIP: [4]byte{192, 168, 0, 100},
		DstMAC: [6]byte{6, 5, 4, 3, 2, 1}, DstIP: [4]byte{192, 168, 0, 9},
	})
	var sendErr error
	h := NewHandler(&tr, make([]byte, 512), slog.LevelInfo, func(err error) { sendErr = err })
	logger := slog.New(h)
	logger.Info("dhcp bound", slog.String("ip", "192.168.0.50"))
	if sendErr != nil {
		t.Fatal(sendErr)
	}
}

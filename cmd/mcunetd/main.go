// Command mcunetd is a host-side example wiring mcunet.Stack to a real
// network interface (or, with --loopback, a pure in-memory device for
// smoke-testing without hardware). It demonstrates the required bring-up
// order and a minimal HTTP status page and UDP command handler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"

	"github.com/hlan/mcunet/mac"
	"github.com/hlan/mcunet/mcunet"
	"github.com/hlan/mcunet/mcunet/pcap"
	"github.com/hlan/mcunet/rtc"
)

// envConfig holds the settings this example reads from the environment,
// letting a deployment override the CLI flag defaults without touching the
// invocation, the pattern this module's host tooling uses throughout.
type envConfig struct {
	Interface string `env:"MCUNETD_INTERFACE" envDefault:"eth0"`
	Hostname  string `env:"MCUNETD_HOSTNAME" envDefault:"mcunet-dev"`
	HTTPPort  uint16 `env:"MCUNETD_HTTP_PORT" envDefault:"8080"`
	Loopback  bool   `env:"MCUNETD_LOOPBACK" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("mcunetd: fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("mcunetd: parsing environment: %w", err)
	}

	iface := pflag.StringP("interface", "i", cfg.Interface, "host network interface to bind (ignored with --loopback)")
	hostname := pflag.StringP("hostname", "n", cfg.Hostname, "DHCP client hostname")
	httpPort := pflag.Uint16P("http-port", "p", cfg.HTTPPort, "listening HTTP port")
	loopback := pflag.Bool("loopback", cfg.Loopback, "use an in-memory loopback device instead of a real interface")
	pflag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var dev mac.Device
	if *loopback {
		dev = mac.NewLoopbackDevice(16)
	} else {
		rawDev, err := mac.NewRawDevice(*iface)
		if err != nil {
			return fmt.Errorf("mcunetd: opening %s: %w", *iface, err)
		}
		dev = rawDev
	}

	stackMAC, err := deviceMACAddr(*iface, *loopback)
	if err != nil {
		return err
	}

	s, err := mcunet.New(mcunet.Config{
		Identity: mcunet.Identity{
			MAC:      stackMAC,
			Hostname: *hostname,
		},
		ListeningHTTPPort: *httpPort,
		Now:               nowMillis,
		Device:            dev,
		Clock:             rtc.NewFake(),
		Log:               log,
	})
	if err != nil {
		return fmt.Errorf("mcunetd: building stack: %w", err)
	}

	s.SetHTTPHandler(func(request []byte) []byte {
		return []byte("HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nmcunetd up\r\n")
	})
	if err := s.Commands().Register("PING", func(payload []byte) ([]byte, bool) {
		return []byte("PONG"), true
	}); err != nil {
		return fmt.Errorf("mcunetd: registering commands: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Info("mcunetd: acquiring a DHCP lease")
	if err := s.DHCPAllocateIP(ctx, make([]byte, 600)); err != nil {
		return fmt.Errorf("mcunetd: dhcp: %w", err)
	}
	log.Info("mcunetd: bound", slog.Any("identity", s.Identity()))

	log.Info("mcunetd: resolving the time server")
	if _, err := s.ResolveHostname(ctx, make([]byte, 600), "pool.ntp.org"); err != nil {
		log.Warn("mcunetd: hostname resolution failed, continuing without ntp", slog.Any("err", err))
	} else if err := s.NTPRequest(ctx, make([]byte, 600)); err != nil {
		log.Warn("mcunetd: ntp request failed", slog.Any("err", err))
	}

	log.Info("mcunetd: entering poll loop")
	return pollLoop(s, dev, log)
}

// pollLoop is the main-loop shape this module's single-threaded stack
// expects: read a frame if one is pending, hand it to Poll, and also poll
// with n==0 between reads so the per-protocol idle/retransmit timers run.
// Every frame exchanged (inbound or the reply Poll stages) is logged as a
// one-line packet breakdown at debug level.
func pollLoop(s *mcunet.Stack, dev mac.Device, log *slog.Logger) error {
	buf := make([]byte, 600)
	for {
		n, err := dev.Recv(buf)
		if err != nil {
			return fmt.Errorf("mcunetd: device recv: %w", err)
		}
		if n > 0 {
			logFrame(log, "recv", buf[:n])
		}
		res, err := s.Poll(buf, n)
		if err != nil {
			log.Warn("mcunetd: poll error", slog.Any("err", err))
		}
		if res.SentLen > 0 {
			logFrame(log, "send", buf[:res.SentLen])
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// logFrame decodes buf with pcap and logs a one-line breakdown, the way
// the bring-up CLI surfaces wire-level detail without a separate capture
// tool.
func logFrame(log *slog.Logger, direction string, buf []byte) {
	pb, err := pcap.Decode(buf)
	if err != nil {
		return
	}
	log.Debug("mcunetd: "+direction, slog.String("packet", pb.String()))
}

var startTime = time.Now()

// nowMillis is the Stack's monotonic millisecond tick source.
func nowMillis() uint64 {
	return uint64(time.Since(startTime).Milliseconds())
}

// deviceMACAddr resolves the MAC address the stack identifies itself with:
// a fixed locally-administered address under --loopback, or the host
// interface's own hardware address otherwise.
func deviceMACAddr(iface string, loopback bool) ([6]byte, error) {
	if loopback {
		return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, nil
	}
	netIface, err := net.InterfaceByName(iface)
	if err != nil {
		return [6]byte{}, fmt.Errorf("mcunetd: resolving hardware address for %s: %w", iface, err)
	}
	var hw [6]byte
	copy(hw[:], netIface.HardwareAddr)
	return hw, nil
}

package mcunet

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/hlan/mcunet/mac"
	"github.com/hlan/mcunet/rtc"
	"github.com/hlan/mcunet/tcp"
)

// Identity is this device's network identity: the fixed fields every
// package in this module needs to address a frame, whether supplied as
// fallback configuration or overwritten once DHCP binds a lease.
type Identity struct {
	MAC        [6]byte
	IP, Mask   [4]byte
	Gateway    [4]byte
	DNSServer  [4]byte
	DHCPServer [4]byte
	NTPServer  [4]byte
	Hostname   string // ≤ 14 characters, matching CONFIG_HOSTNAME.
}

const maxHostnameLen = 14

var (
	errHostnameTooLong = errors.New("mcunet: hostname exceeds 14 characters")
	errZeroMAC         = errors.New("mcunet: MAC address is zero")
	errNowNil          = errors.New("mcunet: Config.Now is nil")
	errDeviceNil       = errors.New("mcunet: Config.Device is nil")
)

// Config collects every compile-time constant and external collaborator
// this stack needs at startup: the fixed identity fallback (used until
// DHCP binds a lease, or permanently if DHCP is never invoked), the
// tick source, and the device/clock/logger collaborators.
type Config struct {
	Identity Identity

	// MaxTCPConnections must be ≥ 10; 0 selects the tcp package default
	// (tcp.NumSlots). Present for documentation parity with the compile-time
	// constant table; this module's tcp.Table size is fixed at compile
	// time, so a value other than 0 or tcp.NumSlots is rejected by Validate.
	MaxTCPConnections int

	// ClientMSS is offered on active TCP opens; 0 selects 550.
	ClientMSS uint16

	// ListeningHTTPPort is the passive TCP port the application-level HTTP
	// callback (§6 handle_http_request) is invoked for; 0 selects 80.
	ListeningHTTPPort uint16

	// Now returns a monotonic millisecond tick, the only timing source this
	// stack's orchestration helpers use to bound their retry loops.
	Now func() uint64

	Device mac.Device
	Clock  rtc.Clock
	Log    *slog.Logger
}

// Addr returns the identity's bound address as a netip.Addr, the
// presentation-layer type this module's API surface uses at its
// boundaries even though the wire path stays on fixed [4]byte fields.
func (id Identity) Addr() netip.Addr { return netip.AddrFrom4(id.IP) }

// GatewayAddr returns the configured default gateway as a netip.Addr.
func (id Identity) GatewayAddr() netip.Addr { return netip.AddrFrom4(id.Gateway) }

// DNSServerAddr returns the configured DNS resolver as a netip.Addr.
func (id Identity) DNSServerAddr() netip.Addr { return netip.AddrFrom4(id.DNSServer) }

func (id Identity) Validate() error {
	if len(id.Hostname) > maxHostnameLen {
		return errHostnameTooLong
	}
	if id.MAC == ([6]byte{}) {
		return errZeroMAC
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Now == nil {
		return errNowNil
	}
	if c.Device == nil {
		return errDeviceNil
	}
	if c.MaxTCPConnections != 0 && c.MaxTCPConnections != tcp.NumSlots {
		return fmt.Errorf("mcunet: MaxTCPConnections must be %d (fixed connection table size)", tcp.NumSlots)
	}
	return nil
}

//go:build linux

package mac

import (
	"net"
	"time"

	mdlethernet "github.com/mdlayher/ethernet"
	"github.com/mdlayher/raw"
)

// RawDevice sends and receives whole Ethernet frames over a Linux AF_PACKET
// socket bound to a host NIC, used for integration-testing this stack
// against a real network without microcontroller hardware.
type RawDevice struct {
	iface *net.Interface
	conn  *raw.Conn
	mac   [6]byte
}

// etherTypeAny matches every EtherType, per raw.ListenPacket's protocol
// argument (network byte order, 0x0003 = ETH_P_ALL).
const etherTypeAny = 0x0003

// NewRawDevice opens a raw socket on the named host interface (e.g. "eth0").
func NewRawDevice(ifaceName string) (*RawDevice, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}
	conn, err := raw.ListenPacket(iface, etherTypeAny, nil)
	if err != nil {
		return nil, err
	}
	return &RawDevice{iface: iface, conn: conn}, nil
}

func (d *RawDevice) Init(mac [6]byte) error {
	d.mac = mac
	return nil
}

// Send transmits a raw Ethernet frame. The destination hardware address
// raw.Conn.WriteTo needs is parsed out of the frame itself with
// mdlayher/ethernet rather than tracked separately, since this stack
// always has it ready in buf's first six bytes.
func (d *RawDevice) Send(buf []byte) error {
	var frame mdlethernet.Frame
	if err := frame.UnmarshalBinary(buf); err != nil {
		return err
	}
	_, err := d.conn.WriteTo(buf, &raw.Addr{HardwareAddr: frame.Destination})
	return err
}

func (d *RawDevice) Recv(buf []byte) (int, error) {
	d.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, _, err := d.conn.ReadFrom(buf)
	if err, ok := err.(interface{ Timeout() bool }); ok && err.Timeout() {
		return 0, nil
	}
	return n, err
}

func (d *RawDevice) LinkUp() bool { return d.iface.Flags&net.FlagUp != 0 }

func (d *RawDevice) EnableBroadcast()  {}
func (d *RawDevice) DisableBroadcast() {}

func (d *RawDevice) PowerDown() error { return d.conn.Close() }
func (d *RawDevice) PowerUp() error   { return nil }

//go:build tinygo

package mac

import (
	"tinygo.org/x/drivers/netdev"
)

// SerialDevice adapts a netdev.Netdever-backed serial-Ethernet bridge
// (such as a CH9120 module wired over UART/SPI) to this stack's Device
// contract. It is selected on tinygo builds targeting microcontroller
// boards with no native Ethernet MAC.
type SerialDevice struct {
	nd     netdev.Netdever
	mac    [6]byte
	linkUp bool
}

// NewSerialDevice wraps an already-configured netdev.Netdever.
func NewSerialDevice(nd netdev.Netdever) *SerialDevice {
	return &SerialDevice{nd: nd}
}

func (d *SerialDevice) Init(mac [6]byte) error {
	d.mac = mac
	if err := d.nd.NetConnect(); err != nil {
		return err
	}
	d.linkUp = true
	return nil
}

func (d *SerialDevice) Send(buf []byte) error {
	_, err := d.nd.Write(buf)
	return err
}

func (d *SerialDevice) Recv(buf []byte) (int, error) {
	n, err := d.nd.Read(buf)
	if err != nil {
		return 0, nil // No frame ready; the bridge has no blocking read.
	}
	return n, nil
}

func (d *SerialDevice) LinkUp() bool { return d.linkUp }

func (d *SerialDevice) EnableBroadcast()  {}
func (d *SerialDevice) DisableBroadcast() {}

func (d *SerialDevice) PowerDown() error {
	d.linkUp = false
	return d.nd.NetDisconnect()
}

func (d *SerialDevice) PowerUp() error {
	if err := d.nd.NetConnect(); err != nil {
		return err
	}
	d.linkUp = true
	return nil
}

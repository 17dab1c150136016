// Package mac defines the external MAC/PHY driver collaborator this
// stack polls for inbound frames and hands outbound frames to, plus a
// pure-Go loopback implementation used by the mcunet package's tests and
// two real backends selected by build tag.
package mac

import "errors"

// Device is the minimum Ethernet link-layer driver contract this stack
// needs: no DMA descriptors, no interrupt registration, just frame in/out
// and link state, mirroring how little the single-threaded poll loop asks
// of the hardware underneath it.
type Device interface {
	// Init brings the device up using the given hardware address.
	Init(mac [6]byte) error
	// Send transmits one Ethernet frame. It must not retain buf past return.
	Send(buf []byte) error
	// Recv copies at most one pending inbound frame into buf and returns
	// its length, or (0, nil) if none is pending.
	Recv(buf []byte) (int, error)
	// LinkUp reports whether the physical link is currently established.
	LinkUp() bool
	// EnableBroadcast/DisableBroadcast toggle broadcast frame reception,
	// used to quiet a shared segment once DHCP/ARP bring-up is complete.
	EnableBroadcast()
	DisableBroadcast()
	// PowerDown/PowerUp suspend and resume the PHY, used by callers that
	// duty-cycle the radio/PHY to save power between polls.
	PowerDown() error
	PowerUp() error
}

var errQueueFull = errors.New("mac: loopback send queue full")

// LoopbackDevice is an in-memory Device for tests: Send enqueues a frame
// that a later Recv dequeues, with no actual wire in between.
type LoopbackDevice struct {
	mac         [6]byte
	up          bool
	broadcast   bool
	queue       [][]byte
	maxQueueLen int
}

// NewLoopbackDevice returns a ready-to-Init LoopbackDevice with a queue
// depth of depth frames.
func NewLoopbackDevice(depth int) *LoopbackDevice {
	return &LoopbackDevice{maxQueueLen: depth}
}

func (d *LoopbackDevice) Init(mac [6]byte) error {
	d.mac = mac
	d.up = true
	d.broadcast = true
	return nil
}

func (d *LoopbackDevice) Send(buf []byte) error {
	if len(d.queue) >= d.maxQueueLen {
		return errQueueFull
	}
	frame := append([]byte(nil), buf...)
	d.queue = append(d.queue, frame)
	return nil
}

func (d *LoopbackDevice) Recv(buf []byte) (int, error) {
	if len(d.queue) == 0 {
		return 0, nil
	}
	frame := d.queue[0]
	d.queue = d.queue[1:]
	return copy(buf, frame), nil
}

func (d *LoopbackDevice) LinkUp() bool        { return d.up }
func (d *LoopbackDevice) EnableBroadcast()    { d.broadcast = true }
func (d *LoopbackDevice) DisableBroadcast()   { d.broadcast = false }
func (d *LoopbackDevice) PowerDown() error    { d.up = false; return nil }
func (d *LoopbackDevice) PowerUp() error      { d.up = true; return nil }

// InjectFrame places a frame in the queue as if it had arrived from the
// wire, for tests driving inbound traffic.
func (d *LoopbackDevice) InjectFrame(buf []byte) {
	d.queue = append(d.queue, append([]byte(nil), buf...))
}

// Pending reports how many frames are queued for Recv.
func (d *LoopbackDevice) Pending() int { return len(d.queue) }

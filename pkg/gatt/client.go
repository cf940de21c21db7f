package gatt

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/examples/lib/dev"
	"github.com/womat/debug"
)

// Client implements Bridge on a go-ble GATT connection.
type Client struct {
	// addr is the MAC address (platform specific id) of the peripheral.
	addr string

	// mu guards the connection state below against the disconnect watcher.
	mu        sync.Mutex
	cln       ble.Client
	profile   *ble.Profile
	connected bool
}

// the HCI device is shared per process
var (
	deviceOnce sync.Once
	deviceErr  error
)

// NewClient generates a new transport client for the peripheral addr.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Connect dials the peripheral and discovers its attribute profile.
// A previously failed or torn down connection is replaced by a fresh one.
func (c *Client) Connect(ctx context.Context) error {
	if err := openDevice(); err != nil {
		return err
	}

	cln, err := ble.Dial(ctx, ble.NewAddr(c.addr))
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}

	p, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		return fmt.Errorf("discovering profile of %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.cln = cln
	c.profile = p
	c.connected = true
	c.mu.Unlock()

	// clear the connected flag when the peripheral drops the link
	go func() {
		<-cln.Disconnected()
		debug.DebugLog.Printf("connection to %s closed", c.addr)

		c.mu.Lock()
		if c.cln == cln {
			c.connected = false
		}
		c.mu.Unlock()
	}()

	return nil
}

// Disconnect cancels the connection and clears the connected flag,
// even if the teardown itself fails.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cln := c.cln
	c.cln = nil
	c.profile = nil
	c.connected = false
	c.mu.Unlock()

	if cln == nil {
		return nil
	}
	return cln.CancelConnection()
}

// Connected reports whether the link to the peripheral is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Read reads the characteristic uuid.
func (c *Client) Read(uuid string) ([]byte, error) {
	cln, char, err := c.find(uuid)
	if err != nil {
		return nil, err
	}

	b, err := cln.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uuid, err)
	}
	return b, nil
}

// Write writes b to the characteristic uuid.
func (c *Client) Write(uuid string, b []byte) error {
	cln, char, err := c.find(uuid)
	if err != nil {
		return err
	}

	if err := cln.WriteCharacteristic(char, b, false); err != nil {
		return fmt.Errorf("writing %s: %w", uuid, err)
	}
	return nil
}

// Subscribe starts notifications of the characteristic uuid and delivers
// every payload to fn.
func (c *Client) Subscribe(uuid string, fn NotificationFunc) error {
	cln, char, err := c.find(uuid)
	if err != nil {
		return err
	}

	if err := cln.Subscribe(char, false, func(req []byte) { fn(req) }); err != nil {
		return fmt.Errorf("subscribing to %s: %w", uuid, err)
	}
	return nil
}

// Unsubscribe stops notifications of the characteristic uuid.
func (c *Client) Unsubscribe(uuid string) error {
	cln, char, err := c.find(uuid)
	if err != nil {
		return err
	}

	if err := cln.Unsubscribe(char, false); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", uuid, err)
	}
	return nil
}

// find resolves uuid in the discovered profile.
func (c *Client) find(uuid string) (ble.Client, *ble.Characteristic, error) {
	c.mu.Lock()
	cln, p, ok := c.cln, c.profile, c.connected
	c.mu.Unlock()

	if !ok || cln == nil || p == nil {
		return nil, nil, ErrNotConnected
	}

	u, err := ble.Parse(uuid)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, uuid)
	}

	if f := p.Find(ble.NewCharacteristic(u)); f != nil {
		if char, ok := f.(*ble.Characteristic); ok {
			return cln, char, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, uuid)
}

// openDevice opens the default HCI device once and registers it with go-ble.
func openDevice() error {
	deviceOnce.Do(func() {
		d, err := dev.NewDevice("default")
		if err != nil {
			deviceErr = fmt.Errorf("opening hci device: %w", err)
			return
		}
		ble.SetDefaultDevice(d)
	})
	return deviceErr
}

package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

var (
	ErrSignInFailed = errors.New("sign in failed")
	ErrHostNotFound = errors.New("no HEOS device at host")
	ErrClosed       = errors.New("controller closed")
	ErrDuplicateID  = errors.New("device id already in use")
)

// Controller is a heos.Controller over a Fleet.
type Controller struct {
	fleet *Fleet
	now   func() time.Time

	mu          sync.Mutex
	players     []*Device
	groups      []*Device
	onNewDevice func(heos.Device, heos.DeviceKind)
	closed      bool
}

var _ heos.Controller = (*Controller)(nil)

// NewController opens a session over fleet. Credentials, when given, must
// match the fleet account; a host, when both sides name one, must match.
func NewController(fleet *Fleet, opts heos.ConnectOptions) (*Controller, error) {
	if fleet.Host != "" && opts.Host != "" && fleet.Host != opts.Host {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, opts.Host)
	}
	if opts.Username != "" {
		if fleet.Account == nil || fleet.Account.Username != opts.Username || fleet.Account.Password != opts.Password {
			return nil, fmt.Errorf("%w: %s", ErrSignInFailed, opts.Username)
		}
	}

	c := &Controller{fleet: fleet, now: time.Now}
	for _, spec := range fleet.Players {
		c.players = append(c.players, newDevice(c, spec))
	}
	for _, spec := range fleet.Groups {
		c.groups = append(c.groups, newDevice(c, spec))
	}
	return c, nil
}

// Dialer returns a heos.Dialer that loads the fleet file on every connect.
func Dialer(path string) heos.Dialer {
	return func(ctx context.Context, opts heos.ConnectOptions) (heos.Controller, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fleet, err := Load(path)
		if err != nil {
			return nil, err
		}
		return NewController(fleet, opts)
	}
}

func (c *Controller) Players() []heos.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return asDevices(c.players)
}

func (c *Controller) Groups() []heos.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return asDevices(c.groups)
}

func (c *Controller) OnNewDevice(callback func(heos.Device, heos.DeviceKind)) {
	c.mu.Lock()
	c.onNewDevice = callback
	c.mu.Unlock()
}

// Discover adds a device to the session and announces it to the new-device callback.
func (c *Controller) Discover(kind heos.DeviceKind, spec DeviceSpec) (*Device, error) {
	if err := spec.validate(kind); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	existing := c.players
	if kind == heos.KindGroup {
		existing = c.groups
	}
	for _, device := range existing {
		if device.id == spec.ID {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %s %d", ErrDuplicateID, kind, spec.ID)
		}
	}

	device := newDevice(c, spec)
	if kind == heos.KindGroup {
		c.groups = append(c.groups, device)
	} else {
		c.players = append(c.players, device)
	}
	callback := c.onNewDevice
	c.mu.Unlock()

	if callback != nil {
		callback(device, kind)
	}
	return device, nil
}

// Device looks up a player or group by kind and id.
func (c *Controller) Device(kind heos.DeviceKind, id int) (*Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	devices := c.players
	if kind == heos.KindGroup {
		devices = c.groups
	}
	for _, device := range devices {
		if device.id == id {
			return device, true
		}
	}
	return nil, false
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func asDevices(devices []*Device) []heos.Device {
	out := make([]heos.Device, len(devices))
	for i, device := range devices {
		out[i] = device
	}
	return out
}

// Package nmtest provides an in-memory NetworkManager for tests.
package nmtest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
)

const (
	ConnectionPath       = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings/1")
	ActiveConnectionPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/ActiveConnection/1")
)

// Addr encodes a dotted IPv4 address the way NetworkManager puts it in an
// Addresses triple.
func Addr(s string) uint32 {
	b := netip.MustParseAddr(s).As4()
	return binary.NativeEndian.Uint32(b[:])
}

// Device is a scripted device. Zero errors mean success.
type Device struct {
	DevPath   dbus.ObjectPath
	Type      nm.DeviceType
	TypeErr   error
	St        nm.DeviceState
	StateErr  error
	Iface     string
	IfaceErr  error
	Config    dbus.ObjectPath
	ConfigErr error
}

func (d *Device) Path() dbus.ObjectPath { return d.DevPath }

func (d *Device) DeviceType(context.Context) (nm.DeviceType, error) { return d.Type, d.TypeErr }

func (d *Device) State(context.Context) (nm.DeviceState, error) { return d.St, d.StateErr }

func (d *Device) Interface(context.Context) (string, error) { return d.Iface, d.IfaceErr }

func (d *Device) IP4Config(context.Context) (dbus.ObjectPath, error) { return d.Config, d.ConfigErr }

// IP4Config replays Updates to each watcher. With CloseAfter the stream
// closes once they are delivered, otherwise it stays open until the
// watcher's context ends.
type IP4Config struct {
	ConfigPath dbus.ObjectPath
	Current    [][]uint32
	CurrentErr error
	Updates    [][][]uint32
	CloseAfter bool
	WatchErr   error
}

func (c *IP4Config) Path() dbus.ObjectPath { return c.ConfigPath }

func (c *IP4Config) Addresses(context.Context) ([][]uint32, error) {
	return c.Current, c.CurrentErr
}

func (c *IP4Config) WatchAddresses(ctx context.Context) (<-chan [][]uint32, error) {
	if c.WatchErr != nil {
		return nil, c.WatchErr
	}
	out := make(chan [][]uint32)
	go func() {
		defer close(out)
		for _, u := range c.Updates {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
		if !c.CloseAfter {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// ActivateCall records one AddAndActivateConnection request.
type ActivateCall struct {
	Settings nm.ConnectionSettings
	Device   dbus.ObjectPath
	Specific dbus.ObjectPath
	Options  map[string]dbus.Variant
}

// Manager is a scripted nm.Manager. Paths lists devices in enumeration
// order; a path missing from Devs fails to open.
type Manager struct {
	Paths      []dbus.ObjectPath
	DevicesErr error
	Devs       map[dbus.ObjectPath]*Device
	Configs    map[dbus.ObjectPath]*IP4Config

	WirelessErr   error
	ActivateErr   error
	DeactivateErr error

	mu          sync.Mutex
	calls       []string
	wireless    bool
	activations []ActivateCall
	deactivated []dbus.ObjectPath
}

var _ nm.Manager = (*Manager)(nil)

// AddDevice appends d to the enumeration.
func (m *Manager) AddDevice(d *Device) {
	if m.Devs == nil {
		m.Devs = map[dbus.ObjectPath]*Device{}
	}
	m.Paths = append(m.Paths, d.DevPath)
	m.Devs[d.DevPath] = d
}

// AddConfig registers an IPv4 config object.
func (m *Manager) AddConfig(c *IP4Config) {
	if m.Configs == nil {
		m.Configs = map[dbus.ObjectPath]*IP4Config{}
	}
	m.Configs[c.ConfigPath] = c
}

func (m *Manager) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns the mutating calls in the order they were made.
func (m *Manager) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Manager) WirelessEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wireless
}

func (m *Manager) Activations() []ActivateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActivateCall(nil), m.activations...)
}

func (m *Manager) Deactivated() []dbus.ObjectPath {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dbus.ObjectPath(nil), m.deactivated...)
}

func (m *Manager) Devices(context.Context) ([]dbus.ObjectPath, error) {
	if m.DevicesErr != nil {
		return nil, m.DevicesErr
	}
	return append([]dbus.ObjectPath(nil), m.Paths...), nil
}

func (m *Manager) Device(path dbus.ObjectPath) (nm.Device, error) {
	d, ok := m.Devs[path]
	if !ok {
		return nil, fmt.Errorf("no such device %s", path)
	}
	return d, nil
}

func (m *Manager) SetWirelessEnabled(_ context.Context, enabled bool) error {
	m.record(fmt.Sprintf("wireless=%t", enabled))
	if m.WirelessErr != nil {
		return m.WirelessErr
	}
	m.mu.Lock()
	m.wireless = enabled
	m.mu.Unlock()
	return nil
}

func (m *Manager) AddAndActivateConnection(_ context.Context, settings nm.ConnectionSettings, device, specific dbus.ObjectPath, options map[string]dbus.Variant) (*nm.Activation, error) {
	m.record("activate " + string(device))
	if m.ActivateErr != nil {
		return nil, m.ActivateErr
	}
	m.mu.Lock()
	m.activations = append(m.activations, ActivateCall{Settings: settings, Device: device, Specific: specific, Options: options})
	m.mu.Unlock()
	return &nm.Activation{
		Device:           device,
		Connection:       ConnectionPath,
		ActiveConnection: ActiveConnectionPath,
		Result:           map[string]dbus.Variant{},
	}, nil
}

func (m *Manager) DeactivateConnection(_ context.Context, active dbus.ObjectPath) error {
	m.record("deactivate " + string(active))
	m.mu.Lock()
	m.deactivated = append(m.deactivated, active)
	m.mu.Unlock()
	return m.DeactivateErr
}

func (m *Manager) IP4Config(path dbus.ObjectPath) (nm.IP4Config, error) {
	c, ok := m.Configs[path]
	if !ok {
		return nil, errors.New("no such ip4 config " + string(path))
	}
	return c, nil
}

// Package nm is a narrow client for the NetworkManager D-Bus API.
//
// Only the calls needed to probe connectivity, bring up an access point and
// watch its IPv4 configuration are exposed. Callers depend on the Manager,
// Device and IP4Config interfaces so tests can substitute fakes.
package nm

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	busName  = "org.freedesktop.NetworkManager"
	rootPath = dbus.ObjectPath("/org/freedesktop/NetworkManager")

	ifaceManager   = "org.freedesktop.NetworkManager"
	ifaceDevice    = "org.freedesktop.NetworkManager.Device"
	ifaceIP4Config = "org.freedesktop.NetworkManager.IP4Config"
	ifaceProps     = "org.freedesktop.DBus.Properties"
)

// NoObject is the empty object path NetworkManager uses for "unset" or
// "any" references.
const NoObject = dbus.ObjectPath("/")

// ConnectionSettings is the a{sa{sv}} settings dictionary passed to
// AddAndActivateConnection2.
type ConnectionSettings map[string]map[string]dbus.Variant

// Activation is the outcome of an add-and-activate request.
type Activation struct {
	Device           dbus.ObjectPath
	Connection       dbus.ObjectPath
	ActiveConnection dbus.ObjectPath
	Result           map[string]dbus.Variant
}

// Manager is the subset of org.freedesktop.NetworkManager in use.
type Manager interface {
	Devices(ctx context.Context) ([]dbus.ObjectPath, error)
	Device(path dbus.ObjectPath) (Device, error)
	SetWirelessEnabled(ctx context.Context, enabled bool) error
	AddAndActivateConnection(ctx context.Context, settings ConnectionSettings, device, specific dbus.ObjectPath, options map[string]dbus.Variant) (*Activation, error)
	DeactivateConnection(ctx context.Context, active dbus.ObjectPath) error
	IP4Config(path dbus.ObjectPath) (IP4Config, error)
}

// Device is a proxy for org.freedesktop.NetworkManager.Device.
type Device interface {
	Path() dbus.ObjectPath
	DeviceType(ctx context.Context) (DeviceType, error)
	State(ctx context.Context) (DeviceState, error)
	Interface(ctx context.Context) (string, error)
	IP4Config(ctx context.Context) (dbus.ObjectPath, error)
}

// IP4Config is a proxy for org.freedesktop.NetworkManager.IP4Config.
//
// Addresses are (address, prefix, gateway) triples with address and
// gateway in network byte order.
type IP4Config interface {
	Path() dbus.ObjectPath
	Addresses(ctx context.Context) ([][]uint32, error)
	// WatchAddresses delivers every changed Addresses value until ctx ends
	// or the bus goes away, then closes the channel.
	WatchAddresses(ctx context.Context) (<-chan [][]uint32, error)
}

// DeviceType mirrors NMDeviceType.
type DeviceType uint32

const (
	DeviceTypeUnknown  DeviceType = 0
	DeviceTypeEthernet DeviceType = 1
	DeviceTypeWiFi     DeviceType = 2
	DeviceTypeBridge   DeviceType = 13
	DeviceTypeLoopback DeviceType = 32
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeUnknown:
		return "unknown"
	case DeviceTypeEthernet:
		return "ethernet"
	case DeviceTypeWiFi:
		return "wifi"
	case DeviceTypeBridge:
		return "bridge"
	case DeviceTypeLoopback:
		return "loopback"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// DeviceState mirrors NMDeviceState.
type DeviceState uint32

const (
	StateUnknown      DeviceState = 0
	StateUnmanaged    DeviceState = 10
	StateUnavailable  DeviceState = 20
	StateDisconnected DeviceState = 30
	StatePrepare      DeviceState = 40
	StateConfig       DeviceState = 50
	StateNeedAuth     DeviceState = 60
	StateIPConfig     DeviceState = 70
	StateIPCheck      DeviceState = 80
	StateSecondaries  DeviceState = 90
	StateActivated    DeviceState = 100
	StateDeactivating DeviceState = 110
	StateFailed       DeviceState = 120
)

var stateNames = map[DeviceState]string{
	StateUnknown:      "unknown",
	StateUnmanaged:    "unmanaged",
	StateUnavailable:  "unavailable",
	StateDisconnected: "disconnected",
	StatePrepare:      "prepare",
	StateConfig:       "config",
	StateNeedAuth:     "need-auth",
	StateIPConfig:     "ip-config",
	StateIPCheck:      "ip-check",
	StateSecondaries:  "secondaries",
	StateActivated:    "activated",
	StateDeactivating: "deactivating",
	StateFailed:       "failed",
}

// ParseState maps a raw state code. Codes NetworkManager may add later
// collapse to StateUnknown.
func ParseState(code uint32) DeviceState {
	s := DeviceState(code)
	if _, ok := stateNames[s]; ok {
		return s
	}
	return StateUnknown
}

func (s DeviceState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

package nm

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client talks to NetworkManager over a single system bus connection.
// It is safe for concurrent use.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	own  bool
}

var _ Manager = (*Client)(nil)

// Connect opens a private system bus connection. Close releases it.
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	c := New(conn)
	c.own = true
	return c, nil
}

// New wraps an existing connection. The caller keeps ownership of conn.
func New(conn *dbus.Conn) *Client {
	return &Client{conn: conn, obj: conn.Object(busName, rootPath)}
}

func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Devices(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	if err := c.obj.CallWithContext(ctx, ifaceManager+".GetDevices", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("GetDevices: %w", err)
	}
	return paths, nil
}

func (c *Client) Device(path dbus.ObjectPath) (Device, error) {
	if !path.IsValid() || path == NoObject {
		return nil, fmt.Errorf("invalid device path %q", path)
	}
	return &deviceProxy{obj: c.conn.Object(busName, path), path: path}, nil
}

func (c *Client) SetWirelessEnabled(ctx context.Context, enabled bool) error {
	call := c.obj.CallWithContext(ctx, ifaceProps+".Set", 0, ifaceManager, "WirelessEnabled", dbus.MakeVariant(enabled))
	if call.Err != nil {
		return fmt.Errorf("set WirelessEnabled=%t: %w", enabled, call.Err)
	}
	return nil
}

func (c *Client) AddAndActivateConnection(ctx context.Context, settings ConnectionSettings, device, specific dbus.ObjectPath, options map[string]dbus.Variant) (*Activation, error) {
	if specific == "" {
		specific = NoObject
	}
	if options == nil {
		options = map[string]dbus.Variant{}
	}
	a := &Activation{Device: device}
	call := c.obj.CallWithContext(ctx, ifaceManager+".AddAndActivateConnection2", 0,
		map[string]map[string]dbus.Variant(settings), device, specific, options)
	if err := call.Store(&a.Connection, &a.ActiveConnection, &a.Result); err != nil {
		return nil, fmt.Errorf("AddAndActivateConnection2: %w", err)
	}
	return a, nil
}

func (c *Client) DeactivateConnection(ctx context.Context, active dbus.ObjectPath) error {
	if call := c.obj.CallWithContext(ctx, ifaceManager+".DeactivateConnection", 0, active); call.Err != nil {
		return fmt.Errorf("DeactivateConnection %s: %w", active, call.Err)
	}
	return nil
}

func (c *Client) IP4Config(path dbus.ObjectPath) (IP4Config, error) {
	if !path.IsValid() || path == NoObject {
		return nil, fmt.Errorf("invalid ip4 config path %q", path)
	}
	return &ip4ConfigProxy{conn: c.conn, obj: c.conn.Object(busName, path), path: path}, nil
}

// getProperty reads iface.name from obj and stores it into out.
func getProperty(ctx context.Context, obj dbus.BusObject, iface, name string, out any) error {
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, ifaceProps+".Get", 0, iface, name).Store(&v); err != nil {
		return fmt.Errorf("get %s: %w", name, err)
	}
	if err := dbus.Store([]any{v.Value()}, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

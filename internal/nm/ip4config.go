package nm

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const propsChanged = ifaceProps + ".PropertiesChanged"

type ip4ConfigProxy struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	path dbus.ObjectPath
}

func (c *ip4ConfigProxy) Path() dbus.ObjectPath { return c.path }

func (c *ip4ConfigProxy) Addresses(ctx context.Context) ([][]uint32, error) {
	var v [][]uint32
	err := getProperty(ctx, c.obj, ifaceIP4Config, "Addresses", &v)
	return v, err
}

func (c *ip4ConfigProxy) WatchAddresses(ctx context.Context) (<-chan [][]uint32, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(c.path),
		dbus.WithMatchInterface(ifaceProps),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := c.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.path, err)
	}

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)

	out := make(chan [][]uint32)
	go func() {
		defer close(out)
		defer func() {
			c.conn.RemoveSignal(signals)
			_ = c.conn.RemoveMatchSignal(match...)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				addrs, ok := addressesFromSignal(c.path, sig)
				if !ok {
					continue
				}
				select {
				case out <- addrs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// addressesFromSignal extracts a changed Addresses value from a
// PropertiesChanged signal emitted by the config object at path.
func addressesFromSignal(path dbus.ObjectPath, sig *dbus.Signal) ([][]uint32, bool) {
	if sig == nil || sig.Path != path || sig.Name != propsChanged || len(sig.Body) < 2 {
		return nil, false
	}
	if iface, _ := sig.Body[0].(string); iface != ifaceIP4Config {
		return nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, false
	}
	v, ok := changed["Addresses"]
	if !ok {
		return nil, false
	}
	addrs, ok := v.Value().([][]uint32)
	return addrs, ok
}

package nm

import (
	"context"

	"github.com/godbus/dbus/v5"
)

type deviceProxy struct {
	obj  dbus.BusObject
	path dbus.ObjectPath
}

func (d *deviceProxy) Path() dbus.ObjectPath { return d.path }

func (d *deviceProxy) DeviceType(ctx context.Context) (DeviceType, error) {
	var v uint32
	if err := getProperty(ctx, d.obj, ifaceDevice, "DeviceType", &v); err != nil {
		return DeviceTypeUnknown, err
	}
	return DeviceType(v), nil
}

func (d *deviceProxy) State(ctx context.Context) (DeviceState, error) {
	var v uint32
	if err := getProperty(ctx, d.obj, ifaceDevice, "State", &v); err != nil {
		return StateUnknown, err
	}
	return ParseState(v), nil
}

func (d *deviceProxy) Interface(ctx context.Context) (string, error) {
	var v string
	err := getProperty(ctx, d.obj, ifaceDevice, "Interface", &v)
	return v, err
}

func (d *deviceProxy) IP4Config(ctx context.Context) (dbus.ObjectPath, error) {
	var v dbus.ObjectPath
	err := getProperty(ctx, d.obj, ifaceDevice, "Ip4Config", &v)
	return v, err
}

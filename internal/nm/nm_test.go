package nm

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

const cfgPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/IP4Config/7")

func signal(path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: path,
		Name: propsChanged,
		Body: []any{iface, changed, []string{}},
	}
}

func TestAddressesFromSignal(t *testing.T) {
	want := [][]uint32{{0x0104a8c0, 24, 0}}
	sig := signal(cfgPath, ifaceIP4Config, map[string]dbus.Variant{
		"Addresses": dbus.MakeVariant(want),
	})

	got, ok := addressesFromSignal(cfgPath, sig)
	if !ok {
		t.Fatalf("expected addresses to be extracted")
	}
	if len(got) != 1 || got[0][0] != want[0][0] || got[0][1] != 24 {
		t.Fatalf("unexpected addresses: %v", got)
	}
}

func TestAddressesFromSignalIgnoresOthers(t *testing.T) {
	addrs := map[string]dbus.Variant{"Addresses": dbus.MakeVariant([][]uint32{{1, 24, 0}})}

	cases := map[string]*dbus.Signal{
		"nil":          nil,
		"other path":   signal("/org/freedesktop/NetworkManager/IP4Config/8", ifaceIP4Config, addrs),
		"other iface":  signal(cfgPath, ifaceDevice, addrs),
		"no addresses": signal(cfgPath, ifaceIP4Config, map[string]dbus.Variant{"Gateway": dbus.MakeVariant("10.0.0.1")}),
		"short body":   {Path: cfgPath, Name: propsChanged, Body: []any{ifaceIP4Config}},
		"wrong member": {Path: cfgPath, Name: ifaceProps + ".Other", Body: []any{ifaceIP4Config, addrs}},
	}
	for name, sig := range cases {
		if _, ok := addressesFromSignal(cfgPath, sig); ok {
			t.Fatalf("%s: expected signal to be ignored", name)
		}
	}
}

func TestParseState(t *testing.T) {
	if got := ParseState(100); got != StateActivated {
		t.Fatalf("ParseState(100) = %v", got)
	}
	if got := ParseState(999); got != StateUnknown {
		t.Fatalf("ParseState(999) = %v, want unknown", got)
	}
	if StateActivated.String() != "activated" || DeviceTypeWiFi.String() != "wifi" {
		t.Fatalf("unexpected names %q %q", StateActivated, DeviceTypeWiFi)
	}
}

func TestDeviceRejectsInvalidPath(t *testing.T) {
	c := &Client{}
	if _, err := c.Device("not/a/path"); err == nil {
		t.Fatalf("expected error for invalid path")
	}
	if _, err := c.IP4Config(NoObject); err == nil {
		t.Fatalf("expected error for unset config path")
	}
}

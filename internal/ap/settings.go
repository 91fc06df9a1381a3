package ap

import (
	"github.com/godbus/dbus/v5"

	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
)

// Setting group names as NetworkManager expects them on the wire.
const (
	GroupWireless   = "802-11-wireless"
	GroupIPv4       = "ipv4"
	GroupIPv6       = "ipv6"
	GroupConnection = "connection"
)

// Settings builds the AP connection profile for ssid. The SSID goes out as
// raw bytes. IPv4 "shared" makes NetworkManager run DHCP and NAT for the
// associated clients.
func Settings(ssid string) nm.ConnectionSettings {
	return nm.ConnectionSettings{
		GroupWireless: {
			"ssid":   dbus.MakeVariant([]byte(ssid)),
			"mode":   dbus.MakeVariant("ap"),
			"band":   dbus.MakeVariant("bg"),
			"hidden": dbus.MakeVariant(false),
		},
		GroupIPv4: {
			"method": dbus.MakeVariant("shared"),
		},
		GroupIPv6: {
			"method": dbus.MakeVariant("ignore"),
		},
		GroupConnection: {
			"autoconnect": dbus.MakeVariant(true),
		},
	}
}

func validSSID(ssid string) bool {
	return len(ssid) > 0 && len(ssid) <= 32
}

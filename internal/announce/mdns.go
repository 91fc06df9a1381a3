// Package announce advertises the portal over mDNS on the AP interface.
package announce

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

// Announcement is a running mDNS registration.
type Announcement struct {
	server *zeroconf.Server
}

// TXT returns the TXT records published for a portal at addr.
func TXT(addr netip.AddrPort, ssid string) []string {
	return []string{
		"path=/",
		"url=http://" + addr.String() + "/",
		"ssid=" + ssid,
	}
}

// Start registers instance/service for the portal on iface only.
func Start(instance, service, iface string, addr netip.AddrPort, ssid string, log logrus.FieldLogger) (*Announcement, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", iface, err)
	}
	srv, err := zeroconf.Register(instance, service, "local.", int(addr.Port()), TXT(addr, ssid), []net.Interface{*ifi})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", service, err)
	}
	log.WithFields(logrus.Fields{"iface": iface, "service": service}).Infof("[MDNS] announcing %q", instance)
	return &Announcement{server: srv}, nil
}

func (a *Announcement) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

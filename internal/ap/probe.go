// Package ap brings up a NetworkManager access point: it probes existing
// connectivity, activates a volatile AP profile on the first Wi-Fi device
// and waits for that AP to get an IPv4 address.
package ap

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
)

func logger(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

// Connected reports whether any device is in the activated state.
//
// Devices are checked concurrently. A device that cannot be opened or whose
// state cannot be read counts as not activated.
func Connected(ctx context.Context, mgr nm.Manager, log logrus.FieldLogger) (bool, error) {
	log = logger(log)

	paths, err := mgr.Devices(ctx)
	if err != nil {
		return false, stage.Wrap(stage.Discovery, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(paths))
	for _, p := range paths {
		go func(p dbus.ObjectPath) {
			results <- activated(ctx, mgr, p, log)
		}(p)
	}
	for range paths {
		if <-results {
			return true, nil
		}
	}
	return false, nil
}

func activated(ctx context.Context, mgr nm.Manager, path dbus.ObjectPath, log logrus.FieldLogger) bool {
	dev, err := mgr.Device(path)
	if err != nil {
		log.WithField("device", path).Debugf("[PROBE] failed to get device proxy: %v", err)
		return false
	}
	st, err := dev.State(ctx)
	if err != nil {
		log.WithField("device", path).Debugf("[PROBE] failed to get device state: %v", err)
		return false
	}
	return st == nm.StateActivated
}

package ap

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
)

// Session is an activated access point. It is held for the lifetime of the
// AP and used once at teardown.
type Session struct {
	Device     nm.Device
	Activation nm.Activation
	Settings   nm.ConnectionSettings
}

// Activator brings up an access point on the first Wi-Fi device.
type Activator struct {
	NM  nm.Manager
	Log logrus.FieldLogger
}

func NewActivator(mgr nm.Manager, log logrus.FieldLogger) *Activator {
	return &Activator{NM: mgr, Log: logger(log)}
}

// FindWiFiDevice returns the first device, in enumeration order, whose type
// is Wi-Fi. Devices that fail to open or report their type are skipped.
func (a *Activator) FindWiFiDevice(ctx context.Context) (nm.Device, error) {
	log := logger(a.Log)

	paths, err := a.NM.Devices(ctx)
	if err != nil {
		return nil, stage.Wrap(stage.Discovery, err)
	}
	for _, p := range paths {
		dev, err := a.NM.Device(p)
		if err != nil {
			log.WithField("device", p).Debugf("[AP] skip device, proxy failed: %v", err)
			continue
		}
		typ, err := dev.DeviceType(ctx)
		if err != nil {
			log.WithField("device", p).Debugf("[AP] skip device, type query failed: %v", err)
			continue
		}
		if typ == nm.DeviceTypeWiFi {
			return dev, nil
		}
	}
	return nil, stage.Wrap(stage.Discovery, ErrNoWiFiDevice)
}

// Start enables the radio and activates a volatile AP profile named ssid.
// Nothing is retried: a failed activation may already have created a
// profile.
func (a *Activator) Start(ctx context.Context, ssid string) (*Session, error) {
	log := logger(a.Log)

	if !validSSID(ssid) {
		return nil, stage.Wrap(stage.Activation, fmt.Errorf("%w: got %d", ErrInvalidSSID, len(ssid)))
	}

	dev, err := a.FindWiFiDevice(ctx)
	if err != nil {
		return nil, err
	}
	log.WithField("device", dev.Path()).Info("[AP] using wifi device")

	if err := a.NM.SetWirelessEnabled(ctx, true); err != nil {
		return nil, stage.Wrap(stage.Radio, err)
	}

	settings := Settings(ssid)
	options := map[string]dbus.Variant{"persist": dbus.MakeVariant("volatile")}
	act, err := a.NM.AddAndActivateConnection(ctx, settings, dev.Path(), nm.NoObject, options)
	if err != nil {
		return nil, stage.Wrap(stage.Activation, err)
	}
	log.WithFields(logrus.Fields{
		"ssid":   ssid,
		"active": act.ActiveConnection,
	}).Info("[AP] access point activated")

	return &Session{Device: dev, Activation: *act, Settings: settings}, nil
}

// Stop deactivates the AP connection. Errors are the caller's to ignore.
func (a *Activator) Stop(ctx context.Context, s *Session) error {
	if s == nil || s.Activation.ActiveConnection == "" {
		return nil
	}
	return a.NM.DeactivateConnection(ctx, s.Activation.ActiveConnection)
}

// Package app sequences AP bring-up and the captive portal, and wires the
// concrete dependencies for the binary.
package app

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/announce"
	"github.com/Dreaming-Codes/wifi-manager/internal/ap"
	"github.com/Dreaming-Codes/wifi-manager/internal/audit"
	"github.com/Dreaming-Codes/wifi-manager/internal/captivedns"
	"github.com/Dreaming-Codes/wifi-manager/internal/config"
	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
	"github.com/Dreaming-Codes/wifi-manager/internal/portal"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
)

const teardownTimeout = 5 * time.Second

// Firewall is the redirect capability the orchestrator needs.
// *firewall.Redirector satisfies it.
type Firewall interface {
	Apply(iface, portal string) error
	RedirectDNS(iface, target string) error
	Remove() error
}

// Orchestrator runs probe, activation, address wait, redirect and portal
// strictly in that order.
type Orchestrator struct {
	NM       nm.Manager
	Firewall Firewall
	Config   *config.Config
	Log      logrus.FieldLogger
	Audit    *audit.Logger

	// Visits and Ping are handed to the portal; both are optional.
	Visits portal.VisitRecorder
	Ping   func(context.Context) error

	// Listen and ListenPacket open the portal and DNS sockets. They
	// default to net.Listen and net.ListenPacket.
	Listen       func(network, address string) (net.Listener, error)
	ListenPacket func(network, address string) (net.PacketConn, error)
}

func (o *Orchestrator) log() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// Run returns nil when the device is already connected and AP mode is not
// forced, or once ctx ends after the portal started. Any other return is a
// fatal error tagged with its stage.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := o.log()
	cfg := o.Config

	connected, err := ap.Connected(ctx, o.NM, log)
	if err != nil {
		return err
	}
	o.Audit.Write("network.probe", map[string]any{"connected": connected, "force": cfg.AP.Force})
	if connected && !cfg.AP.Force {
		log.Info("[BOOT] already connected to network, exiting")
		return nil
	}
	if connected {
		log.Info("[BOOT] connected, but AP mode is forced")
	}

	activator := ap.NewActivator(o.NM, log)
	sess, err := activator.Start(ctx, cfg.AP.SSID)
	if err != nil {
		return err
	}
	o.Audit.Write("ap.activated", map[string]any{
		"ssid":   cfg.AP.SSID,
		"device": string(sess.Device.Path()),
		"active": string(sess.Activation.ActiveConnection),
	})

	var td teardown
	td.push("deactivate", func(ctx context.Context) error { return activator.Stop(ctx, sess) })
	defer func() {
		td.run(ctx, log)
		o.Audit.Write("ap.teardown", map[string]any{"active": string(sess.Activation.ActiveConnection)})
	}()

	iface, err := sess.Device.Interface(ctx)
	if err != nil {
		return stage.Wrap(stage.Discovery, err)
	}
	log.WithField("iface", iface).Info("[AP] interface name")

	ip, err := ap.WaitForAddress(ctx, o.NM, sess.Device, cfg.AP.AddressTimeout, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"iface": iface, "ip": ip}).Info("[AP] address assigned")
	o.Audit.Write("ap.address", map[string]any{"iface": iface, "ip": ip.String()})

	addr := netip.AddrPortFrom(ip, uint16(cfg.Portal.Port))

	if err := o.Firewall.Apply(iface, addr.String()); err != nil {
		return stage.Wrap(stage.Firewall, err)
	}
	if cfg.Firewall.CleanupOnExit {
		td.push("firewall", func(context.Context) error { return o.Firewall.Remove() })
	}
	o.Audit.Write("firewall.applied", map[string]any{"iface": iface, "portal": addr.String()})

	if cfg.DNS.Enabled {
		stop, err := o.startDNS(ctx, iface, ip)
		if err != nil {
			return err
		}
		td.push("dns", func(context.Context) error { stop(); return nil })
	}

	if cfg.MDNS.Enabled {
		a, err := announce.Start(cfg.MDNS.Instance, cfg.MDNS.Service, iface, addr, cfg.AP.SSID, log)
		if err != nil {
			// discovery aid only, the portal works without it
			log.Warnf("[MDNS] announce failed: %v", err)
		} else {
			td.push("mdns", func(context.Context) error { a.Stop(); return nil })
		}
	}

	return o.servePortal(ctx, addr)
}

func (o *Orchestrator) servePortal(ctx context.Context, addr netip.AddrPort) error {
	cfg := o.Config
	_, errCh, err := portal.Start(ctx, portal.Config{
		Addr:            addr,
		Body:            cfg.Portal.Body,
		Visits:          o.Visits,
		Ping:            o.Ping,
		Logger:          o.log(),
		ReadTimeout:     cfg.Portal.ReadTimeout,
		WriteTimeout:    cfg.Portal.WriteTimeout,
		IdleTimeout:     cfg.Portal.IdleTimeout,
		ShutdownTimeout: cfg.Portal.ShutdownTimeout,
		Listen:          o.Listen,
	})
	if err != nil {
		return stage.Wrap(stage.Listener, err)
	}
	o.Audit.Write("portal.started", map[string]any{"addr": addr.String()})

	// errCh closes once the server has stopped
	var serveErr error
	for err := range errCh {
		serveErr = err
	}
	if serveErr != nil {
		return stage.Wrap(stage.Listener, serveErr)
	}
	return nil
}

func (o *Orchestrator) startDNS(ctx context.Context, iface string, ip netip.Addr) (func(), error) {
	cfg := o.Config
	log := o.log()

	srv, err := captivedns.NewServer(ip, cfg.DNS.TTL, log)
	if err != nil {
		return nil, stage.Wrap(stage.Listener, err)
	}
	listen := o.ListenPacket
	if listen == nil {
		listen = net.ListenPacket
	}
	target := netip.AddrPortFrom(ip, uint16(cfg.DNS.Port)).String()
	pc, err := listen("udp", target)
	if err != nil {
		return nil, stage.Wrap(stage.Listener, err)
	}
	if err := o.Firewall.RedirectDNS(iface, target); err != nil {
		_ = pc.Close()
		return nil, stage.Wrap(stage.Firewall, err)
	}

	dctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(dctx, pc); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Warnf("[DNS] stopped: %v", err)
		}
	}()
	return func() { cancel(); <-done }, nil
}

// teardown runs best-effort cleanup steps, newest first.
type teardown struct {
	names []string
	steps []func(context.Context) error
}

func (t *teardown) push(name string, f func(context.Context) error) {
	t.names = append(t.names, name)
	t.steps = append(t.steps, f)
}

func (t *teardown) run(ctx context.Context, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	for i := len(t.steps) - 1; i >= 0; i-- {
		if err := t.steps[i](ctx); err != nil {
			log.WithField("step", t.names[i]).Debugf("[BOOT] teardown: %v", err)
		}
	}
}

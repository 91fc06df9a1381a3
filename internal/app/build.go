package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/audit"
	"github.com/Dreaming-Codes/wifi-manager/internal/config"
	"github.com/Dreaming-Codes/wifi-manager/internal/firewall"
	"github.com/Dreaming-Codes/wifi-manager/internal/nm"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
	"github.com/Dreaming-Codes/wifi-manager/internal/store"
)

// NewLogger returns a text logger on stderr at level. Unknown levels fall
// back to info.
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Build connects the system bus, iptables and the optional Redis store and
// returns an orchestrator over them. The returned cleanup releases them.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Orchestrator, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// audit secret
	secret := ""
	if cfg.Audit.Enabled {
		s, err := config.ResolveSecret(cfg.Audit.SecretRef)
		if err != nil {
			return nil, cleanup, fmt.Errorf("resolve audit secret: %w", err)
		}
		secret = s
	}
	aud := audit.New(cfg.Audit.Enabled, secret)

	client, err := nm.Connect()
	if err != nil {
		return nil, cleanup, stage.Wrap(stage.Discovery, fmt.Errorf("connect NetworkManager: %w", err))
	}
	closers = append(closers, func() { _ = client.Close() })

	fw, err := firewall.New(cfg.Firewall.Rollback, log)
	if err != nil {
		return nil, cleanup, stage.Wrap(stage.Firewall, err)
	}

	o := &Orchestrator{
		NM:       client,
		Firewall: fw,
		Config:   cfg,
		Log:      log,
		Audit:    aud,
	}

	if cfg.Redis.Enabled {
		// redis password
		pwd := ""
		if cfg.Redis.AuthRef != "" {
			pwd, _ = config.ResolveSecret(cfg.Redis.AuthRef)
		}
		st := store.New(cfg.Redis, pwd)
		closers = append(closers, func() { _ = st.Close() })

		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := st.Ping(pctx); err != nil {
			log.Warnf("[BOOT] redis ping failed: %v", err)
		}
		cancel()
		o.Visits = st
		o.Ping = st.Ping
	}

	log.WithFields(logrus.Fields{
		"ssid":   cfg.AP.SSID,
		"port":   cfg.Portal.Port,
		"force":  cfg.AP.Force,
		"run_id": aud.RunID,
	}).Info("[BOOT] components ready")
	return o, cleanup, nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/app"
	"github.com/Dreaming-Codes/wifi-manager/internal/config"
	"github.com/Dreaming-Codes/wifi-manager/internal/stage"
)

// apName is the SSID used when neither config nor environment sets one.
// Override at build time with -ldflags "-X main.apName=...".
var apName = "WiFi-Manager-Setup"

func main() {
	defaultPath := os.Getenv("WIFI_MANAGER_CONFIG")
	if defaultPath == "" {
		defaultPath = "/etc/wifi-manager/config.yaml"
	}

	cfgPath := flag.String("config", defaultPath, "path to the YAML config file")
	forceAP := flag.Bool("force-ap", false, "start the access point even when a device is connected")
	ssid := flag.String("ssid", "", "access point SSID (overrides config and AP_NAME)")
	level := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logrus.Fatalf("load config failed: %v", err)
	}
	if *ssid != "" {
		cfg.AP.SSID = *ssid
	}
	if cfg.AP.SSID == "" {
		cfg.AP.SSID = apName
	}
	if *forceAP {
		cfg.AP.Force = true
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log := app.NewLogger(cfg.Log.Level)
	log.Infof("[BOOT] config loaded from %s", *cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, cleanup, err := app.Build(ctx, cfg, log)
	if err != nil {
		cleanup()
		fatal(log, err)
	}

	err = orch.Run(ctx)
	cleanup()
	if err != nil {
		fatal(log, err)
	}
	log.Info("[BOOT] done")
}

func fatal(log *logrus.Logger, err error) {
	log.WithField("stage", stage.Of(err).String()).Errorf("[BOOT] %v", err)
	os.Exit(1)
}

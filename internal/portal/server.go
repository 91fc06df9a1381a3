// Package portal serves the captive-portal landing page on the AP address.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

var ErrNoAddress = errors.New("portal: address is not set")

// Config configures the portal server. Addr is required.
type Config struct {
	Addr   netip.AddrPort
	// Body defaults to "Hello, World!".
	Body   string
	Visits VisitRecorder
	// Ping, when set, is reported by /healthz.
	Ping   func(context.Context) error
	Logger logrus.FieldLogger

	ReadTimeout     time.Duration // optional
	WriteTimeout    time.Duration // optional
	IdleTimeout     time.Duration // optional
	ShutdownTimeout time.Duration // optional

	// Listen opens the socket; defaults to net.Listen.
	Listen func(network, address string) (net.Listener, error)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Router returns the portal routes behind the host check.
func Router(cfg Config) http.Handler {
	body := cfg.Body
	if body == "" {
		body = "Hello, World!"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(HostCheck(cfg.Addr, cfg.Visits, cfg.Logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(body))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if cfg.Ping != nil {
			resp["redis_ping"] = cfg.Ping(r.Context()) == nil
		}
		writeJSON(w, http.StatusOK, resp)
	})
	return r
}

// Start binds the portal address and serves until ctx is canceled.
// Bind failures are returned immediately; the channel receives a terminal
// serve error, if any, and is closed once the server stops.
func Start(ctx context.Context, cfg Config) (*http.Server, <-chan error, error) {
	if !cfg.Addr.IsValid() {
		return nil, nil, ErrNoAddress
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	listen := cfg.Listen
	if listen == nil {
		listen = net.Listen
	}

	ln, err := listen("tcp", cfg.Addr.String())
	if err != nil {
		return nil, nil, fmt.Errorf("bind %s: %w", cfg.Addr, err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr.String(),
		Handler:      Router(cfg),
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 10*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}

	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		cfg.Logger.Infof("[PORTAL] listening on %s", cfg.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// shutdown watcher
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), durationOr(cfg.ShutdownTimeout, 5*time.Second))
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return srv, errCh, nil
}

func durationOr(v time.Duration, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}

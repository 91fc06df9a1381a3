package portal

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/store"
)

var portalAddr = netip.MustParseAddrPort("192.168.4.1:3000")

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeVisits struct {
	mu     sync.Mutex
	visits []store.Visit
	err    error
}

func (f *fakeVisits) RecordVisit(_ context.Context, v store.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits = append(f.visits, v)
	return f.err
}

func serve(h http.Handler, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	req.RemoteAddr = "192.168.4.23:51234"
	req.Header.Set("User-Agent", "CaptiveNetworkSupport/1.0")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHostCheckPassesPortalHost(t *testing.T) {
	h := Router(Config{Addr: portalAddr, Logger: quiet()})

	rr := serve(h, "192.168.4.1:3000", "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "Hello, World!" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestHostCheckRedirects(t *testing.T) {
	visits := &fakeVisits{}
	h := Router(Config{Addr: portalAddr, Visits: visits, Logger: quiet()})

	for _, host := range []string{"example.com", "", "192.168.4.1", "192.168.4.1:80", "[::1]:3000"} {
		rr := serve(h, host, "/generate_204")
		if rr.Code != http.StatusFound {
			t.Fatalf("host %q: status = %d, want 302", host, rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "http://192.168.4.1:3000/" {
			t.Fatalf("host %q: location = %q", host, loc)
		}
	}

	if len(visits.visits) != 5 {
		t.Fatalf("recorded %d visits, want 5", len(visits.visits))
	}
	v := visits.visits[0]
	if v.IP != "192.168.4.23" || v.Host != "example.com" || v.Path != "/generate_204" || v.UserAgent != "CaptiveNetworkSupport/1.0" {
		t.Fatalf("unexpected visit: %+v", v)
	}
}

func TestHostCheckRecordFailureDoesNotChangeResponse(t *testing.T) {
	h := Router(Config{Addr: portalAddr, Visits: &fakeVisits{err: errors.New("redis down")}, Logger: quiet()})

	rr := serve(h, "example.com", "/")
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHostMatches(t *testing.T) {
	on80 := netip.MustParseAddrPort("10.0.0.1:80")

	cases := []struct {
		host   string
		portal netip.AddrPort
		want   bool
	}{
		{"192.168.4.1:3000", portalAddr, true},
		{"192.168.4.1", portalAddr, false},
		{"192.168.4.1:3001", portalAddr, false},
		{"", portalAddr, false},
		{"10.0.0.1", on80, true},
		{"10.0.0.1:80", on80, true},
		{"10.0.0.10", on80, false},
	}
	for _, tc := range cases {
		if got := HostMatches(tc.host, tc.portal); got != tc.want {
			t.Fatalf("HostMatches(%q, %s) = %v, want %v", tc.host, tc.portal, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	h := Router(Config{
		Addr:   portalAddr,
		Ping:   func(context.Context) error { return nil },
		Logger: quiet(),
	})

	rr := serve(h, "192.168.4.1:3000", "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); got != "{\"redis_ping\":true,\"status\":\"ok\"}\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestStartServesUntilCanceled(t *testing.T) {
	var requested string
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, errCh, err := Start(ctx, Config{
		Addr:   portalAddr,
		Body:   "setup",
		Logger: quiet(),
		Listen: func(network, address string) (net.Listener, error) {
			requested = address
			return ln, nil
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if requested != "192.168.4.1:3000" {
		t.Fatalf("bound %q, want 192.168.4.1:3000", requested)
	}

	client := &http.Client{
		Timeout: 2 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, _ := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/", nil)
	req.Host = "192.168.4.1:3000"
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "setup" {
		t.Fatalf("body = %q", b)
	}

	cancel()
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Fatalf("serve error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestStartBindFailure(t *testing.T) {
	_, _, err := Start(context.Background(), Config{
		Addr:   portalAddr,
		Logger: quiet(),
		Listen: func(string, string) (net.Listener, error) {
			return nil, errors.New("cannot assign requested address")
		},
	})
	if err == nil {
		t.Fatalf("expected bind error")
	}

	if _, _, err := Start(context.Background(), Config{}); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("err = %v, want ErrNoAddress", err)
	}
}

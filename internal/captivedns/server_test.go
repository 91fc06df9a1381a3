package captivedns

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

func startTestServer(t *testing.T, answer string) (*Server, string) {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	s, err := NewServer(netip.MustParseAddr(answer), 30, l)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, pc) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("dns server did not stop")
		}
	})
	return s, pc.LocalAddr().String()
}

func exchange(t *testing.T, addr, name string, qtype uint16) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}

	var (
		resp *dns.Msg
		err  error
	)
	// the server may still be activating on the first attempt
	for i := 0; i < 5; i++ {
		resp, _, err = c.Exchange(m, addr)
		if err == nil {
			return resp
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("exchange %s: %v", name, err)
	return nil
}

func TestAnswersEveryName(t *testing.T) {
	s, addr := startTestServer(t, "192.168.4.1")

	for _, name := range []string{"connectivitycheck.gstatic.com", "captive.apple.com", "example.org"} {
		resp := exchange(t, addr, name, dns.TypeA)
		if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) != 1 {
			t.Fatalf("%s: rcode=%d answers=%d", name, resp.Rcode, len(resp.Answer))
		}
		a, ok := resp.Answer[0].(*dns.A)
		if !ok {
			t.Fatalf("%s: answer is %T", name, resp.Answer[0])
		}
		if !a.A.Equal(net.ParseIP("192.168.4.1")) || a.Hdr.Ttl != 30 {
			t.Fatalf("%s: got %s ttl %d", name, a.A, a.Hdr.Ttl)
		}
		if a.Hdr.Name != dns.Fqdn(name) {
			t.Fatalf("answer name = %s", a.Hdr.Name)
		}
	}
	if s.Queries() < 3 {
		t.Fatalf("queries = %d", s.Queries())
	}
}

func TestAAAAIsEmpty(t *testing.T) {
	_, addr := startTestServer(t, "10.0.0.1")

	resp := exchange(t, addr, "example.org", dns.TypeAAAA)
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) != 0 {
		t.Fatalf("rcode=%d answers=%v", resp.Rcode, resp.Answer)
	}
}

func TestNewServerRejectsIPv6(t *testing.T) {
	if _, err := NewServer(netip.MustParseAddr("fe80::1"), 60, nil); err != ErrNotIPv4 {
		t.Fatalf("err = %v, want ErrNotIPv4", err)
	}
}

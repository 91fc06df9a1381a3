// Package captivedns answers every A query with the portal address so
// clients resolve any name to the captive portal.
package captivedns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

var ErrNotIPv4 = errors.New("captivedns: answer must be an IPv4 address")

// Server is a catch-all DNS responder.
type Server struct {
	Answer netip.Addr
	TTL    uint32
	Log    logrus.FieldLogger

	queries atomic.Uint64
}

func NewServer(answer netip.Addr, ttl uint32, log logrus.FieldLogger) (*Server, error) {
	if !answer.Is4() {
		return nil, ErrNotIPv4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{Answer: answer, TTL: ttl, Log: log}, nil
}

// Queries returns how many queries have been answered.
func (s *Server) Queries() uint64 { return s.queries.Load() }

// ServeDNS answers A questions with the portal address. Other types get
// an empty NOERROR reply so clients fall back to IPv4.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	if r.Opcode != dns.OpcodeQuery {
		m.SetRcode(r, dns.RcodeNotImplemented)
		_ = w.WriteMsg(m)
		return
	}

	ip := net.IP(s.Answer.AsSlice())
	for _, q := range r.Question {
		s.queries.Add(1)
		if q.Qtype != dns.TypeA || q.Qclass != dns.ClassINET {
			continue
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: s.TTL},
			A:   ip,
		})
		s.Log.WithField("name", q.Name).Debug("[DNS] answered")
	}
	_ = w.WriteMsg(m)
}

// ListenAndServe binds addr over UDP and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return s.Serve(ctx, pc)
}

// Serve answers queries on pc until ctx ends. pc is closed on return.
func (s *Server) Serve(ctx context.Context, pc net.PacketConn) error {
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           s,
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ActivateAndServe() }()

	select {
	case <-started:
	case err := <-errCh:
		_ = pc.Close()
		return err
	}
	s.Log.Infof("[DNS] answering on %s with %s", pc.LocalAddr(), s.Answer)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		_ = pc.Close()
		return err
	}
}

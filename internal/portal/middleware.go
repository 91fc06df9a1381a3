package portal

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dreaming-Codes/wifi-manager/internal/store"
)

// VisitRecorder receives every client bounced by the host check.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, v store.Visit) error
}

const recordTimeout = 500 * time.Millisecond

// HostMatches reports whether host names the portal. Hosts compare
// case-insensitively and a host without a port only matches a portal on
// port 80.
func HostMatches(host string, portal netip.AddrPort) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, portal.String()) {
		return true
	}
	return portal.Port() == 80 && strings.EqualFold(host, portal.Addr().String())
}

// HostCheck redirects every request whose Host does not name the portal to
// the portal root with 302 Found.
func HostCheck(portal netip.AddrPort, visits VisitRecorder, log logrus.FieldLogger) func(http.Handler) http.Handler {
	target := "http://" + portal.String() + "/"
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if HostMatches(r.Host, portal) {
				next.ServeHTTP(w, r)
				return
			}

			log.WithFields(logrus.Fields{
				"host":   r.Host,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Debug("[PORTAL] redirect")

			if visits != nil {
				record(r, visits, log)
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

func record(r *http.Request, visits VisitRecorder, log logrus.FieldLogger) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	ctx, cancel := context.WithTimeout(r.Context(), recordTimeout)
	defer cancel()

	err = visits.RecordVisit(ctx, store.Visit{
		IP:        ip,
		Host:      r.Host,
		Path:      r.URL.Path,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		log.WithField("remote", ip).Debugf("[PORTAL] record visit failed: %v", err)
	}
}

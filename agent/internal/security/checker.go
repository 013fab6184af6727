package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const (
	dialTimeout    = 10 * time.Second
	expiringWithin = 30 // days
)

// Certificate states reported in CertStatus.Status.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// Check dials the TLS endpoint behind rawURL and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for non-HTTPS endpoints since there is no certificate to
// inspect. The dial is bounded by a 10-second timeout.
func Check(ctx context.Context, rawURL string, insecureSkipVerify bool) *types.CertStatus {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &types.CertStatus{Endpoint: u.Scheme + "://" + u.Host}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // user-configured
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft, cs.Status = classify(leaf.NotAfter, time.Now())
	return cs
}

// classify returns whole days until notAfter and the matching status.
func classify(notAfter, now time.Time) (int, string) {
	daysLeft := notAfter.Sub(now).Hours() / 24
	days := int(math.Floor(daysLeft))
	switch {
	case daysLeft <= 0:
		return days, StatusExpired
	case daysLeft <= expiringWithin:
		return days, StatusExpiring
	default:
		return days, StatusValid
	}
}

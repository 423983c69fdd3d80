package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringDays is the remaining lifetime below which a certificate is
// reported as expiring.
const expiringDays = 30

// CertStatus describes the leaf certificate of an HTTPS endpoint.
type CertStatus struct {
	Endpoint string
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
}

// Check dials the TLS endpoint of rawURL and returns a CertStatus describing
// the leaf certificate.
//
// Returns nil for non-HTTPS URLs. The dial is bounded by a 10-second timeout
// so an unreachable host does not hold up the caller.
func Check(ctx context.Context, rawURL string, insecureSkipVerify bool) *CertStatus {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: u.Host}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		slog.Debug("security: tls dial failed", "host", host, "err", err)
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
	daysLeft := time.Until(leaf.NotAfter).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = StatusExpired
	case daysLeft <= expiringDays:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

// Watch calls Check immediately and then every interval until ctx is done,
// passing each non-nil result to report.
func Watch(ctx context.Context, rawURL string, insecureSkipVerify bool, interval time.Duration, report func(*CertStatus)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if cs := Check(ctx, rawURL, insecureSkipVerify); cs != nil {
			report(cs)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Package transport provides the HTTP transport used to reach upstream
// commerce platforms.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// BROWSER FINGERPRINT TRANSPORT
// =============================================================================
//
// Store CDNs rate-limit Go's default TLS fingerprint aggressively. This
// transport presents a browser ClientHello through uTLS and speaks whichever
// protocol ALPN settles on:
//
//   1. First request to a host dials with h2 advertised.
//   2. If the host answers "h2", the connection is kept by http2.Transport.
//   3. Otherwise the host is remembered as HTTP/1.1-only and the request is
//      sent on a fresh HTTP/1.1 connection.
//
// Cart mutations are not idempotent, so a request is only re-sent over
// HTTP/1.1 when the HTTP/2 attempt failed at dial time, before anything
// was written.
// =============================================================================

// Fingerprint names the browser ClientHello to mimic.
type Fingerprint string

const (
	FingerprintChrome  Fingerprint = "chrome"
	FingerprintFirefox Fingerprint = "firefox"
	FingerprintSafari  Fingerprint = "safari"
	FingerprintEdge    Fingerprint = "edge"
)

// ParseFingerprint validates a fingerprint name. Empty means chrome.
func ParseFingerprint(s string) (Fingerprint, error) {
	switch f := Fingerprint(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FingerprintChrome, nil
	case FingerprintChrome, FingerprintFirefox, FingerprintSafari, FingerprintEdge:
		return f, nil
	default:
		return "", fmt.Errorf("unknown TLS fingerprint %q (chrome, firefox, safari or edge)", s)
	}
}

func (f Fingerprint) helloID() utls.ClientHelloID {
	switch f {
	case FingerprintFirefox:
		return utls.HelloFirefox_Auto
	case FingerprintSafari:
		return utls.HelloSafari_Auto
	case FingerprintEdge:
		return utls.HelloEdge_Auto
	default:
		return utls.HelloChrome_Auto
	}
}

// errNoH2 is returned by the HTTP/2 dialer when ALPN picked something else.
var errNoH2 = errors.New("server did not negotiate h2")

// Config configures New.
type Config struct {
	DialTimeout time.Duration // default 30s
	Fingerprint Fingerprint   // default chrome
}

// New creates an http.RoundTripper that presents a browser TLS fingerprint
// to upstream servers. Plain http URLs use an ordinary HTTP/1.1 transport.
func New(cfg Config) http.RoundTripper {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = FingerprintChrome
	}

	t := &fingerprintTransport{
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
		hello:  cfg.Fingerprint.helloID(),
	}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return t.dialH2(ctx, network, addr)
		},
	}
	t.h1 = &http.Transport{
		DialContext: t.dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := t.dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return t
}

type fingerprintTransport struct {
	dialer *net.Dialer
	hello  utls.ClientHelloID
	h2     *http2.Transport
	h1     *http.Transport

	mu      sync.Mutex
	h1Hosts map[string]bool // hosts known to refuse h2, keyed by host:port
}

// RoundTrip implements http.RoundTripper.
func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	addr := hostPort(req)
	if t.isH1(addr) {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err != nil && t.isH1(addr) {
		// The h2 dial was refused before the request left.
		return t.h1.RoundTrip(req)
	}
	return resp, err
}

// CloseIdleConnections closes idle connections on both protocols.
func (t *fingerprintTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

func (t *fingerprintTransport) isH1(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h1Hosts[addr]
}

func (t *fingerprintTransport) markH1(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.h1Hosts == nil {
		t.h1Hosts = make(map[string]bool)
	}
	t.h1Hosts[addr] = true
}

func (t *fingerprintTransport) dialH2(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := t.dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
		conn.Close()
		t.markH1(addr)
		return nil, errNoH2
	}
	return conn, nil
}

// dial establishes a TLS connection with the configured browser fingerprint.
func (t *fingerprintTransport) dial(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, t.hello)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}

// hostPort returns the dial address for req, defaulting the https port.
func hostPort(req *http.Request) string {
	host := req.URL.Host
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), "443")
}

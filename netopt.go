package mqttc

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Connector produces the byte stream the engine runs over. TCPConnector and
// TLSConnector cover the usual transports; tests substitute their own. The
// client retains its connector so the stream can be re-established on
// reconnect.
type Connector interface {
	Connect(addr string) (net.Conn, error)
}

// TCPConnector dials plain TCP.
type TCPConnector struct {
	// Timeout bounds the dial. Zero means no limit.
	Timeout time.Duration
}

// Connect implements Connector.
func (c TCPConnector) Connect(addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	return dialer.Dial("tcp", addr)
}

// TLSConnector dials TCP and runs a TLS handshake on top.
type TLSConnector struct {
	// Config for the TLS session. Nil uses the defaults, verifying the
	// broker certificate against the system roots.
	Config *tls.Config

	// Timeout bounds the dial. Zero means no limit.
	Timeout time.Duration
}

// Connect implements Connector.
func (c TLSConnector) Connect(addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	return tls.DialWithDialer(&dialer, "tcp", addr, c.Config)
}

// isSecureScheme reports whether the URL scheme selects TLS. Unknown schemes
// are an error.
func isSecureScheme(u *url.URL) (bool, error) {
	switch u.Scheme {
	case "tcp", "mqtt":
		return false, nil
	case "tls", "ssl", "mqtts":
		return true, nil
	default:
		return false, fmt.Errorf("%w %q", ErrInvalidURLScheme, u.Scheme)
	}
}

// hostPort resolves the broker address from the URL, filling in the default
// MQTT port for the scheme when none is given.
func hostPort(u *url.URL, secure bool) string {
	port := u.Port()
	if port == "" {
		if secure {
			port = "8883"
		} else {
			port = "1883"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

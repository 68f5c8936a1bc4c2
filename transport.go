package kinetic

import (
	"context"
	"crypto/tls"
	"io"
	"net"
)

// Transport dials the byte-level connection a Session speaks the Kinetic
// protocol over. The default implementation dials plain TCP or TLS
// depending on Config.UseSSL; callers needing a different network stack
// (a test harness, a multiplexed tunnel) can supply their own.
type Transport interface {
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
}

// tcpTransport is the default Transport: plain TCP, or TLS when a
// *tls.Config is supplied. TLS handshake internals are out of scope for
// this core (spec non-goal); tcpTransport only selects the dialer.
type tcpTransport struct {
	tlsConfig *tls.Config
}

func (t *tcpTransport) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, portString(port))
	var d net.Dialer
	if t.tlsConfig == nil {
		return d.DialContext(ctx, "tcp", addr)
	}
	td := tls.Dialer{NetDialer: &d, Config: t.tlsConfig}
	return td.DialContext(ctx, "tcp", addr)
}

func portString(p int) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [6]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// readExact reads exactly len(buf) bytes from conn, looping over short
// reads until buf is full or an error occurs.
func readExact(conn net.Conn, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF && n > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// writeAll writes all of buf to conn, looping over short writes.
func writeAll(conn net.Conn, buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := conn.Write(buf[n:])
		n += m
		if err != nil {
			return err
		}
	}
	return nil
}


package recon

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode"
)

// maxBannerSize caps how much of a service's greeting is kept.
const maxBannerSize = 1024

var (
	httpProbePorts = map[int]bool{80: true, 8000: true, 8008: true, 8080: true, 8081: true, 8888: true}
	tlsProbePorts  = map[int]bool{443: true, 8443: true}
	smtpProbePorts = map[int]bool{25: true, 587: true}
)

// grabBanner captures a best-effort banner from an open connection. Ports
// with a known protocol get a minimal probe first; everything else is read
// passively. The whole exchange is bounded by timeout.
func grabBanner(ctx context.Context, conn net.Conn, host string, port int, timeout time.Duration) string {
	_ = conn.SetDeadline(time.Now().Add(timeout))

	switch {
	case tlsProbePorts[port]:
		tlsConn := tls.Client(conn, &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         serverName(host),
		})
		hctx, cancel := context.WithTimeout(ctx, timeout)
		err := tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			return ""
		}
		return headBanner(tlsConn, host)

	case httpProbePorts[port]:
		return headBanner(conn, host)

	case smtpProbePorts[port]:
		greeting := readBanner(conn)
		if _, err := fmt.Fprintf(conn, "EHLO aegis.local\r\n"); err != nil {
			return greeting
		}
		return joinBanner(greeting, readBanner(conn))
	}

	return readBanner(conn)
}

func headBanner(conn net.Conn, host string) string {
	req := fmt.Sprintf("HEAD / HTTP/1.1\r\nHost: %s\r\nUser-Agent: %s\r\nConnection: close\r\n\r\n", host, DefaultUserAgent)
	if _, err := conn.Write([]byte(req)); err != nil {
		return ""
	}
	return readBanner(conn)
}

// readBanner performs a single bounded read. Services that stay silent
// produce an empty banner once the connection deadline passes.
func readBanner(conn net.Conn) string {
	buf := make([]byte, maxBannerSize)
	n, _ := conn.Read(buf)
	return sanitizeBanner(buf[:n])
}

func joinBanner(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return truncate(a+"\n"+b, maxBannerSize)
}

// sanitizeBanner keeps printable text and line breaks.
func sanitizeBanner(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	return truncate(strings.TrimSpace(s), maxBannerSize)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

func serverName(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	return host
}

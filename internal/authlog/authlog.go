// Package authlog writes login failures in a fail2ban friendly format and
// resolves the client address behind proxies.
package authlog

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"
)

const (
	Unknown   = "UNKNOWN"
	timestamp = "2006-01-02 15:04:05 MST"
)

var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

// ClientIP returns the first public address among CF-Connecting-IP, the
// X-Forwarded-For chain and the peer address, or Unknown.
func ClientIP(r *http.Request) string {
	if ip, ok := public(r.Header.Get("CF-Connecting-IP")); ok {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip, ok := public(part); ok {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := public(host); ok {
		return ip
	}
	return Unknown
}

func public(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return "", false
	}
	for _, p := range reserved {
		if p.Contains(addr) {
			return "", false
		}
	}
	return addr.String(), true
}

type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string { return l.path }

// Check creates the log file if needed and reports when it cannot be written.
func (l *Log) Check() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("log file %s is not writable, create it and set permissions (e.g. 644): %w", l.path, err)
	}
	return f.Close()
}

// Failure appends one line for a failed login attempt.
func (l *Log) Failure(ip, login string) error {
	line := fmt.Sprintf("[%s] login failure from %s for %s\n",
		l.now().Format(timestamp), ip, sanitize(login))

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open auth failure log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("write auth failure log: %w", err)
	}
	return f.Close()
}

// sanitize keeps a login on one line.
func sanitize(login string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, login)
}

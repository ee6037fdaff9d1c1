// Package ssrf classifies hostnames and IP literals so outbound HTTP never
// reaches loopback, link-local, or private address space.
package ssrf

import (
	"fmt"
	"net"
	"strings"
)

// BlockedError is returned when a host is rejected by SSRF protection rules.
type BlockedError struct {
	Host   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("ssrf: blocked host %q: %s", e.Host, e.Reason)
}

// blockedHostnames are always rejected regardless of resolution.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// blockedSuffixes reject whole internal naming zones (*.local and friends).
var blockedSuffixes = []string{".localhost", ".local", ".internal"}

// Normalize lowercases a hostname, trims whitespace and trailing dots, and
// unwraps IPv6 brackets.
func Normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	return h
}

// IsPrivateIP reports whether ip falls in loopback, link-local, private
// (RFC1918, fc00::/7), carrier-grade NAT, multicast, or unspecified space.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	// 100.64.0.0/10 carrier-grade NAT, not covered by IsPrivate.
	if v4 := ip.To4(); v4 != nil && v4[0] == 100 && v4[1] >= 64 && v4[1] <= 127 {
		return true
	}
	return false
}

// CheckHost rejects a hostname or IP literal that names loopback, private,
// or internal address space. Literal-form matching only; DNS re-resolution
// is the transport's concern.
func CheckHost(host string) error {
	h := Normalize(host)
	if h == "" {
		return &BlockedError{Host: host, Reason: "empty hostname"}
	}
	if blockedHostnames[h] {
		return &BlockedError{Host: host, Reason: "blocked hostname"}
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(h, suffix) {
			return &BlockedError{Host: host, Reason: "internal domain suffix"}
		}
	}
	// IPv4-mapped IPv6 literals hide the v4 address behind ::ffff:.
	if strings.HasPrefix(h, "::ffff:") {
		if ip := net.ParseIP(h); ip != nil && IsPrivateIP(ip) {
			return &BlockedError{Host: host, Reason: "private address"}
		}
	}
	if ip := net.ParseIP(h); ip != nil {
		if IsPrivateIP(ip) {
			return &BlockedError{Host: host, Reason: "private address"}
		}
		// 169.254.169.254 is caught by link-local above; keep the cloud
		// metadata host explicit for the v6 mapped form.
		if ip.Equal(net.ParseIP("169.254.169.254")) {
			return &BlockedError{Host: host, Reason: "cloud metadata endpoint"}
		}
	}
	return nil
}

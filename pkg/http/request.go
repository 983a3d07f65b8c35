package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction
type IPConfig struct {
	TrustedProxies []string // proxy addresses or CIDR ranges
}

// ExtractClientIP returns the caller's address. Forwarding headers are
// read only when the direct peer is a trusted proxy. X-Forwarded-For is
// walked right to left and the first hop that is not itself a trusted
// proxy wins, since every hop left of it may be client-supplied.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)
	if config == nil || !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if !isValidIP(hop) {
				continue
			}
			if !isTrustedProxy(hop, config.TrustedProxies) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return xri
	}

	return remoteIP
}

// getRemoteAddr strips the port from RemoteAddr
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// isTrustedProxy reports whether ip equals, or falls inside, any entry.
// Unparseable entries are ignored.
func isTrustedProxy(ip string, trustedProxies []string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	for _, entry := range trustedProxies {
		if strings.Contains(entry, "/") {
			if _, ipNet, err := net.ParseCIDR(entry); err == nil && ipNet.Contains(addr) {
				return true
			}
			continue
		}
		if proxy := net.ParseIP(entry); proxy != nil && proxy.Equal(addr) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

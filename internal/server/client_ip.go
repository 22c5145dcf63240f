package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// clientIP returns the originating client address. X-Real-IP and then the
// first X-Forwarded-For hop are honored only when the peer is a trusted proxy.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := normalizeIP(r.RemoteAddr)
	if !isTrusted(remote, trusted) {
		return remote
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return normalizeIP(realIP)
	}
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return normalizeIP(first)
		}
	}
	return remote
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseTrustedProxies accepts bare addresses and CIDRs. Bad entries are
// logged and skipped.
func parseTrustedProxies(entries []string, logger *zap.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				logger.Warn("Ignoring invalid trusted proxy", zap.String("entry", e), zap.Error(err))
				continue
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			logger.Warn("Ignoring invalid trusted proxy", zap.String("entry", e), zap.Error(err))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// normalizeIP strips the port and unmaps IPv4-in-IPv6 addresses.
func normalizeIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return host
}

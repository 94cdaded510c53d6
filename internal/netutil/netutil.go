// Package netutil normalizes caller details for request logs and rate-limit keys.
package netutil

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

const MaxUserAgentLength = 512

// NormalizeIP returns the canonical, zone-free IP of a bare address or host:port
// ("192.0.2.4:1234", "[2001:db8::1]:443"). ok is false when nothing parses.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return canonical(ap.Addr())
	}
	for _, host := range hostCandidates(raw) {
		if addr, err := netip.ParseAddr(host); err == nil {
			return canonical(addr)
		}
	}
	return raw, false
}

// hostCandidates lists the spellings of raw worth parsing as a bare address, most literal first.
func hostCandidates(raw string) []string {
	out := []string{raw}
	if strings.HasPrefix(raw, "[") {
		if end := strings.LastIndex(raw, "]"); end > 0 {
			out = append(out, raw[1:end])
		}
	}
	if idx := strings.LastIndex(raw, ":"); idx > 0 {
		out = append(out, raw[:idx])
	}
	return out
}

func canonical(addr netip.Addr) (string, bool) {
	addr = addr.WithZone("")
	if !addr.IsValid() {
		return "", false
	}
	return addr.String(), true
}

// TruncateUserAgent caps ua at MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	n := 0
	for i := range ua {
		if n == MaxUserAgentLength {
			return ua[:i]
		}
		n++
	}
	return ua
}

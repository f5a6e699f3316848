// Package identity normalizes MAC and IP strings into comparison keys and
// builds the lookup index used to attribute alerts to devices. Every
// function is total: malformed or non-string input yields an empty key.
package identity

import (
	"strings"

	"github.com/HerbHall/netdash/pkg/models"
)

// KeyPrefixIP marks a device key derived from an IP address because the
// device has no usable MAC.
const KeyPrefixIP = "ip:"

// NormalizeMAC lowercases a MAC address and strips every character that is
// not a hex digit, so "AA:BB:CC", "aa-bb-cc" and "aabb.cc" compare equal.
func NormalizeMAC(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NormalizeIP lowercases and trims an address and drops any "/mask" suffix.
func NormalizeIP(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// IsSentinelIP reports whether a normalized IP is a placeholder rather than
// a real address.
func IsSentinelIP(ip string) bool {
	switch ip {
	case "", models.UnassignedIP, "unknown", "n/a", "none", "null":
		return true
	}
	return false
}

// IsSentinelMAC reports whether a raw MAC value is missing or a placeholder
// such as "Not found".
func IsSentinelMAC(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "not found", "unknown", "n/a", "none", "null":
		return true
	}
	return NormalizeMAC(raw) == ""
}

// ResolveDeviceIP picks the primary address for a device: the first
// interface whose normalized IP is real, otherwise the explicit fallback
// address, otherwise "".
func ResolveDeviceIP(interfaces []models.InterfaceRecord, fallback string) string {
	for _, iface := range interfaces {
		if ip := NormalizeIP(iface.IPAddress); !IsSentinelIP(ip) {
			return ip
		}
	}
	if ip := NormalizeIP(fallback); !IsSentinelIP(ip) {
		return ip
	}
	return ""
}

// DeviceKey returns the correlation key for a device: its normalized MAC,
// or "ip:<primary ip>" when the MAC is unusable. Devices with neither have
// no key.
func DeviceKey(d models.DeviceRecord) string {
	if !IsSentinelMAC(d.MAC) {
		return NormalizeMAC(d.MAC)
	}
	if ip := NormalizeIP(d.PrimaryIP); !IsSentinelIP(ip) {
		return KeyPrefixIP + ip
	}
	return ""
}

// NormalizeKey converts user-supplied device key input (a MAC in any
// format, or an "ip:" key) into the canonical key form.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), KeyPrefixIP) {
		ip := NormalizeIP(raw[len(KeyPrefixIP):])
		if IsSentinelIP(ip) {
			return ""
		}
		return KeyPrefixIP + ip
	}
	return NormalizeMAC(raw)
}

// DeviceIPs returns every real normalized address of a device: the primary
// IP first, then each interface IP, without duplicates.
func DeviceIPs(d models.DeviceRecord) []string {
	seen := make(map[string]struct{}, len(d.Interfaces)+1)
	out := make([]string, 0, len(d.Interfaces)+1)
	add := func(raw string) {
		ip := NormalizeIP(raw)
		if IsSentinelIP(ip) {
			return
		}
		if _, ok := seen[ip]; ok {
			return
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	add(d.PrimaryIP)
	for _, iface := range d.Interfaces {
		add(iface.IPAddress)
	}
	return out
}

// SameDevice reports whether two records describe the same device by
// primary IP or MAC.
func SameDevice(a, b models.DeviceRecord) bool {
	if ipA, ipB := NormalizeIP(a.PrimaryIP), NormalizeIP(b.PrimaryIP); !IsSentinelIP(ipA) && ipA == ipB {
		return true
	}
	if !IsSentinelMAC(a.MAC) && !IsSentinelMAC(b.MAC) {
		return NormalizeMAC(a.MAC) == NormalizeMAC(b.MAC)
	}
	return false
}

package identity

import "github.com/HerbHall/netdash/pkg/models"

// Index maps normalized MACs and IPs to device keys. It is built from one
// device snapshot and never patched; a new snapshot means a new Index.
type Index struct {
	byMAC map[string]string
	byIP  map[string]string
}

// BuildIndex derives the correlation index for a device collection. Each
// device contributes its MAC and every real IP (primary and per-interface).
// When two devices claim the same IP the first one in collection order wins.
func BuildIndex(devices []models.DeviceRecord) *Index {
	idx := &Index{
		byMAC: make(map[string]string, len(devices)),
		byIP:  make(map[string]string, len(devices)*2),
	}
	for _, d := range devices {
		key := DeviceKey(d)
		if key == "" {
			continue
		}
		if !IsSentinelMAC(d.MAC) {
			idx.byMAC[NormalizeMAC(d.MAC)] = key
		}
		for _, ip := range DeviceIPs(d) {
			if _, taken := idx.byIP[ip]; !taken {
				idx.byIP[ip] = key
			}
		}
	}
	return idx
}

// Lookup resolves a device key from a carried MAC and IP. A carried MAC is
// authoritative even when no device in the index owns it yet; the IP is
// consulted only when no MAC was carried.
func (i *Index) Lookup(rawMAC, rawIP string) (string, bool) {
	if !IsSentinelMAC(rawMAC) {
		return NormalizeMAC(rawMAC), true
	}
	if i == nil {
		return "", false
	}
	ip := NormalizeIP(rawIP)
	if IsSentinelIP(ip) {
		return "", false
	}
	key, ok := i.byIP[ip]
	return key, ok
}

// KeyForMAC returns the key of the indexed device owning mac.
func (i *Index) KeyForMAC(rawMAC string) (string, bool) {
	if i == nil {
		return "", false
	}
	key, ok := i.byMAC[NormalizeMAC(rawMAC)]
	return key, ok
}

// Len returns the number of indexed IP addresses.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byIP)
}

package normalize

import (
	"sort"

	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/pkg/models"
)

// Credential normalizes one raw credential object.
func Credential(raw Raw) models.CredentialRecord {
	if raw == nil {
		raw = Raw{}
	}
	return models.CredentialRecord{
		DeviceType:   pickString(raw, "device_type", "deviceType", "DeviceType", "type"),
		Username:     pickString(raw, "username", "Username", "user"),
		Password:     pickString(raw, "password", "Password"),
		Secret:       pickString(raw, "secret", "Secret", "enable_secret", "enable"),
		SNMPPassword: pickString(raw, "snmp_password", "snmpPassword", "SNMPPassword", "community"),
		IP:           pickString(raw, "ip", "IP", "ip_address", "ipAddress", "host"),
	}
}

// Credentials normalizes a credential list payload.
func Credentials(v any) []models.CredentialRecord {
	items := Records(v)
	out := make([]models.CredentialRecord, 0, len(items))
	for _, item := range items {
		out = append(out, Credential(item))
	}
	return out
}

// Group normalizes one raw group object. Member MACs collapse under MAC
// normalization and come back sorted.
func Group(raw Raw) models.GroupWithMembers {
	if raw == nil {
		raw = Raw{}
	}
	name := pickString(raw, "group", "group_name", "groupName", "name")
	var members []any
	if v, ok := pickValue(raw, "devices", "device_macs", "deviceMacs", "members", "macs"); ok {
		if list, ok := v.([]any); ok {
			members = list
		}
	}
	macs := make([]string, 0, len(members))
	for _, m := range members {
		if obj, ok := asRaw(m); ok {
			macs = append(macs, pickString(obj, deviceMACKeys...))
			continue
		}
		if s, ok := m.(string); ok {
			macs = append(macs, s)
		}
	}
	return NewGroup(name, macs)
}

// NewGroup builds a GroupWithMembers with set semantics over normalized MACs.
func NewGroup(name string, macs []string) models.GroupWithMembers {
	seen := make(map[string]struct{}, len(macs))
	out := make([]string, 0, len(macs))
	for _, raw := range macs {
		if identity.IsSentinelMAC(raw) {
			continue
		}
		mac := identity.NormalizeMAC(raw)
		if _, dup := seen[mac]; dup {
			continue
		}
		seen[mac] = struct{}{}
		out = append(out, mac)
	}
	sort.Strings(out)
	return models.GroupWithMembers{Group: name, DeviceMACs: out}
}

// Groups normalizes a group list payload. A payload of bare group names is
// accepted as groups without members.
func Groups(v any) []models.GroupWithMembers {
	if list, ok := v.([]any); ok {
		out := make([]models.GroupWithMembers, 0, len(list))
		for _, item := range list {
			switch t := item.(type) {
			case string:
				out = append(out, NewGroup(t, nil))
			default:
				if m, ok := asRaw(t); ok {
					out = append(out, Group(m))
				}
			}
		}
		return out
	}
	if m, ok := asRaw(v); ok && len(m) > 0 && !hasEnvelope(m) && allLists(m) {
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		out := make([]models.GroupWithMembers, 0, len(names))
		for _, name := range names {
			out = append(out, Group(Raw{"group": name, "devices": m[name]}))
		}
		return out
	}
	items := Records(v)
	out := make([]models.GroupWithMembers, 0, len(items))
	for _, item := range items {
		out = append(out, Group(item))
	}
	return out
}

func allLists(m Raw) bool {
	for _, v := range m {
		if _, ok := v.([]any); !ok {
			return false
		}
	}
	return true
}

// WhiteList normalizes the white-list payload into a word list. It accepts
// a bare array of strings, an envelope ({"words": [...]}) or objects with a
// word field.
func WhiteList(v any) []string {
	if m, ok := asRaw(v); ok {
		if inner, ok := pickValue(m, "words", "white_list", "whitelist", "data", "items"); ok {
			return WhiteList(inner)
		}
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		default:
			if obj, ok := asRaw(t); ok {
				if w := pickString(obj, "word", "Word", "value", "text"); w != "" {
					out = append(out, w)
				}
			}
		}
	}
	return out
}

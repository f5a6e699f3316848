// Package projection derives the visible device subset and aggregate
// counts from the device snapshot, the alert state and user filters.
package projection

import (
	"fmt"
	"strings"

	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/pkg/models"
)

// StatusFilter selects devices by derived status or alert activity.
type StatusFilter string

const (
	StatusAll          StatusFilter = "all"
	StatusActive       StatusFilter = "active"
	StatusInactive     StatusFilter = "inactive"
	StatusUnauthorized StatusFilter = "unauthorized"
	StatusAlerting     StatusFilter = "alerting"
)

// ParseStatus validates a status filter. Empty input means StatusAll.
func ParseStatus(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return StatusAll, nil
	case StatusAll, StatusActive, StatusInactive, StatusUnauthorized, StatusAlerting:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

// Filter controls which devices are visible.
type Filter struct {
	Status     StatusFilter // Derived status, or alerting for unread alerts.
	Search     string       // Case-insensitive match on hostname, MAC or any IP.
	Group      string       // Only members of this group.
	OnlyUnread bool         // Only devices with unread alerts.
}

// CredentialLookup reports the credential linked to a device.
type CredentialLookup func(models.DeviceRecord) (models.CredentialRecord, bool)

// DeviceView is one visible device with its alert annotations.
type DeviceView struct {
	Device        models.DeviceRecord `json:"device"`
	Key           string              `json:"key"`
	Unread        int                 `json:"unread"`
	AlertCount    int                 `json:"alert_count"`
	HasCredential bool                `json:"has_credential"`
}

// Counts aggregates the collection. Visible counts the filtered subset;
// every other field counts the unfiltered collection.
type Counts struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Inactive     int `json:"inactive"`
	Unauthorized int `json:"unauthorized"`
	Alerting     int `json:"alerting"`
	Visible      int `json:"visible"`
	UnreadTotal  int `json:"unread_total"`
}

// View is the projection result.
type View struct {
	Devices []DeviceView `json:"devices"`
	Counts  Counts       `json:"counts"`
}

// Project applies f to devices in store order. groups is consulted only
// when f.Group is set; an unknown group yields no visible devices.
func Project(devices []models.DeviceRecord, state correlator.State, creds CredentialLookup, groups []models.GroupWithMembers, f Filter) View {
	members, groupFound := groupMembers(groups, f.Group)
	search := strings.ToLower(strings.TrimSpace(f.Search))

	view := View{Devices: make([]DeviceView, 0, len(devices))}
	view.Counts.UnreadTotal = state.UnreadTotal()

	for _, d := range devices {
		key := identity.DeviceKey(d)
		unread := 0
		alerts := 0
		if key != "" {
			unread = state.Unread[key]
			alerts = len(state.PerDevice[key])
		}

		view.Counts.Total++
		switch d.Status {
		case models.DeviceStatusActive:
			view.Counts.Active++
		case models.DeviceStatusInactive:
			view.Counts.Inactive++
		case models.DeviceStatusUnauthorized:
			view.Counts.Unauthorized++
		}
		if unread > 0 {
			view.Counts.Alerting++
		}

		if !matchStatus(f.Status, d.Status, unread) {
			continue
		}
		if f.OnlyUnread && unread == 0 {
			continue
		}
		if f.Group != "" {
			if !groupFound {
				continue
			}
			if _, ok := members[identity.NormalizeMAC(d.MAC)]; !ok || identity.IsSentinelMAC(d.MAC) {
				continue
			}
		}
		if search != "" && !matchSearch(d, search) {
			continue
		}

		hasCred := false
		if creds != nil {
			_, hasCred = creds(d)
		}
		view.Devices = append(view.Devices, DeviceView{
			Device:        d,
			Key:           key,
			Unread:        unread,
			AlertCount:    alerts,
			HasCredential: hasCred,
		})
	}
	view.Counts.Visible = len(view.Devices)
	return view
}

func matchStatus(f StatusFilter, s models.DeviceStatus, unread int) bool {
	switch f {
	case "", StatusAll:
		return true
	case StatusAlerting:
		return unread > 0
	default:
		return string(f) == string(s)
	}
}

func matchSearch(d models.DeviceRecord, q string) bool {
	if strings.Contains(strings.ToLower(d.Hostname), q) {
		return true
	}
	if !identity.IsSentinelMAC(d.MAC) {
		if strings.Contains(strings.ToLower(d.MAC), q) {
			return true
		}
		if nq, ok := macFragment(q); ok && strings.Contains(identity.NormalizeMAC(d.MAC), nq) {
			return true
		}
	}
	for _, ip := range identity.DeviceIPs(d) {
		if strings.Contains(ip, q) {
			return true
		}
	}
	return false
}

// macFragment normalizes q when it reads as part of a MAC address: hex
// digits and separators only, at least two octets long.
func macFragment(q string) (string, bool) {
	for i := 0; i < len(q); i++ {
		c := q[i]
		hex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !hex && c != ':' && c != '-' && c != '.' {
			return "", false
		}
	}
	n := identity.NormalizeMAC(q)
	return n, len(n) >= 4
}

func groupMembers(groups []models.GroupWithMembers, name string) (map[string]struct{}, bool) {
	if name == "" {
		return nil, false
	}
	for _, g := range groups {
		if !strings.EqualFold(g.Group, name) {
			continue
		}
		set := make(map[string]struct{}, len(g.DeviceMACs))
		for _, mac := range g.DeviceMACs {
			set[identity.NormalizeMAC(mac)] = struct{}{}
		}
		return set, true
	}
	return nil, false
}

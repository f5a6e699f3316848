package normalize

import (
	"strings"

	"github.com/HerbHall/netdash/pkg/models"
)

// DeriveStatus computes a device's status from its interfaces. Vendor
// status text is not standardized, so matching is deliberately loose:
//
//  1. any status containing "unauth" or "not authorized" -> unauthorized
//  2. any status equal to "up/up", or containing "up" without "down" or
//     "shut" -> active
//  3. otherwise inactive
func DeriveStatus(interfaces []models.InterfaceRecord) models.DeviceStatus {
	for _, iface := range interfaces {
		s := strings.ToLower(iface.Status)
		if strings.Contains(s, "unauth") || strings.Contains(s, "not authorized") {
			return models.DeviceStatusUnauthorized
		}
	}
	for _, iface := range interfaces {
		if isUp(strings.ToLower(strings.TrimSpace(iface.Status))) {
			return models.DeviceStatusActive
		}
	}
	return models.DeviceStatusInactive
}

func isUp(s string) bool {
	if s == "up/up" {
		return true
	}
	return strings.Contains(s, "up") && !strings.Contains(s, "down") && !strings.Contains(s, "shut")
}

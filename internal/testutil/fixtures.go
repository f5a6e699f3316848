package testutil

import (
	"strings"

	"github.com/HerbHall/netdash/pkg/models"
)

// NewDevice returns a DeviceRecord with sensible defaults, suitable for
// test fixtures. Options run in order, so later ones win.
func NewDevice(opts ...func(*models.DeviceRecord)) models.DeviceRecord {
	d := models.DeviceRecord{
		MAC:           "00:11:22:33:44:55",
		Hostname:      "test-device",
		Interfaces:    []models.InterfaceRecord{},
		Neighbors:     []models.NeighborRecord{},
		LastUpdatedAt: "2025-01-01T00:00:00Z",
		PrimaryIP:     "192.168.1.100",
		Status:        models.DeviceStatusActive,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithHostname sets the device hostname.
func WithHostname(name string) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.Hostname = name }
}

// WithIP sets the device's primary IP.
func WithIP(ip string) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.PrimaryIP = ip }
}

// WithMAC sets the device's MAC address.
func WithMAC(mac string) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.MAC = mac }
}

// WithStatus sets the device status.
func WithStatus(s models.DeviceStatus) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.Status = s }
}

// WithLastUpdated sets the display timestamp.
func WithLastUpdated(ts string) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.LastUpdatedAt = ts }
}

// WithInterfaces replaces the interface list. The primary IP follows the
// first interface carrying an address, mask stripped.
func WithInterfaces(ifaces ...models.InterfaceRecord) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) {
		d.Interfaces = ifaces
		for _, iface := range ifaces {
			ip, _, _ := strings.Cut(iface.IPAddress, "/")
			if ip != "" && ip != models.UnassignedIP {
				d.PrimaryIP = ip
				return
			}
		}
	}
}

// WithNeighbors replaces the neighbor list.
func WithNeighbors(n ...models.NeighborRecord) func(*models.DeviceRecord) {
	return func(d *models.DeviceRecord) { d.Neighbors = n }
}

// Interface builds an InterfaceRecord without telemetry.
func Interface(name, ip, status string) models.InterfaceRecord {
	return models.InterfaceRecord{Name: name, IPAddress: ip, Status: status}
}

// NewCredential returns a CredentialRecord for ip with test secrets.
func NewCredential(ip string) models.CredentialRecord {
	return models.CredentialRecord{
		DeviceType:   "cisco_ios",
		Username:     "admin",
		Password:     "test-password",
		Secret:       "test-secret",
		SNMPPassword: "test-community",
		IP:           ip,
	}
}

// Float returns a pointer to f for optional telemetry fields.
func Float(f float64) *float64 {
	return &f
}

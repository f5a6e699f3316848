// Package models defines the canonical device, credential, group and alert
// shapes shared by every netdash package. Values are produced by the
// normalizer and treated as immutable once constructed.
package models

// DeviceStatus is the categorical health of a device derived from its interfaces.
type DeviceStatus string

const (
	DeviceStatusActive       DeviceStatus = "active"
	DeviceStatusInactive     DeviceStatus = "inactive"
	DeviceStatusUnauthorized DeviceStatus = "unauthorized"
)

// Placeholder values substituted for missing backend fields.
const (
	UnassignedIP     = "unassigned"
	UnknownStatus    = "Unknown"
	MACNotFound      = "Not found"
	UnknownHostname  = "Unknown device"
	UnknownInterface = "Unknown interface"
	NeverUpdated     = "Never"
)

// InterfaceRecord describes one interface of a polled device. Optional
// telemetry fields are nil when the backend did not report a usable value,
// which is distinct from a reported zero.
type InterfaceRecord struct {
	Name        string `json:"name"`
	IPAddress   string `json:"ip_address"`
	Status      string `json:"status"`
	Protocol    string `json:"protocol,omitempty"`
	Description string `json:"description,omitempty"`
	MACAddress  string `json:"mac_address,omitempty"`

	CapacityMbps *float64 `json:"capacity_mbps,omitempty"`
	LoadInPct    *float64 `json:"load_in_pct,omitempty"`
	LoadOutPct   *float64 `json:"load_out_pct,omitempty"`
	RateInMbps   *float64 `json:"rate_in_mbps,omitempty"`
	RateOutMbps  *float64 `json:"rate_out_mbps,omitempty"`
	RateInKbps   *float64 `json:"rate_in_kbps,omitempty"`
	RateOutKbps  *float64 `json:"rate_out_kbps,omitempty"`
	ErrorsIn     *float64 `json:"errors_in,omitempty"`
	ErrorsOut    *float64 `json:"errors_out,omitempty"`
	MTU          *float64 `json:"mtu,omitempty"`
}

// NeighborRecord is a CDP/LLDP adjacency reported by a device.
type NeighborRecord struct {
	DeviceID       string `json:"device_id"`
	LocalInterface string `json:"local_interface"`
	PortID         string `json:"port_id,omitempty"`
	Platform       string `json:"platform,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
}

// DeviceRecord is the canonical representation of one router or switch.
// A record is replaced wholesale when newer data arrives; it is never
// patched field by field.
type DeviceRecord struct {
	MAC           string            `json:"mac"`
	Hostname      string            `json:"hostname"`
	Interfaces    []InterfaceRecord `json:"interfaces"`
	Neighbors     []NeighborRecord  `json:"neighbors"`
	LastUpdatedAt string            `json:"last_updated_at"`
	RawDate       string            `json:"raw_date,omitempty"`
	PrimaryIP     string            `json:"primary_ip,omitempty"`
	Status        DeviceStatus      `json:"status"`
	Model         string            `json:"model,omitempty"`
	Vendor        string            `json:"vendor,omitempty"`
	Serial        string            `json:"serial,omitempty"`
	Uptime        string            `json:"uptime,omitempty"`
}

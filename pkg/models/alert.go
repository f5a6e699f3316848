package models

// AlertItem is one white-list alert received from the push stream.
// DeviceKey is empty when the alert could not be attributed to a device.
type AlertItem struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	ReceivedAt   string `json:"received_at"`
	ReceivedAtMs int64  `json:"received_at_ms"`
	DeviceMAC    string `json:"device_mac,omitempty"`
	DeviceIP     string `json:"device_ip,omitempty"`
	DeviceKey    string `json:"device_key,omitempty"`
}

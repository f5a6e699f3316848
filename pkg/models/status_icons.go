package models

// StatusIcon maps a DeviceStatus to its icon identifier.
// Identifiers use Lucide icon names (https://lucide.dev) for
// compatibility with the dashboard front end.
var StatusIcon = map[DeviceStatus]string{
	DeviceStatusActive:       "circle-check",
	DeviceStatusInactive:     "circle-x",
	DeviceStatusUnauthorized: "shield-alert",
}

// Icon returns the icon identifier for a DeviceStatus.
// Returns "help-circle" for unrecognised statuses.
func (s DeviceStatus) Icon() string {
	if icon, ok := StatusIcon[s]; ok {
		return icon
	}
	return "help-circle"
}

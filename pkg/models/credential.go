package models

// CredentialRecord holds connection details for one device. It is linked to
// a DeviceRecord only through normalized IP equality.
type CredentialRecord struct {
	DeviceType   string `json:"device_type"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Secret       string `json:"secret,omitempty"`
	SNMPPassword string `json:"snmp_password,omitempty"`
	IP           string `json:"ip"`
}

// Redacted returns a copy with every secret value masked, suitable for API output.
func (c CredentialRecord) Redacted() CredentialRecord {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Password = mask(c.Password)
	c.Secret = mask(c.Secret)
	c.SNMPPassword = mask(c.SNMPPassword)
	return c
}

// GroupWithMembers is a named device group. DeviceMACs holds normalized,
// de-duplicated MAC keys.
type GroupWithMembers struct {
	Group      string   `json:"group"`
	DeviceMACs []string `json:"device_macs"`
}

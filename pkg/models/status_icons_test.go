package models

import "testing"

func TestStatusIconCoverage(t *testing.T) {
	known := []DeviceStatus{
		DeviceStatusActive, DeviceStatusInactive, DeviceStatusUnauthorized,
	}
	for _, s := range known {
		if icon := s.Icon(); icon == "" || icon == "help-circle" {
			t.Errorf("DeviceStatus %q icon = %q, want a dedicated icon", s, icon)
		}
	}
}

func TestStatusIconUnknownFallback(t *testing.T) {
	got := DeviceStatus("nonexistent").Icon()
	want := "help-circle"
	if got != want {
		t.Errorf("unknown status icon = %q, want %q", got, want)
	}
}

func TestCredentialRedacted(t *testing.T) {
	c := CredentialRecord{Username: "admin", Password: "pw", Secret: "", SNMPPassword: "public", IP: "10.0.0.1"}
	r := c.Redacted()
	if r.Password != "********" {
		t.Errorf("Password = %q, want masked", r.Password)
	}
	if r.Secret != "" {
		t.Errorf("Secret = %q, want empty (was empty)", r.Secret)
	}
	if r.SNMPPassword != "********" {
		t.Errorf("SNMPPassword = %q, want masked", r.SNMPPassword)
	}
	if c.Password != "pw" {
		t.Error("Redacted mutated the original record")
	}
	if r.Username != "admin" || r.IP != "10.0.0.1" {
		t.Errorf("Redacted changed non-secret fields: %+v", r)
	}
}

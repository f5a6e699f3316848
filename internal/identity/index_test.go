package identity

import (
	"testing"

	"github.com/HerbHall/netdash/pkg/models"
)

func testDevices() []models.DeviceRecord {
	return []models.DeviceRecord{
		{
			MAC:       "AA-BB-CC-DD-EE-FF",
			PrimaryIP: "10.1.1.1",
			Interfaces: []models.InterfaceRecord{
				{Name: "Gi0/0", IPAddress: "10.1.1.1/24"},
				{Name: "Gi0/1", IPAddress: "172.16.0.1"},
				{Name: "Gi0/2", IPAddress: "unassigned"},
			},
		},
		{
			MAC:       models.MACNotFound,
			PrimaryIP: "10.2.2.2",
			Interfaces: []models.InterfaceRecord{
				{Name: "Vlan1", IPAddress: "10.2.2.2"},
			},
		},
	}
}

func TestIndexLookupByMAC(t *testing.T) {
	idx := BuildIndex(testDevices())
	key, ok := idx.Lookup("aa:bb:cc:dd:ee:ff", "")
	if !ok || key != "aabbccddeeff" {
		t.Errorf("Lookup(mac) = %q, %v; want aabbccddeeff, true", key, ok)
	}
}

func TestIndexLookupByIPWithMask(t *testing.T) {
	idx := BuildIndex(testDevices())
	key, ok := idx.Lookup("", "10.1.1.1/24")
	if !ok || key != "aabbccddeeff" {
		t.Errorf("Lookup(primary ip) = %q, %v", key, ok)
	}
	key, ok = idx.Lookup("", "172.16.0.1")
	if !ok || key != "aabbccddeeff" {
		t.Errorf("Lookup(interface ip) = %q, %v", key, ok)
	}
	key, ok = idx.Lookup("", "10.2.2.2")
	if !ok || key != "ip:10.2.2.2" {
		t.Errorf("Lookup(mac-less device) = %q, %v", key, ok)
	}
}

func TestIndexLookupMisses(t *testing.T) {
	idx := BuildIndex(testDevices())
	if _, ok := idx.Lookup("", "unassigned"); ok {
		t.Error("Lookup(sentinel ip) resolved")
	}
	if _, ok := idx.Lookup("", "192.0.2.1"); ok {
		t.Error("Lookup(unknown ip) resolved")
	}
	if _, ok := idx.Lookup("Not found", ""); ok {
		t.Error("Lookup(sentinel mac) resolved")
	}
}

func TestIndexMACPreferredOverIP(t *testing.T) {
	idx := BuildIndex(testDevices())
	key, ok := idx.Lookup("11:22:33:44:55:66", "10.1.1.1")
	if !ok || key != "112233445566" {
		t.Errorf("Lookup(mac+ip) = %q, %v; carried MAC should win", key, ok)
	}
}

func TestIndexNil(t *testing.T) {
	var idx *Index
	if _, ok := idx.Lookup("", "10.1.1.1"); ok {
		t.Error("nil index resolved an IP")
	}
	if idx.Len() != 0 {
		t.Error("nil index Len != 0")
	}
	if _, ok := idx.KeyForMAC("aa"); ok {
		t.Error("nil index KeyForMAC resolved")
	}
}

func TestIndexFirstClaimWins(t *testing.T) {
	devices := []models.DeviceRecord{
		{MAC: "aa:aa:aa:aa:aa:aa", PrimaryIP: "10.0.0.1"},
		{MAC: "bb:bb:bb:bb:bb:bb", PrimaryIP: "10.0.0.1"},
	}
	key, _ := BuildIndex(devices).Lookup("", "10.0.0.1")
	if key != "aaaaaaaaaaaa" {
		t.Errorf("duplicate IP resolved to %q, want first device", key)
	}
}

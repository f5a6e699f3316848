package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/pkg/models"
)

// Key spellings observed across backend versions.
var (
	hostnameKeys  = []string{"hostname", "Hostname", "host_name", "hostName", "name", "sysName", "device.hostname", "device.name"}
	deviceMACKeys = []string{"mac", "MAC", "mac_address", "macAddress", "device_mac", "deviceMac", "device.mac"}
	deviceIPKeys  = []string{"ip", "IP", "ip_address", "ipAddress", "management_ip", "mgmt_ip", "device_ip", "device.ip"}
	interfaceKeys = []string{"interfaces", "Interfaces", "interface_list", "ports", "device.interfaces"}
	neighborKeys  = []string{"neighbors", "Neighbors", "cdp_neighbors", "lldp_neighbors", "device.neighbors"}
	updatedKeys   = []string{"lastUpdatedAt", "last_updated_at", "last_updated", "lastUpdated", "updated_at"}
	rawDateKeys   = []string{"rawDate", "raw_date", "date", "Date", "timestamp"}

	ifNameKeys   = []string{"name", "Name", "interface", "Interface", "interface_name", "ifName", "port"}
	ifIPKeys     = []string{"ip_address", "ipAddress", "IP-Address", "IP_Address", "ip", "IP", "address"}
	ifStatusKeys = []string{"status", "Status", "state", "State"}
	ifProtoKeys  = []string{"protocol", "Protocol", "line_protocol"}
)

// Device converts one raw backend device object into a DeviceRecord.
// Primary IP and status are derived from the normalized interfaces.
func Device(raw Raw) models.DeviceRecord {
	if raw == nil {
		raw = Raw{}
	}

	interfaces := Interfaces(pickAny(raw, interfaceKeys...))
	neighbors := Neighbors(pickAny(raw, neighborKeys...))

	mac := pickString(raw, deviceMACKeys...)
	if identity.IsSentinelMAC(mac) {
		mac = models.MACNotFound
	}
	hostname := pickString(raw, hostnameKeys...)
	if hostname == "" {
		hostname = models.UnknownHostname
	}

	rawDate := DisplayDate(pickAny(raw, rawDateKeys...))
	updated := DisplayDate(pickAny(raw, updatedKeys...))
	if updated == "" {
		updated = rawDate
	}
	if updated == "" {
		updated = models.NeverUpdated
	}

	return models.DeviceRecord{
		MAC:           mac,
		Hostname:      hostname,
		Interfaces:    interfaces,
		Neighbors:     neighbors,
		LastUpdatedAt: updated,
		RawDate:       rawDate,
		PrimaryIP:     identity.ResolveDeviceIP(interfaces, pickString(raw, deviceIPKeys...)),
		Status:        DeriveStatus(interfaces),
		Model:         pickString(raw, "model", "Model", "platform", "device.model"),
		Vendor:        pickString(raw, "vendor", "Vendor", "manufacturer", "device.vendor"),
		Serial:        pickString(raw, "serial", "serial_number", "serialNumber", "SerialNumber"),
		Uptime:        pickString(raw, "uptime", "Uptime", "sysUpTime"),
	}
}

// Devices normalizes every object of a list payload. Entries that are not
// objects are skipped; a malformed object still yields a record.
func Devices(v any) []models.DeviceRecord {
	items := Records(v)
	out := make([]models.DeviceRecord, 0, len(items))
	for _, item := range items {
		out = append(out, Device(item))
	}
	return out
}

// Interfaces normalizes an interface list or a name-keyed interface map.
func Interfaces(v any) []models.InterfaceRecord {
	items := objects(v, "name")
	out := make([]models.InterfaceRecord, 0, len(items))
	for i, item := range items {
		out = append(out, Interface(item, i))
	}
	return out
}

// Interface normalizes one interface object found at position index.
func Interface(raw Raw, index int) models.InterfaceRecord {
	name := pickString(raw, ifNameKeys...)
	if name == "" {
		name = fmt.Sprintf("Interface %d", index+1)
	}
	ip := pickString(raw, ifIPKeys...)
	if ip == "" {
		ip = models.UnassignedIP
	}

	rec := models.InterfaceRecord{
		Name:        name,
		IPAddress:   ip,
		Status:      interfaceStatus(raw),
		Protocol:    pickString(raw, ifProtoKeys...),
		Description: pickString(raw, "description", "Description", "desc"),
		MACAddress:  pickString(raw, "mac", "mac_address", "macAddress", "MAC"),

		CapacityMbps: pickNumber(raw, "capacity_mbps", "capacity", "Capacity", "bandwidth", "speed_mbps", "speed"),
		LoadInPct:    pickNumber(raw, "load_in_pct", "load_in", "in_load", "input_load", "rxload"),
		LoadOutPct:   pickNumber(raw, "load_out_pct", "load_out", "out_load", "output_load", "txload"),
		RateInMbps:   pickNumber(raw, "rate_in_mbps", "in_rate_mbps", "mbps_in", "input_rate_mbps", "in_mbps"),
		RateOutMbps:  pickNumber(raw, "rate_out_mbps", "out_rate_mbps", "mbps_out", "output_rate_mbps", "out_mbps"),
		RateInKbps:   pickNumber(raw, "rate_in_kbps", "in_rate_kbps", "kbps_in", "input_rate_kbps", "in_kbps"),
		RateOutKbps:  pickNumber(raw, "rate_out_kbps", "out_rate_kbps", "kbps_out", "output_rate_kbps", "out_kbps"),
		ErrorsIn:     pickNumber(raw, "errors_in", "in_errors", "input_errors", "InErrors"),
		ErrorsOut:    pickNumber(raw, "errors_out", "out_errors", "output_errors", "OutErrors"),
		MTU:          pickNumber(raw, "mtu", "MTU", "mtu_bytes"),
	}
	rec.RateInMbps, rec.RateInKbps = reconcileRate(rec.RateInMbps, rec.RateInKbps)
	rec.RateOutMbps, rec.RateOutKbps = reconcileRate(rec.RateOutMbps, rec.RateOutKbps)
	return rec
}

// reconcileRate keeps Mbps as the preferred unit. The secondary unit is
// derived only when the backend did not report it.
func reconcileRate(mbps, kbps *float64) (*float64, *float64) {
	switch {
	case mbps != nil && kbps == nil:
		k := *mbps * 1000
		return mbps, &k
	case mbps == nil && kbps != nil:
		m := *kbps / 1000
		return &m, kbps
	}
	return mbps, kbps
}

// interfaceStatus passes the vendor text through unchanged.
func interfaceStatus(raw Raw) string {
	status := pickString(raw, ifStatusKeys...)
	if status == "" {
		return models.UnknownStatus
	}
	return status
}

// Neighbors normalizes a neighbor list. Missing fields become placeholders
// so one malformed entry never empties the whole list.
func Neighbors(v any) []models.NeighborRecord {
	items := objects(v, "")
	out := make([]models.NeighborRecord, 0, len(items))
	for i, item := range items {
		id := pickString(item, "device_id", "deviceId", "DeviceId", "neighbor", "neighbor_id", "hostname", "system_name")
		if id == "" {
			id = fmt.Sprintf("neighbor-%d", i+1)
		}
		local := pickString(item, "local_interface", "localInterface", "LocalInterface", "local_port", "interface")
		if local == "" {
			local = models.UnknownInterface
		}
		out = append(out, models.NeighborRecord{
			DeviceID:       id,
			LocalInterface: local,
			PortID:         pickString(item, "port_id", "portId", "PortId", "remote_port", "port"),
			Platform:       pickString(item, "platform", "Platform"),
			IPAddress:      pickString(item, "ip_address", "ipAddress", "ip", "management_ip"),
		})
	}
	return out
}

// DisplayDate renders a backend timestamp as a display string. Plain
// strings pass through, numbers are read as Unix seconds or milliseconds,
// and wrapped objects such as {"$date": ...} are unwrapped. An absent or
// unusable value returns "".
func DisplayDate(v any) string {
	return displayDate(v, 0)
}

func displayDate(v any, depth int) string {
	if depth > 2 {
		return ""
	}
	switch t := v.(type) {
	case nil, bool:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case string:
		s := strings.TrimSpace(t)
		// Wrapped values such as {"$numberLong": "1700000000000"} carry
		// epoch numbers as strings.
		if depth > 0 {
			if f, ok := toNumber(s); ok {
				return epochDate(f)
			}
		}
		return s
	}
	if f, ok := toNumber(v); ok {
		return epochDate(f)
	}
	if m, ok := asRaw(v); ok {
		if inner, ok := pickValue(m, "$date", "date", "value", "iso", "$numberLong"); ok {
			return displayDate(inner, depth+1)
		}
	}
	return ""
}

func epochDate(f float64) string {
	if f <= 0 {
		return ""
	}
	var ts time.Time
	if f > 1e12 {
		ts = time.UnixMilli(int64(f))
	} else {
		ts = time.Unix(int64(f), 0)
	}
	return ts.UTC().Format(time.RFC3339)
}

func pickAny(m Raw, paths ...string) any {
	v, _ := pickValue(m, paths...)
	return v
}

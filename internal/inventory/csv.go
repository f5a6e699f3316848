package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/internal/projection"
)

// csvHeaders returns the CSV column headers.
func csvHeaders() []string {
	return []string{
		"key", "hostname", "mac", "primary_ip", "ip_addresses", "status",
		"vendor", "model", "serial", "uptime", "last_updated_at",
		"unread", "alerts", "has_credential",
	}
}

// deviceToCSVRow converts a device view to a CSV row (matching csvHeaders order).
func deviceToCSVRow(v projection.DeviceView) []string {
	d := v.Device
	return []string{
		v.Key,
		d.Hostname,
		d.MAC,
		d.PrimaryIP,
		strings.Join(identity.DeviceIPs(d), ";"),
		string(d.Status),
		d.Vendor,
		d.Model,
		d.Serial,
		d.Uptime,
		d.LastUpdatedAt,
		strconv.Itoa(v.Unread),
		strconv.Itoa(v.AlertCount),
		strconv.FormatBool(v.HasCredential),
	}
}

func writeCSV(w io.Writer, devices []projection.DeviceView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders()); err != nil {
		return err
	}
	for _, v := range devices {
		if err := cw.Write(deviceToCSVRow(v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

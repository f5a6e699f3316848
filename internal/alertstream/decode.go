package alertstream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/HerbHall/netdash/internal/normalize"
)

// Alert is one decoded frame from the white-list alert stream.
type Alert struct {
	Message string `json:"message"`
	MAC     string `json:"mac,omitempty"`
	IP      string `json:"ip,omitempty"`
}

var (
	messageKeys = []string{"message", "Message", "msg", "text", "alert", "detail", "description"}
	macKeys     = []string{"device_mac", "deviceMac", "DeviceMac", "mac", "MAC", "mac_address", "macAddress"}
	ipKeys      = []string{"device_ip", "deviceIp", "DeviceIp", "ip", "IP", "ip_address", "ipAddress"}

	// Wrappers searched one level deep after the top-level keys.
	nestingKeys = []string{"device", "data", "payload"}
)

// withNesting returns keys followed by every wrapper-prefixed variant.
func withNesting(keys []string) []string {
	out := make([]string, 0, len(keys)*(len(nestingKeys)+1))
	out = append(out, keys...)
	for _, wrapper := range nestingKeys {
		for _, k := range keys {
			out = append(out, wrapper+"."+k)
		}
	}
	return out
}

var (
	messagePaths = withNesting(messageKeys)
	macPaths     = withNesting(macKeys)
	ipPaths      = withNesting(ipKeys)
)

// Decode turns one frame into an Alert. Frames may be plain text, a JSON
// string or a JSON object. Text that is not JSON becomes the message
// verbatim; an object without a message field is rendered as compact
// JSON. Empty frames report false.
func Decode(frame []byte) (Alert, bool) {
	text := strings.TrimSpace(string(frame))
	if text == "" {
		return Alert{}, false
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Alert{Message: text}, true
	}

	switch t := v.(type) {
	case nil:
		return Alert{}, false
	case string:
		msg := strings.TrimSpace(t)
		if msg == "" {
			return Alert{}, false
		}
		return Alert{Message: msg}, true
	case map[string]any:
		a := Alert{
			Message: normalize.String(t, messagePaths...),
			MAC:     normalize.String(t, macPaths...),
			IP:      normalize.String(t, ipPaths...),
		}
		if a.Message == "" {
			a.Message = compact(text)
		}
		return a, true
	}
	return Alert{Message: compact(text)}, true
}

func compact(text string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return text
	}
	return buf.String()
}

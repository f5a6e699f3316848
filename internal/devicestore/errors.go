package devicestore

import "errors"

// User-action errors. Handlers match them with errors.Is.
var (
	ErrFallbackMode    = errors.New("live backend actions are unavailable while fallback data is shown; reload to retry the backend")
	ErrInvalidMethod   = errors.New("polling method must be snmp or cli")
	ErrInvalidInterval = errors.New("polling intervals must be positive")
	ErrInvalidIP       = errors.New("a device IP address is required")
	ErrClosed          = errors.New("device store is closed")
)

var (
	errNoDevices     = errors.New("backend returned no devices")
	errNoCredentials = errors.New("backend returned no credentials")
)

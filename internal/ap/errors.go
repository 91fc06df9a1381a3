package ap

import "errors"

var (
	ErrNoWiFiDevice        = errors.New("no wifi device found")
	ErrInvalidSSID         = errors.New("ssid must be 1 to 32 bytes")
	ErrAddressStreamClosed = errors.New("address stream ended without an address")
	ErrAddressTimeout      = errors.New("timed out waiting for an address")
)

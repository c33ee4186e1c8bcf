// Package radio drives the host Wi-Fi radio: the single network interface
// that is either joined to the home network or to a device access point.
package radio

import (
	"context"
	"errors"
)

var ErrNoWifiDevice = errors.New("no wifi device")

// Network is one access point seen by a scan. Signal is a strength in
// percent, higher is stronger.
type Network struct {
	SSID   string `json:"ssid" yaml:"ssid"`
	BSSID  string `json:"bssid" yaml:"bssid"`
	Signal int    `json:"signal" yaml:"signal"`
}

type Radio interface {
	// CurrentSSID returns the SSID the radio is joined to, "" when none.
	CurrentSSID(ctx context.Context) (string, error)
	// Scan returns the access points currently visible.
	Scan(ctx context.Context) ([]Network, error)
	// Join requests the radio to join ssid. It returns once the request is
	// accepted, not once the radio is associated. A profile saved for ssid
	// takes precedence over password; an empty password joins an open
	// network.
	Join(ctx context.Context, ssid, password string) error
}

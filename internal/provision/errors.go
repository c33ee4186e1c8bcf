package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecowatt/shelly-onboard/internal/backend"
	"github.com/ecowatt/shelly-onboard/internal/configurator"
	"github.com/ecowatt/shelly-onboard/internal/connect"
	"github.com/ecowatt/shelly-onboard/internal/scan"
	"github.com/ecowatt/shelly-onboard/internal/session"
)

var (
	ErrMissingToken      = errors.New("missing backend token")
	ErrPermissionDenied  = errors.New("wifi permissions denied")
	ErrNoDevicesFound    = errors.New("no Shelly device found")
	ErrAlreadyRegistered = errors.New("device already registered")
	ErrHomeReconnect     = errors.New("unable to reconnect to the home network")
	ErrNotReady          = errors.New("no device selection in progress")
	ErrUnknownNetwork    = errors.New("network not in the scan results")
)

// AlreadyRegisteredError is returned when the selected access point belongs
// to a device of the user's account.
type AlreadyRegisteredError struct {
	Mac string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("device %s is already registered", e.Mac)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

// HomeReconnectError leaves the radio off the home network: the user must
// reconnect by hand.
type HomeReconnectError struct {
	SSID string
	Err  error
}

func (e *HomeReconnectError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrHomeReconnect, e.SSID, e.Err)
}

func (e *HomeReconnectError) Is(target error) bool {
	return target == ErrHomeReconnect
}

type kind struct {
	err     error
	name    string
	message string
}

// Most specific first.
var kinds = []kind{
	{ErrMissingToken, "MissingToken", "Missing token. Sign in again."},
	{session.ErrMissingCredentials, "MissingCredentials", "Set your home Wi-Fi network and password first."},
	{ErrPermissionDenied, "PermissionDenied", "Location and Wi-Fi permissions are required to scan for devices."},
	{scan.ErrScan, "ScanFailure", "Unable to scan Wi-Fi networks."},
	{ErrNoDevicesFound, "NoDevicesFound", "No Shelly device found.\nMake sure you are nearby and that its LED is blinking."},
	{ErrAlreadyRegistered, "AlreadyRegistered", "This device is already in your account."},
	{connect.ErrConnection, "ConnectionFailure", "Unable to connect to the device."},
	{configurator.ErrIdentification, "IdentificationError", "Unable to identify the device."},
	{configurator.ErrConfiguration, "ConfigurationError", "Error while configuring the device."},
	{backend.ErrConflict, "RegistrationConflict", "This device is already registered to your account."},
	{backend.ErrValidation, "RegistrationValidationError", "Invalid MAC address or device data."},
	{backend.ErrUnauthorized, "Unauthorized", "Your session expired. Sign in again."},
	{backend.ErrRegistration, "RegistrationError", "Error while registering the device."},
	{ErrHomeReconnect, "HomeReconnect", ""},
	{context.Canceled, "Canceled", "Setup canceled."},
}

func classify(err error) *kind {
	for i := range kinds {
		if errors.Is(err, kinds[i].err) {
			return &kinds[i]
		}
	}
	return nil
}

// Kind names the class of err, "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if k := classify(err); k != nil {
		return k.name
	}
	return "Unexpected"
}

// Message is the text shown to the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	k := classify(err)
	manual := ""
	var hr *HomeReconnectError
	if errors.As(err, &hr) {
		manual = fmt.Sprintf("Please reconnect manually to your Wi-Fi: %s", hr.SSID)
		if k != nil && k.err == ErrHomeReconnect {
			return manual
		}
	}

	msg := ""
	if k != nil {
		msg = k.message
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" && !errors.Is(err, backend.ErrConflict) {
		msg = apiErr.Detail
	}
	if msg == "" {
		msg = "Unexpected error: " + err.Error()
	}
	if manual != "" {
		msg += "\n" + manual
	}
	return msg
}

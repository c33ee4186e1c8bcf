package radio

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	nmBus          = "org.freedesktop.NetworkManager"
	nmPath         = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface        = "org.freedesktop.NetworkManager"
	nmDevice       = "org.freedesktop.NetworkManager.Device"
	nmWireless     = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAccessPoint  = "org.freedesktop.NetworkManager.AccessPoint"
	nmSettingsPath = dbus.ObjectPath("/org/freedesktop/NetworkManager/Settings")
	nmSettings     = "org.freedesktop.NetworkManager.Settings"
	nmConnection   = "org.freedesktop.NetworkManager.Settings.Connection"

	nmDeviceTypeWifi uint32 = 2
)

// objects resolves a NetworkManager object path on the bus.
type objects func(path dbus.ObjectPath) dbus.BusObject

// getDBusProperty reads a property from a NetworkManager DBus object.
func getDBusProperty[T any](object objects, path dbus.ObjectPath, iface, property string) (T, error) {
	var zero T
	obj := object(path)

	variant, err := obj.GetProperty(iface + "." + property)
	if err != nil {
		return zero, err
	}

	val, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, property, variant.Value())
	}
	return val, nil
}

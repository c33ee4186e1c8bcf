package radio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/godbus/dbus/v5"
)

// NetworkManager is the Radio backed by the NetworkManager system service.
type NetworkManager struct {
	log       logr.Logger
	iface     string
	scanDelay time.Duration

	mu     sync.Mutex
	object objects // nil until connected
	device dbus.ObjectPath
}

// NewNetworkManager drives the wifi device named iface, or the first wifi
// device when iface is empty.
func NewNetworkManager(log logr.Logger, iface string) *NetworkManager {
	return &NetworkManager{
		log:       log.WithName("radio"),
		iface:     iface,
		scanDelay: 3 * time.Second,
	}
}

func (nm *NetworkManager) connect() (objects, dbus.ObjectPath, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.object != nil {
		return nm.object, nm.device, nil
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to system DBus: %w", err)
	}
	// cached connection from dbus.SystemBus(): never closed
	object := func(path dbus.ObjectPath) dbus.BusObject {
		return conn.Object(nmBus, path)
	}

	var devices []dbus.ObjectPath
	if err := object(nmPath).Call(nmIface+".GetDevices", 0).Store(&devices); err != nil {
		return nil, "", fmt.Errorf("listing NetworkManager devices: %w", err)
	}
	for _, path := range devices {
		kind, err := getDBusProperty[uint32](object, path, nmDevice, "DeviceType")
		if err != nil || kind != nmDeviceTypeWifi {
			continue
		}
		name, _ := getDBusProperty[string](object, path, nmDevice, "Interface")
		if nm.iface != "" && name != nm.iface {
			continue
		}
		nm.log.V(1).Info("Using wifi device", "interface", name, "path", path)
		nm.object = object
		nm.device = path
		return object, path, nil
	}
	return nil, "", fmt.Errorf("%w (interface %q)", ErrNoWifiDevice, nm.iface)
}

func (nm *NetworkManager) CurrentSSID(ctx context.Context) (string, error) {
	object, device, err := nm.connect()
	if err != nil {
		return "", err
	}
	ap, err := getDBusProperty[dbus.ObjectPath](object, device, nmWireless, "ActiveAccessPoint")
	if err != nil {
		return "", err
	}
	if ap == "/" || ap == "" {
		return "", nil
	}
	ssid, err := getDBusProperty[[]byte](object, ap, nmAccessPoint, "Ssid")
	if err != nil {
		return "", err
	}
	return string(ssid), nil
}

// Scan requests a fresh scan, then lists the access points. A refused scan
// request (rate limited by NetworkManager) falls back to the cached list.
func (nm *NetworkManager) Scan(ctx context.Context) ([]Network, error) {
	object, device, err := nm.connect()
	if err != nil {
		return nil, err
	}
	obj := object(device)

	call := obj.CallWithContext(ctx, nmWireless+".RequestScan", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		nm.log.V(1).Info("Scan request refused, using cached results", "error", call.Err.Error())
	} else {
		timer := time.NewTimer(nm.scanDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var aps []dbus.ObjectPath
	if err := obj.CallWithContext(ctx, nmWireless+".GetAllAccessPoints", 0).Store(&aps); err != nil {
		return nil, fmt.Errorf("listing access points: %w", err)
	}

	networks := make([]Network, 0, len(aps))
	for _, ap := range aps {
		ssid, err := getDBusProperty[[]byte](object, ap, nmAccessPoint, "Ssid")
		if err != nil || len(ssid) == 0 {
			continue
		}
		bssid, _ := getDBusProperty[string](object, ap, nmAccessPoint, "HwAddress")
		strength, _ := getDBusProperty[byte](object, ap, nmAccessPoint, "Strength")
		networks = append(networks, Network{
			SSID:   string(ssid),
			BSSID:  bssid,
			Signal: int(strength),
		})
	}
	nm.log.V(1).Info("Scanned", "count", len(networks))
	return networks, nil
}

// Join activates the saved profile for ssid when one exists, so the user's
// own security and addressing settings apply. Without a saved profile, or
// when it fails to activate, it joins through a volatile profile that
// NetworkManager forgets once disconnected.
func (nm *NetworkManager) Join(ctx context.Context, ssid, password string) error {
	object, device, err := nm.connect()
	if err != nil {
		return err
	}
	root := object(nmPath)

	if saved, ok := nm.savedConnection(ctx, object, ssid); ok {
		nm.log.Info("Activating saved connection", "ssid", ssid, "path", saved)
		var active dbus.ObjectPath
		err := root.CallWithContext(ctx, nmIface+".ActivateConnection", 0, saved, device, dbus.ObjectPath("/")).Store(&active)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		nm.log.Info("Saved connection did not activate, using a volatile profile", "ssid", ssid, "error", err.Error())
	}

	nm.log.Info("Joining", "ssid", ssid, "open", password == "")
	var path, active dbus.ObjectPath
	var result map[string]dbus.Variant
	return root.CallWithContext(ctx, nmIface+".AddAndActivateConnection2", 0,
		volatileProfile(ssid, password), device, dbus.ObjectPath("/"),
		map[string]dbus.Variant{"persist": dbus.MakeVariant("volatile")},
	).Store(&path, &active, &result)
}

func volatileProfile(ssid, password string) map[string]map[string]dbus.Variant {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":          dbus.MakeVariant(ssid),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(false),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {
			"method": dbus.MakeVariant("auto"),
		},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}
	return settings
}

func (nm *NetworkManager) savedConnection(ctx context.Context, object objects, ssid string) (dbus.ObjectPath, bool) {
	var paths []dbus.ObjectPath
	if err := object(nmSettingsPath).CallWithContext(ctx, nmSettings+".ListConnections", 0).Store(&paths); err != nil {
		nm.log.V(1).Info("Unable to list saved connections", "error", err.Error())
		return "", false
	}
	for _, path := range paths {
		var settings map[string]map[string]dbus.Variant
		if err := object(path).CallWithContext(ctx, nmConnection+".GetSettings", 0).Store(&settings); err != nil {
			continue
		}
		wireless, ok := settings["802-11-wireless"]
		if !ok {
			continue
		}
		raw, ok := wireless["ssid"].Value().([]byte)
		if ok && bytes.Equal(raw, []byte(ssid)) {
			return path, true
		}
	}
	return "", false
}

// Permissions returns the NetworkManager permissions of the caller, e.g.
// "org.freedesktop.NetworkManager.wifi.scan" -> "yes".
func (nm *NetworkManager) Permissions(ctx context.Context) (map[string]string, error) {
	object, _, err := nm.connect()
	if err != nil {
		return nil, err
	}
	var perms map[string]string
	if err := object(nmPath).CallWithContext(ctx, nmIface+".GetPermissions", 0).Store(&perms); err != nil {
		return nil, fmt.Errorf("reading NetworkManager permissions: %w", err)
	}
	return perms, nil
}

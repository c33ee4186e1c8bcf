// Package configurator sets up a Shelly device reached over its own access
// point: MQTT link, telemetry script, home Wi-Fi, then reboot.
package configurator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/session"
	"github.com/ecowatt/shelly-onboard/internal/shelly/scripts"
	"github.com/ecowatt/shelly-onboard/pkg/shelly"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/mqtt"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/script"
	sh "github.com/ecowatt/shelly-onboard/pkg/shelly/shelly"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/system"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/wifi"

	"github.com/go-logr/logr"
	"github.com/jackpal/gateway"
)

var (
	ErrIdentification = errors.New("unable to identify the device")
	ErrConfiguration  = errors.New("unable to configure the device")
)

// DefaultDeviceIP is the address of Gen2 devices on their own access point.
const DefaultDeviceIP = "192.168.33.1"

type MqttSettings struct {
	Server string
	User   string
	Pass   string
}

type Config struct {
	DeviceIP       string // empty: discovered
	Mqtt           MqttSettings
	IngestURL      string
	IngestInterval time.Duration
	ScriptName     string
	Minify         bool
	Settle         time.Duration
}

type Configurator struct {
	log       logr.Logger
	registrar *shelly.Registrar
	cfg       Config

	// overridable in tests
	discoverGateway func() (net.IP, error)
	sleep           func(ctx context.Context, d time.Duration) error
}

func New(log logr.Logger, registrar *shelly.Registrar, cfg Config) *Configurator {
	if cfg.ScriptName == "" {
		cfg.ScriptName = scripts.DefaultName
	}
	return &Configurator{
		log:             log.WithName("configurator"),
		registrar:       registrar,
		cfg:             cfg,
		discoverGateway: gateway.DiscoverGateway,
		sleep:           sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DeviceHost is the configured device address, else the default gateway of
// the radio joined to the device access point, else DefaultDeviceIP.
func (c *Configurator) DeviceHost() string {
	if c.cfg.DeviceIP != "" {
		return c.cfg.DeviceIP
	}
	ip, err := c.discoverGateway()
	if err != nil || ip == nil || ip.IsUnspecified() {
		c.log.V(1).Info("No gateway, using default device address", "ip", DefaultDeviceIP, "error", err)
		return DefaultDeviceIP
	}
	return ip.String()
}

// Identify reads the identity from Sys.GetStatus, falling back to
// Shelly.GetDeviceInfo.
func (c *Configurator) Identify(ctx context.Context, device *shelly.Device) (identity.Identity, error) {
	frame, err := system.DoGetStatus(ctx, device)
	if err == nil {
		var prefix, mac string
		prefix, mac, err = frame.SplitSource()
		if err == nil {
			var id identity.Identity
			id, err = identity.New(mac, prefix, "")
			if err == nil {
				return id, nil
			}
		}
	}
	if ctx.Err() != nil {
		return identity.Identity{}, ctx.Err()
	}
	c.log.Info("Sys.GetStatus did not identify the device, trying Shelly.GetDeviceInfo", "reason", err.Error())

	info, err2 := sh.DoGetDeviceInfo(ctx, device)
	if err2 != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v; %w", ErrIdentification, err, err2)
	}
	id, err2 := fromDeviceInfo(info)
	if err2 != nil {
		return identity.Identity{}, fmt.Errorf("%w: %w", ErrIdentification, err2)
	}
	return id, nil
}

func fromDeviceInfo(info *sh.DeviceInfo) (identity.Identity, error) {
	prefix := ""
	if p, _, ok := strings.Cut(info.Id, "-"); ok {
		prefix = p
	}
	mac := info.MacAddress
	if mac == "" {
		if m, ok := identity.ExtractMac(info.Id); ok {
			mac = m
		}
	}
	return identity.New(mac, prefix, info.DisplayName())
}

// Configure runs the whole sequence against the device, then waits for it to
// reboot. The identity is returned as soon as known, even on failure.
func (c *Configurator) Configure(ctx context.Context, home session.Credentials) (identity.Identity, error) {
	device := shelly.NewHttpDevice(c.registrar, c.DeviceHost())
	log := c.log.WithValues("device", device.Host())

	id, err := c.Identify(ctx, device)
	if err != nil {
		return id, err
	}
	device.Identified(id.ClientID())
	log = log.WithValues("mac", id.Mac(), "client_id", id.ClientID())
	log.Info("Identified device")

	err = mqtt.DoSetConfig(ctx, device, mqtt.Configuration{
		Enable:        true,
		Server:        c.cfg.Mqtt.Server,
		User:          c.cfg.Mqtt.User,
		Pass:          c.cfg.Mqtt.Pass,
		ClientId:      id.ClientID(),
		TopicPrefix:   id.TopicPrefix(),
		RpcNotifs:     true,
		StatusNotifs:  true,
		EnableRpc:     true,
		EnableControl: true,
	})
	if err != nil {
		return id, c.failed(ctx, mqtt.SetConfig.String(), err)
	}
	log.Info("Configured MQTT", "server", c.cfg.Mqtt.Server)

	code, err := scripts.Render(scripts.Params{
		WebhookURL: c.cfg.IngestURL,
		MAC:        id.Mac(),
		IntervalMs: int(c.cfg.IngestInterval / time.Millisecond),
	})
	if err != nil {
		return id, c.failed(ctx, "render script", err)
	}
	if _, err := script.Install(ctx, log, device, c.cfg.ScriptName, code, c.cfg.Minify); err != nil {
		return id, c.failed(ctx, "install script", err)
	}

	if err := wifi.DoSetConfig(ctx, device, wifi.HomeStation(home.SSID, home.Password)); err != nil {
		return id, c.failed(ctx, wifi.SetConfig.String(), err)
	}
	log.Info("Configured home wifi", "ssid", home.SSID)

	// the reboot severs the connection: any failure is expected
	if err := sh.DoReboot(ctx, device); err != nil {
		log.V(1).Info("Reboot call ended without answer", "error", err.Error())
	}

	log.Info("Waiting for the device to restart", "settle", c.cfg.Settle)
	if err := c.sleep(ctx, c.cfg.Settle); err != nil {
		return id, err
	}
	return id, nil
}

func (c *Configurator) failed(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", ErrConfiguration, step, err)
}

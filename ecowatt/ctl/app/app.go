// Package app assembles the onboarding components from the command line
// configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/internal/backend"
	"github.com/ecowatt/shelly-onboard/internal/configurator"
	"github.com/ecowatt/shelly-onboard/internal/connect"
	"github.com/ecowatt/shelly-onboard/internal/mdns"
	"github.com/ecowatt/shelly-onboard/internal/permission"
	"github.com/ecowatt/shelly-onboard/internal/presence"
	"github.com/ecowatt/shelly-onboard/internal/provision"
	"github.com/ecowatt/shelly-onboard/internal/radio"
	"github.com/ecowatt/shelly-onboard/internal/scan"
	"github.com/ecowatt/shelly-onboard/internal/session"
	"github.com/ecowatt/shelly-onboard/internal/storage"
	"github.com/ecowatt/shelly-onboard/pkg/shelly"

	"github.com/go-logr/logr"
	"github.com/spf13/viper"
)

type App struct {
	log     logr.Logger
	v       *viper.Viper
	Storage *storage.Storage
	Session *session.AppSession
	radio   *radio.NetworkManager
}

// Open opens the local store. Nothing touches the radio or the network yet.
func Open(ctx context.Context, log logr.Logger) (*App, error) {
	v := options.ViperConfig
	path := v.GetString("storage.path")
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	s, err := storage.NewStorage(log, path)
	if err != nil {
		return nil, err
	}
	return &App{
		log:     log,
		v:       v,
		Storage: s,
		Session: &session.AppSession{Token: v.GetString("backend.token"), Store: s},
	}, nil
}

func (a *App) Close() {
	a.Storage.Close()
}

func (a *App) Radio() *radio.NetworkManager {
	if a.radio == nil {
		a.radio = radio.NewNetworkManager(a.log, a.v.GetString("radio.interface"))
	}
	return a.radio
}

func (a *App) Scanner() *scan.Scanner {
	return scan.NewScanner(a.log, a.Radio())
}

func (a *App) Backend() (*backend.Client, error) {
	return backend.NewClient(a.log, a.v.GetString("backend.url"), a.Session.Token, &http.Client{
		Timeout: a.v.GetDuration("backend.timeout"),
	})
}

func (a *App) Configurator() *configurator.Configurator {
	// per call timeouts come from the RPC handlers
	registrar := shelly.NewRegistrar(a.log, &http.Client{})
	return configurator.New(a.log, registrar, configurator.Config{
		DeviceIP: a.v.GetString("device.ip"),
		Mqtt: configurator.MqttSettings{
			Server: a.v.GetString("mqtt.server"),
			User:   a.v.GetString("mqtt.user"),
			Pass:   a.v.GetString("mqtt.pass"),
		},
		IngestURL:      options.IngestURL(a.v),
		IngestInterval: a.v.GetDuration("ingest.interval"),
		ScriptName:     a.v.GetString("script.name"),
		Minify:         a.v.GetBool("script.minify"),
		Settle:         a.v.GetDuration("timing.settle"),
	})
}

func (a *App) budgets() (connect.Budget, connect.Budget) {
	interval := a.v.GetDuration("timing.probe_interval")
	return connect.Budget{Attempts: a.v.GetUint("timing.device_attempts"), Interval: interval},
		connect.Budget{Attempts: a.v.GetUint("timing.home_attempts"), Interval: interval}
}

// Controller wires a provisioning controller to the system radio.
func (a *App) Controller(onChange func(provision.Session)) (*provision.Controller, error) {
	be, err := a.Backend()
	if err != nil {
		return nil, err
	}
	device, home := a.budgets()
	return provision.NewController(a.log, a.Session,
		permission.NewNetworkManager(a.log, a.Radio()),
		a.Scanner(),
		connect.NewManager(a.log, a.Radio()),
		a.Configurator(),
		be,
		provision.Options{
			DeviceBudget: device,
			HomeBudget:   home,
			OnChange:     onChange,
			History:      a.Storage,
		}), nil
}

// Presence returns the broker watcher, nil when disabled or without broker.
func (a *App) Presence() *presence.Watcher {
	if !a.v.GetBool("presence.enable") || a.v.GetString("mqtt.server") == "" {
		return nil
	}
	return presence.NewWatcher(a.log, presence.Config{
		Server:  a.v.GetString("mqtt.server"),
		User:    a.v.GetString("mqtt.user"),
		Pass:    a.v.GetString("mqtt.pass"),
		Timeout: a.v.GetDuration("presence.timeout"),
	})
}

// Locator returns the mDNS locator, nil when disabled.
func (a *App) Locator() (*mdns.Locator, error) {
	if !a.v.GetBool("mdns.enable") {
		return nil, nil
	}
	return mdns.NewLocator(a.log, a.v.GetDuration("mdns.timeout"))
}

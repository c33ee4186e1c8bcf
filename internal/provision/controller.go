// Package provision drives the onboarding of one Shelly device: scan for
// its access point, join it, configure the device, bring the radio back
// home and register the device with the backend.
package provision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ecowatt/shelly-onboard/hlog"
	"github.com/ecowatt/shelly-onboard/internal/backend"
	"github.com/ecowatt/shelly-onboard/internal/connect"
	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/permission"
	"github.com/ecowatt/shelly-onboard/internal/scan"
	"github.com/ecowatt/shelly-onboard/internal/session"
	"github.com/ecowatt/shelly-onboard/internal/storage"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

type Scanner interface {
	Scan(ctx context.Context) (scan.Result, error)
}

type Connector interface {
	Connect(ctx context.Context, ssid, password string, b connect.Budget) error
}

type DeviceConfigurator interface {
	Configure(ctx context.Context, home session.Credentials) (identity.Identity, error)
}

type Backend interface {
	RegisteredMacs(ctx context.Context) (map[string]struct{}, error)
	Register(ctx context.Context, id identity.Identity) (*backend.Device, error)
	EnsureOff(ctx context.Context, deviceId int64) error
}

type Recorder interface {
	RecordRun(ctx context.Context, run storage.Run) error
}

type Options struct {
	DeviceBudget connect.Budget
	HomeBudget   connect.Budget
	// OnChange receives every new session, from the calling goroutine.
	OnChange func(Session)
	// History records terminal outcomes when set.
	History Recorder
}

type Controller struct {
	log          logr.Logger
	app          *session.AppSession
	gate         permission.Gate
	scanner      Scanner
	connector    Connector
	configurator DeviceConfigurator
	backend      Backend
	opts         Options

	mu      sync.Mutex
	session Session
	home    session.Credentials
	safety  sync.WaitGroup
	now     func() time.Time
}

func NewController(log logr.Logger, app *session.AppSession, gate permission.Gate, scanner Scanner, connector Connector, configurator DeviceConfigurator, be Backend, opts Options) *Controller {
	if opts.DeviceBudget.Attempts == 0 {
		opts.DeviceBudget = connect.DeviceBudget
	}
	if opts.HomeBudget.Attempts == 0 {
		opts.HomeBudget = connect.HomeBudget
	}
	return &Controller{
		log:          log.WithName("provision"),
		app:          app,
		gate:         gate,
		scanner:      scanner,
		connector:    connector,
		configurator: configurator,
		backend:      be,
		opts:         opts,
		session:      Session{Step: Idle},
		now:          time.Now,
	}
}

// Session returns the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) dispatch(ctx context.Context, e Event) Session {
	c.mu.Lock()
	prev := c.session
	next, ok := e.apply(prev)
	c.session = next
	c.mu.Unlock()

	if !ok {
		c.log.V(1).Info("Ignored event", "step", prev.Step, "event", e)
		return next
	}
	if next.Step != prev.Step {
		c.log.Info("Step", "from", prev.Step, "to", next.Step, "run_id", next.RunId)
	}
	if next.Step.Terminal() && !prev.Step.Terminal() {
		c.record(ctx, next)
	}
	if c.opts.OnChange != nil {
		c.opts.OnChange(next)
	}
	return next
}

func (c *Controller) fail(ctx context.Context, err error) error {
	if err != nil && !hlog.IsContextCancellation(err) {
		c.log.Error(err, "Provisioning failed", "kind", Kind(err))
	}
	s := c.dispatch(ctx, Failed{Err: err})
	return s.Err
}

func (c *Controller) record(ctx context.Context, s Session) {
	if c.opts.History == nil || s.RunId == "" {
		return
	}
	run := storage.Run{
		Id:         s.RunId,
		StartedAt:  s.StartedAt,
		FinishedAt: c.now(),
		Outcome:    s.Step.String(),
	}
	if s.Selected != nil {
		run.SSID = s.Selected.SSID
	}
	if s.Identity != nil {
		run.Mac = s.Identity.Mac()
	}
	if s.Device != nil {
		run.DeviceId = formatId(s.Device.Id)
	}
	if s.Err != nil {
		run.Error = Kind(s.Err) + ": " + s.Err.Error()
	}
	if err := c.opts.History.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		c.log.Error(err, "Unable to record run", "run_id", s.RunId)
	}
}

// Start begins a run, up to the list of candidate devices. It stays idle
// while the token or the home credentials are missing.
func (c *Controller) Start(ctx context.Context) error {
	if c.app == nil || c.app.Token == "" {
		c.dispatch(ctx, Waiting{Err: ErrMissingToken})
		return ErrMissingToken
	}
	home, err := c.app.HomeWifi(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrMissingCredentials) {
			err = errors.Join(session.ErrMissingCredentials, err)
		}
		c.dispatch(ctx, Waiting{Err: err})
		return err
	}

	s := c.dispatch(ctx, Started{RunId: uuid.NewString(), At: c.now()})
	if s.Step != RequestingPermissions {
		return ErrNotReady
	}
	c.mu.Lock()
	c.home = home
	c.mu.Unlock()

	macs, err := c.backend.RegisteredMacs(ctx)
	if err != nil {
		c.log.Error(err, "Unable to fetch registered devices, assuming none")
		macs = map[string]struct{}{}
	}
	c.dispatch(ctx, MacsFetched{Macs: macs})

	if !c.gate.Acquire(ctx) {
		return c.fail(ctx, ErrPermissionDenied)
	}
	c.dispatch(ctx, PermissionsGranted{})

	res, err := c.scanner.Scan(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}
	current := res.CurrentSSID
	if current == "" || scan.IsCandidate(current) {
		current = home.SSID
	}
	s = c.dispatch(ctx, Scanned{CurrentSSID: current, Candidates: res.Candidates})
	return s.Err
}

// Retry restarts from the permission step, keeping nothing of the
// previous attempt.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Start(ctx)
}

// Select provisions the device behind the access point ssid, one of the
// scanned candidates. Devices already in the account are refused before
// any connection attempt, and the session stays on the device list.
func (c *Controller) Select(ctx context.Context, ssid string) error {
	s := c.Session()
	if s.Step != DeviceList {
		return ErrNotReady
	}
	network, ok := s.Network(ssid)
	if !ok {
		return ErrUnknownNetwork
	}
	if mac, ok := identity.ExtractMac(ssid); ok && s.IsRegistered(mac) {
		c.log.Info("Device already registered", "ssid", ssid, "mac", mac)
		return &AlreadyRegisteredError{Mac: mac}
	}

	s = c.dispatch(ctx, Selected{Network: network})
	if s.Step != Connecting || s.Selected == nil || s.Selected.SSID != ssid {
		// another Start or Select moved the session first
		return ErrNotReady
	}

	// device access points are open
	if err := c.connector.Connect(ctx, ssid, "", c.opts.DeviceBudget); err != nil {
		return c.fail(ctx, c.reconnectHome(ctx, err))
	}

	c.dispatch(ctx, ConfigurationStarted{})
	c.mu.Lock()
	home := c.home
	c.mu.Unlock()

	id, err := c.configurator.Configure(ctx, home)
	if !id.IsZero() {
		c.dispatch(ctx, Identified{Identity: id})
	}
	if err != nil {
		return c.fail(ctx, c.reconnectHome(ctx, err))
	}

	if err := c.reconnectHome(ctx, nil); err != nil {
		return c.fail(ctx, err)
	}

	device, err := c.backend.Register(ctx, id)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.dispatch(ctx, Registered{Device: *device})
	c.ensureOff(ctx, device.Id)
	return nil
}

// reconnectHome brings the radio back to the home network. It runs even
// when ctx is canceled: leaving the radio on the device access point is
// worse than a failed run. cause is the failure that ended the run, if any.
func (c *Controller) reconnectHome(ctx context.Context, cause error) error {
	s := c.Session()
	c.mu.Lock()
	home := c.home
	c.mu.Unlock()

	ssid := s.UserHomeSSID
	if ssid == "" {
		ssid = home.SSID
	}
	password := ""
	if ssid == home.SSID {
		password = home.Password
	}

	b := c.opts.HomeBudget
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.Interval*time.Duration(b.Attempts)+30*time.Second)
	defer cancel()

	c.log.Info("Reconnecting home", "ssid", ssid, "after_failure", cause != nil)
	err := c.connector.Connect(rctx, ssid, password, b)
	if err == nil {
		return cause
	}
	hr := &HomeReconnectError{SSID: ssid, Err: err}
	c.log.Error(err, "Unable to reconnect home", "ssid", ssid)
	if cause == nil {
		return hr
	}
	return errors.Join(cause, hr)
}

// ensureOff switches the registered device off in the background. Its
// failure is logged only: the registration already succeeded.
func (c *Controller) ensureOff(ctx context.Context, deviceId int64) {
	c.safety.Add(1)
	go func(ctx context.Context) {
		defer c.safety.Done()
		if err := c.backend.EnsureOff(ctx, deviceId); err != nil {
			hlog.ErrorIfNotCanceled(c.log, err, "Unable to switch the new device off", "dev_id", deviceId)
		}
	}(context.WithoutCancel(ctx))
}

// WaitSafety blocks until the background power-off attempts are over.
func (c *Controller) WaitSafety() {
	c.safety.Wait()
}

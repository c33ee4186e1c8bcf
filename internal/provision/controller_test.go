package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/backend"
	"github.com/ecowatt/shelly-onboard/internal/configurator"
	"github.com/ecowatt/shelly-onboard/internal/connect"
	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/permission"
	"github.com/ecowatt/shelly-onboard/internal/radio"
	"github.com/ecowatt/shelly-onboard/internal/retry"
	"github.com/ecowatt/shelly-onboard/internal/scan"
	"github.com/ecowatt/shelly-onboard/internal/session"
	"github.com/ecowatt/shelly-onboard/internal/storage"

	"github.com/go-logr/logr/testr"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	homeSSID = "MyHomeRouter"
	apSSID   = "ShellyPlus1PM-A1B2C3D4E5F6"
	apMac    = "A1B2C3D4E5F6"
)

var fast = connect.Budget{Attempts: 3, Interval: time.Millisecond}

type denied struct{}

func (denied) Acquire(ctx context.Context) bool { return false }

// fakeConfigurator checks the radio is on the device access point when
// called.
type fakeConfigurator struct {
	radio *radio.Mock
	id    identity.Identity
	err   error
	onAP  bool
	home  session.Credentials
	calls int
}

func (f *fakeConfigurator) Configure(ctx context.Context, home session.Credentials) (identity.Identity, error) {
	f.calls++
	f.home = home
	current, _ := f.radio.CurrentSSID(ctx)
	f.onAP = current == apSSID
	return f.id, f.err
}

type fakeAccount struct {
	mu        sync.Mutex
	devices   []backend.Device
	listErr   bool
	register  int
	status    int
	detail    string
	registers []string
	offs      []bool
}

func (f *fakeAccount) serve(t *testing.T) *backend.Client {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/devices/", func(w http.ResponseWriter, req *http.Request) {
		if f.listErr {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.devices)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/devices/", func(w http.ResponseWriter, req *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		f.mu.Lock()
		f.register++
		f.registers = append(f.registers, in["dev_hardware_id"])
		status, detail := f.status, f.detail
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"detail":%q}`, detail)
			return
		}
		_ = json.NewEncoder(w).Encode(backend.Device{Id: 42, HardwareId: in["dev_hardware_id"], Name: in["dev_name"], MqttPrefix: in["dev_mqtt_prefix"]})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/control/{id}/set", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			State bool `json:"state"`
		}
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		assert.Equal(t, "42", mux.Vars(req)["id"])
		f.mu.Lock()
		f.offs = append(f.offs, in.State)
		f.mu.Unlock()
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	c, err := backend.NewClient(testr.New(t), srv.URL, "token", srv.Client())
	require.NoError(t, err)
	c.OffPolicy = retry.Policy{Attempts: 2, Delay: time.Millisecond}
	return c
}

type history struct {
	runs []storage.Run
}

func (h *history) RecordRun(ctx context.Context, run storage.Run) error {
	h.runs = append(h.runs, run)
	return nil
}

type fixture struct {
	radio        *radio.Mock
	configurator *fakeConfigurator
	account      *fakeAccount
	history      *history
	steps        []Step
	app          *session.AppSession
	gate         permission.Gate
}

func newFixture(t *testing.T) *fixture {
	r := &radio.Mock{
		Current: homeSSID,
		Networks: []radio.Network{
			{SSID: homeSSID, Signal: 90},
			{SSID: apSSID, Signal: 60},
			{SSID: "NeighbourWifi", Signal: 40},
		},
	}
	id, err := identity.New(apMac, "shellyplus1pm", "Shelly Plus 1PM")
	require.NoError(t, err)
	return &fixture{
		radio:        r,
		configurator: &fakeConfigurator{radio: r, id: id},
		account:      &fakeAccount{},
		history:      &history{},
		app: &session.AppSession{
			Token: "token",
			Store: &session.Static{Credentials: &session.Credentials{SSID: homeSSID, Password: "secret"}},
		},
		gate: permission.Granted{},
	}
}

func (f *fixture) controller(t *testing.T) *Controller {
	log := testr.New(t)
	return NewController(log, f.app, f.gate,
		scan.NewScanner(log, f.radio),
		connect.NewManager(log, f.radio),
		f.configurator,
		f.account.serve(t),
		Options{
			DeviceBudget: fast,
			HomeBudget:   fast,
			History:      f.history,
			OnChange: func(s Session) {
				if len(f.steps) == 0 || f.steps[len(f.steps)-1] != s.Step {
					f.steps = append(f.steps, s.Step)
				}
			},
		})
}

func TestProvisionSuccess(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	s := c.Session()
	require.Equal(t, DeviceList, s.Step)
	require.Equal(t, homeSSID, s.UserHomeSSID)
	require.Len(t, s.FoundDevices, 1)
	require.Equal(t, apSSID, s.FoundDevices[0].SSID)

	require.NoError(t, c.Select(ctx, apSSID))
	c.WaitSafety()

	s = c.Session()
	require.Equal(t, Success, s.Step)
	require.EqualValues(t, 42, s.Device.Id)
	require.Equal(t, []Step{RequestingPermissions, ScanningWifi, DeviceList, Connecting, Configuring, Success}, f.steps)

	require.True(t, f.configurator.onAP)
	require.Equal(t, session.Credentials{SSID: homeSSID, Password: "secret"}, f.configurator.home)
	require.Equal(t, []string{apSSID, homeSSID}, f.radio.Joins)
	require.Equal(t, homeSSID, f.radio.Current)

	require.Equal(t, []string{apMac}, f.account.registers)
	require.Equal(t, []bool{false}, f.account.offs)

	require.Len(t, f.history.runs, 1)
	run := f.history.runs[0]
	require.Equal(t, "success", run.Outcome)
	require.Equal(t, s.RunId, run.Id)
	require.Equal(t, apMac, run.Mac)
	require.Equal(t, "42", run.DeviceId)
	require.Empty(t, run.Error)
}

func TestRegisteredDeviceIsRefusedBeforeConnecting(t *testing.T) {
	f := newFixture(t)
	f.account.devices = []backend.Device{{Id: 1, HardwareId: "a1b2c3d4e5f6"}}
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	err := c.Select(ctx, apSSID)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	require.Empty(t, f.radio.Joins)
	require.Zero(t, f.configurator.calls)
	require.Zero(t, f.account.register)
	require.Equal(t, DeviceList, c.Session().Step)
}

func TestRegistrationConflictIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.account.status = http.StatusConflict
	f.account.detail = "Device already exists"
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	err := c.Select(ctx, apSSID)
	require.ErrorIs(t, err, backend.ErrConflict)
	c.WaitSafety()

	s := c.Session()
	require.Equal(t, Error, s.Step)
	require.Equal(t, "RegistrationConflict", Kind(s.Err))
	require.Equal(t, "This device is already registered to your account.", s.Message)
	require.Equal(t, 1, f.account.register)
	require.Empty(t, f.account.offs)
	// the radio went home before registering
	require.Equal(t, homeSSID, f.radio.Current)

	require.Len(t, f.history.runs, 1)
	require.Equal(t, "error", f.history.runs[0].Outcome)
	require.Contains(t, f.history.runs[0].Error, "RegistrationConflict")
}

func TestValidationErrorShowsBackendDetail(t *testing.T) {
	f := newFixture(t)
	f.account.status = http.StatusUnprocessableEntity
	f.account.detail = "Invalid MAC address"
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Select(ctx, apSSID), backend.ErrValidation)
	require.Equal(t, "Invalid MAC address", c.Session().Message)
}

func TestHomeReconnectFailure(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	f.radio.Unreachable = map[string]bool{homeSSID: true}

	err := c.Select(ctx, apSSID)
	require.ErrorIs(t, err, ErrHomeReconnect)

	s := c.Session()
	require.Equal(t, Error, s.Step)
	require.Equal(t, "Please reconnect manually to your Wi-Fi: "+homeSSID, s.Message)
	require.Zero(t, f.account.register)
	require.Equal(t, 1, f.radio.JoinCount(homeSSID))
}

func TestDeviceConnectionFailureReturnsHome(t *testing.T) {
	f := newFixture(t)
	f.radio.Unreachable = map[string]bool{apSSID: true}
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	err := c.Select(ctx, apSSID)
	require.ErrorIs(t, err, connect.ErrConnection)

	s := c.Session()
	require.Equal(t, Error, s.Step)
	require.Equal(t, "ConnectionFailure", Kind(s.Err))
	require.Equal(t, "Unable to connect to the device.", s.Message)
	require.Zero(t, f.configurator.calls)
	require.Equal(t, []string{apSSID, homeSSID}, f.radio.Joins)
	require.Equal(t, homeSSID, f.radio.Current)
}

func TestConfigurationFailureReturnsHome(t *testing.T) {
	f := newFixture(t)
	f.configurator.err = fmt.Errorf("%w: WiFi.SetConfig: timeout", configurator.ErrConfiguration)
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Select(ctx, apSSID), configurator.ErrConfiguration)

	s := c.Session()
	require.Equal(t, Error, s.Step)
	require.Equal(t, "Error while configuring the device.", s.Message)
	require.Equal(t, homeSSID, f.radio.Current)
	require.Zero(t, f.account.register)
}

func TestBothFailuresAreReported(t *testing.T) {
	f := newFixture(t)
	f.configurator.err = fmt.Errorf("%w: no answer", configurator.ErrIdentification)
	f.configurator.id = identity.Identity{}
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	f.radio.Unreachable = map[string]bool{homeSSID: true}
	err := c.Select(ctx, apSSID)
	require.ErrorIs(t, err, configurator.ErrIdentification)
	require.ErrorIs(t, err, ErrHomeReconnect)

	s := c.Session()
	require.Equal(t, "IdentificationError", Kind(s.Err))
	require.Equal(t, "Unable to identify the device.\nPlease reconnect manually to your Wi-Fi: "+homeSSID, s.Message)
	// identity from the SSID is kept
	require.Equal(t, apMac, s.Identity.Mac())
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.gate = denied{}
	c := f.controller(t)

	require.ErrorIs(t, c.Start(context.Background()), ErrPermissionDenied)
	require.Equal(t, Error, c.Session().Step)
	require.Empty(t, f.radio.Joins)
}

func TestNoDeviceFound(t *testing.T) {
	f := newFixture(t)
	f.radio.Networks = []radio.Network{{SSID: homeSSID, Signal: 90}}
	c := f.controller(t)

	require.ErrorIs(t, c.Start(context.Background()), ErrNoDevicesFound)
	require.Equal(t, Error, c.Session().Step)
}

func TestScanFailure(t *testing.T) {
	f := newFixture(t)
	f.radio.ScanErr = radio.ErrMockRadio
	c := f.controller(t)

	err := c.Start(context.Background())
	require.ErrorIs(t, err, scan.ErrScan)
	require.Equal(t, "ScanFailure", Kind(c.Session().Err))
}

func TestMissingPrerequisitesKeepIdle(t *testing.T) {
	f := newFixture(t)
	f.app.Store = &session.Static{}
	c := f.controller(t)

	require.ErrorIs(t, c.Start(context.Background()), session.ErrMissingCredentials)
	require.Equal(t, Idle, c.Session().Step)
	require.Empty(t, f.history.runs)

	f.app.Token = ""
	require.ErrorIs(t, c.Start(context.Background()), ErrMissingToken)
	require.Equal(t, Idle, c.Session().Step)
	require.Equal(t, "Missing token. Sign in again.", c.Session().Message)
}

func TestUnreachableBackendListIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.account.listErr = true
	c := f.controller(t)

	require.NoError(t, c.Start(context.Background()))
	require.Empty(t, c.Session().RegisteredMacs)
}

func TestSelectNeedsTheDeviceList(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	ctx := context.Background()

	require.ErrorIs(t, c.Select(ctx, apSSID), ErrNotReady)
	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Select(ctx, "shelly-elsewhere"), ErrUnknownNetwork)
	require.Equal(t, DeviceList, c.Session().Step)
}

func TestConcurrentSelectProvisionsOnce(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Select(ctx, apSSID)
		}()
	}
	wg.Wait()
	c.WaitSafety()

	require.ElementsMatch(t, []error{nil, ErrNotReady}, errs)
	require.Equal(t, Success, c.Session().Step)
	require.Equal(t, 1, f.configurator.calls)
	require.Equal(t, []string{apMac}, f.account.registers)
	require.Equal(t, []string{apSSID, homeSSID}, f.radio.Joins)
}

func TestRetryStartsOver(t *testing.T) {
	f := newFixture(t)
	f.account.status = http.StatusInternalServerError
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Select(ctx, apSSID), backend.ErrRegistration)
	first := c.Session().RunId

	f.account.mu.Lock()
	f.account.status = 0
	f.account.mu.Unlock()
	require.NoError(t, c.Retry(ctx))
	s := c.Session()
	require.Equal(t, DeviceList, s.Step)
	require.NotEqual(t, first, s.RunId)
	require.Nil(t, s.Err)

	require.NoError(t, c.Select(ctx, apSSID))
	c.WaitSafety()
	require.Equal(t, Success, c.Session().Step)
	require.Len(t, f.history.runs, 2)
}

func TestHomeFallsBackToStoredSSID(t *testing.T) {
	f := newFixture(t)
	// left on a device access point by an earlier run
	f.radio.Current = apSSID
	c := f.controller(t)

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, homeSSID, c.Session().UserHomeSSID)
}

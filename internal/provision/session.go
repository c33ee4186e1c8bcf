package provision

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/backend"
	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/radio"
)

// Session is the state of one provisioning run. Values are replaced, never
// mutated in place: observers may keep the snapshots they receive.
type Session struct {
	RunId          string              `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StartedAt      time.Time           `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Step           Step                `json:"step" yaml:"step"`
	FoundDevices   []radio.Network     `json:"found_devices,omitempty" yaml:"found_devices,omitempty"`
	RegisteredMacs map[string]struct{} `json:"-" yaml:"-"`
	Selected       *radio.Network      `json:"selected,omitempty" yaml:"selected,omitempty"`
	Identity       *identity.Identity  `json:"identity,omitempty" yaml:"identity,omitempty"`
	UserHomeSSID   string              `json:"user_home_ssid,omitempty" yaml:"user_home_ssid,omitempty"`
	Device         *backend.Device     `json:"device,omitempty" yaml:"device,omitempty"`
	Err            error               `json:"-" yaml:"-"`
	Message        string              `json:"message,omitempty" yaml:"message,omitempty"`
}

// IsRegistered reports whether mac belongs to the account as fetched at
// the start of the run.
func (s Session) IsRegistered(mac string) bool {
	_, ok := s.RegisteredMacs[strings.ToUpper(mac)]
	return ok
}

// Network returns the scanned candidate named ssid.
func (s Session) Network(ssid string) (radio.Network, bool) {
	for _, n := range s.FoundDevices {
		if n.SSID == ssid {
			return n, true
		}
	}
	return radio.Network{}, false
}

type Event interface {
	apply(s Session) (Session, bool)
}

// Waiting holds the session idle until a prerequisite is met.
type Waiting struct{ Err error }

// Started begins a fresh run, discarding any previous state. A run may be
// restarted from the device list, before the radio left home.
type Started struct {
	RunId string
	At    time.Time
}

type MacsFetched struct{ Macs map[string]struct{} }

type PermissionsGranted struct{}

type Scanned struct {
	CurrentSSID string
	Candidates  []radio.Network
}

type Selected struct{ Network radio.Network }

type ConfigurationStarted struct{}

type Identified struct{ Identity identity.Identity }

type Registered struct{ Device backend.Device }

type Failed struct{ Err error }

func (e Waiting) apply(s Session) (Session, bool) {
	if s.Step != Idle && !s.Step.Terminal() {
		return s, false
	}
	return Session{
		Step:    Idle,
		Err:     e.Err,
		Message: Message(e.Err),
	}, true
}

func (e Started) apply(s Session) (Session, bool) {
	if s.Step != Idle && s.Step != DeviceList && !s.Step.Terminal() {
		return s, false
	}
	return Session{
		RunId:          e.RunId,
		StartedAt:      e.At,
		Step:           RequestingPermissions,
		RegisteredMacs: map[string]struct{}{},
	}, true
}

func (e MacsFetched) apply(s Session) (Session, bool) {
	if s.Step != RequestingPermissions {
		return s, false
	}
	macs := make(map[string]struct{}, len(e.Macs))
	for mac := range e.Macs {
		macs[strings.ToUpper(mac)] = struct{}{}
	}
	s.RegisteredMacs = macs
	return s, true
}

func (e PermissionsGranted) apply(s Session) (Session, bool) {
	if s.Step != RequestingPermissions {
		return s, false
	}
	s.Step = ScanningWifi
	return s, true
}

// The home SSID is the network the radio was on when scanning. Zero
// candidates end the run.
func (e Scanned) apply(s Session) (Session, bool) {
	if s.Step != ScanningWifi {
		return s, false
	}
	s.UserHomeSSID = e.CurrentSSID
	s.FoundDevices = append([]radio.Network(nil), e.Candidates...)
	if len(s.FoundDevices) == 0 {
		return fail(s, ErrNoDevicesFound), true
	}
	s.Step = DeviceList
	return s, true
}

// Selecting pre-fills the identity from the SSID, until the device confirms
// it.
func (e Selected) apply(s Session) (Session, bool) {
	if s.Step != DeviceList {
		return s, false
	}
	if _, ok := s.Network(e.Network.SSID); !ok {
		return s, false
	}
	n := e.Network
	mac, hasMac := identity.ExtractMac(n.SSID)
	if hasMac && s.IsRegistered(mac) {
		return s, false
	}
	s.Selected = &n
	s.Identity = nil
	if hasMac {
		prefix, _, _ := strings.Cut(n.SSID, "-")
		if id, err := identity.New(mac, prefix, ""); err == nil {
			s.Identity = &id
		}
	}
	s.Step = Connecting
	return s, true
}

func (e ConfigurationStarted) apply(s Session) (Session, bool) {
	if s.Step != Connecting {
		return s, false
	}
	s.Step = Configuring
	return s, true
}

func (e Identified) apply(s Session) (Session, bool) {
	if s.Step != Configuring {
		return s, false
	}
	id := e.Identity
	s.Identity = &id
	return s, true
}

func (e Registered) apply(s Session) (Session, bool) {
	if s.Step != Configuring {
		return s, false
	}
	d := e.Device
	s.Device = &d
	s.Step = Success
	s.Err = nil
	s.Message = ""
	return s, true
}

func (e Failed) apply(s Session) (Session, bool) {
	if s.Step.Terminal() {
		return s, false
	}
	if e.Err == nil {
		e.Err = errors.New("unknown failure")
	}
	return fail(s, e.Err), true
}

func fail(s Session, err error) Session {
	s.Step = Error
	s.Err = err
	s.Message = Message(err)
	return s
}

// Transition returns the session after e. Events that do not apply to the
// current step leave it unchanged.
func Transition(s Session, e Event) Session {
	next, _ := e.apply(s)
	return next
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}

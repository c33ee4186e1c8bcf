// Package session holds what the provisioning controller reads from the
// signed-in application: the backend token and the home Wi-Fi credentials.
package session

import (
	"context"
	"errors"
)

var ErrMissingCredentials = errors.New("home wifi credentials are not set")

// Credentials of the network the device must join once provisioned.
type Credentials struct {
	SSID     string `json:"ssid" yaml:"ssid" db:"ssid"`
	Password string `json:"-" yaml:"-" db:"password"`
}

func (c *Credentials) Valid() bool {
	return c != nil && c.SSID != "" && c.Password != ""
}

// CredentialsStore keeps the home credentials across runs.
type CredentialsStore interface {
	GetWifiCredentials(ctx context.Context) (*Credentials, error)
	SetWifiCredentials(ctx context.Context, c Credentials) error
	ForgetWifiCredentials(ctx context.Context) error
}

// AppSession is read by the controller and never written by it.
type AppSession struct {
	Token string
	Store CredentialsStore
}

// HomeWifi returns the stored credentials, or ErrMissingCredentials.
func (s *AppSession) HomeWifi(ctx context.Context) (Credentials, error) {
	if s.Store == nil {
		return Credentials{}, ErrMissingCredentials
	}
	c, err := s.Store.GetWifiCredentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if !c.Valid() {
		return Credentials{}, ErrMissingCredentials
	}
	return *c, nil
}

// Static is a CredentialsStore holding credentials in memory.
type Static struct {
	Credentials *Credentials
}

func (s *Static) GetWifiCredentials(ctx context.Context) (*Credentials, error) {
	return s.Credentials, nil
}

func (s *Static) SetWifiCredentials(ctx context.Context, c Credentials) error {
	s.Credentials = &c
	return nil
}

func (s *Static) ForgetWifiCredentials(ctx context.Context) error {
	s.Credentials = nil
	return nil
}

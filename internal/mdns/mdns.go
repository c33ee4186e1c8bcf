// Package mdns finds a provisioned device on the home network by browsing
// the Shelly DNS-SD service.
package mdns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/identity"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
)

const (
	Service        = "_shelly._tcp"
	Domain         = "local."
	DefaultTimeout = 10 * time.Second
)

var ErrNotFound = errors.New("device not found over mDNS")

// Browser is zeroconf.Resolver.Browse.
type Browser func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

type Location struct {
	Instance string `json:"instance" yaml:"instance"`
	HostName string `json:"hostname" yaml:"hostname"`
	Ip       net.IP `json:"ip,omitempty" yaml:"ip,omitempty"`
	Port     int    `json:"port" yaml:"port"`
}

type Locator struct {
	log     logr.Logger
	browse  Browser
	timeout time.Duration
}

func NewLocator(log logr.Logger, timeout time.Duration) (*Locator, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("initializing zeroconf resolver: %w", err)
	}
	return newLocator(log, resolver.Browse, timeout), nil
}

func newLocator(log logr.Logger, browse Browser, timeout time.Duration) *Locator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Locator{log: log.WithName("mdns"), browse: browse, timeout: timeout}
}

// Matches reports whether the instance name is the one announced by the
// device with id. Shelly instances are named <prefix>-<mac>.
func Matches(instance string, id identity.Identity) bool {
	instance = strings.ToLower(instance)
	return instance == id.ClientID() || strings.HasSuffix(instance, "-"+strings.ToLower(id.Mac()))
}

// Locate browses until the device with id is announced or the timeout
// expires.
func (l *Locator) Locate(ctx context.Context, id identity.Identity) (*Location, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := l.browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browsing %s: %w", Service, err)
	}
	l.log.Info("Browsing", "service", Service, "instance", id.ClientID(), "timeout", l.timeout)

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id.ClientID())
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if entry == nil || !Matches(entry.Instance, id) {
				continue
			}
			loc := &Location{
				Instance: entry.Instance,
				HostName: entry.HostName,
				Port:     entry.Port,
			}
			if len(entry.AddrIPv4) > 0 {
				loc.Ip = entry.AddrIPv4[0]
			}
			l.log.Info("Located", "instance", loc.Instance, "ip", loc.Ip)
			return loc, nil
		}
	}
}

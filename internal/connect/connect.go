// Package connect moves the Wi-Fi radio between networks. It is the only
// writer of the radio, and one join/verify pair runs at a time.
package connect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/radio"
	"github.com/ecowatt/shelly-onboard/internal/retry"

	"github.com/go-logr/logr"
)

var ErrConnection = errors.New("unable to connect")

// Budget bounds the verification polling after a join.
type Budget struct {
	Attempts uint
	Interval time.Duration
}

var (
	DeviceBudget = Budget{Attempts: 10, Interval: 1000 * time.Millisecond}
	HomeBudget   = Budget{Attempts: 5, Interval: 1000 * time.Millisecond}
)

type Manager struct {
	log   logr.Logger
	radio radio.Radio
	mu    sync.Mutex
}

func NewManager(log logr.Logger, r radio.Radio) *Manager {
	return &Manager{log: log.WithName("connect"), radio: r}
}

// Join requests the radio to join ssid. True means the request was
// accepted, not that the radio is associated.
func (m *Manager) Join(ctx context.Context, ssid, password string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.join(ctx, ssid, password)
}

func (m *Manager) join(ctx context.Context, ssid, password string) bool {
	if err := m.radio.Join(ctx, ssid, password); err != nil {
		m.log.Error(err, "Join request failed", "ssid", ssid)
		return false
	}
	return true
}

// Verify polls the current SSID at most b.Attempts times, b.Interval apart,
// and reports whether it matched target. Probe errors count as misses.
func (m *Manager) Verify(ctx context.Context, target string, b Budget) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify(ctx, target, b)
}

func (m *Manager) verify(ctx context.Context, target string, b Budget) bool {
	_, err := retry.Do(logr.NewContext(ctx, m.log), retry.Policy{Attempts: b.Attempts, Delay: b.Interval}, func(ctx context.Context) (string, error) {
		current, err := m.radio.CurrentSSID(ctx)
		if err != nil {
			return "", err
		}
		if current != target {
			return "", fmt.Errorf("on %q", current)
		}
		return current, nil
	})
	if err != nil {
		m.log.Info("Not joined", "target", target, "reason", err.Error())
		return false
	}
	m.log.Info("Joined", "ssid", target)
	return true
}

// Connect joins ssid and verifies it within b.
func (m *Manager) Connect(ctx context.Context, ssid, password string, b Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.join(ctx, ssid, password) {
		return fmt.Errorf("%w to %s: join request refused", ErrConnection, ssid)
	}
	if !m.verify(ctx, ssid, b) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w to %s after %d attempts", ErrConnection, ssid, b.Attempts)
	}
	return nil
}

package radio

import (
	"context"
	"errors"
	"sync"
)

// Mock is an in-memory Radio. A joined SSID becomes current after
// Settle[ssid] CurrentSSID probes; SSIDs listed in Unreachable never do.
type Mock struct {
	mu sync.Mutex

	Networks    []Network
	ScanErr     error
	Current     string
	Settle      map[string]int
	Unreachable map[string]bool
	JoinErr     map[string]error

	pending string
	wait    int

	Joins  []string
	Probes int
}

func (m *Mock) CurrentSSID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Probes++
	if m.pending != "" {
		if m.wait <= 0 {
			m.Current = m.pending
			m.pending = ""
		} else {
			m.wait--
		}
	}
	return m.Current, nil
}

func (m *Mock) Scan(ctx context.Context) ([]Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	return append([]Network(nil), m.Networks...), nil
}

func (m *Mock) Join(ctx context.Context, ssid, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Joins = append(m.Joins, ssid)
	if err := m.JoinErr[ssid]; err != nil {
		return err
	}
	if m.Unreachable[ssid] {
		// the radio leaves the current network and fails to associate
		m.Current = ""
		m.pending = ""
		return nil
	}
	m.pending = ssid
	m.wait = m.Settle[ssid]
	return nil
}

// JoinCount returns how many times ssid was joined.
func (m *Mock) JoinCount(ssid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Joins {
		if s == ssid {
			n++
		}
	}
	return n
}

var ErrMockRadio = errors.New("mock radio failure")

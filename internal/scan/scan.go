// Package scan lists the Shelly access points in range.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ecowatt/shelly-onboard/internal/radio"

	"github.com/go-logr/logr"
)

var ErrScan = errors.New("unable to scan wifi networks")

// Prefix of device access point SSIDs, compared case-insensitively. It also
// covers the "shellyplus" and "shellypro" families.
const Prefix = "shelly"

type Result struct {
	CurrentSSID string          `json:"current_ssid" yaml:"current_ssid"`
	Candidates  []radio.Network `json:"candidates" yaml:"candidates"`
}

type Scanner struct {
	log   logr.Logger
	radio radio.Radio
}

func NewScanner(log logr.Logger, r radio.Radio) *Scanner {
	return &Scanner{log: log.WithName("scan"), radio: r}
}

func IsCandidate(ssid string) bool {
	return strings.HasPrefix(strings.ToLower(ssid), Prefix)
}

// Filter keeps the candidate networks, one per SSID with its strongest
// signal, strongest first. Ties keep the SSID order.
func Filter(networks []radio.Network) []radio.Network {
	best := make(map[string]radio.Network)
	order := make([]string, 0)
	for _, n := range networks {
		if !IsCandidate(n.SSID) {
			continue
		}
		prev, seen := best[n.SSID]
		if !seen {
			order = append(order, n.SSID)
		}
		if !seen || n.Signal > prev.Signal {
			best[n.SSID] = n
		}
	}

	candidates := make([]radio.Network, 0, len(order))
	for _, ssid := range order {
		candidates = append(candidates, best[ssid])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Signal > candidates[j].Signal
	})
	return candidates
}

// Scan returns the SSID the radio is on and the candidate devices. No
// candidate is not an error.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	current, err := s.radio.CurrentSSID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrScan, err)
	}
	networks, err := s.radio.Scan(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrScan, err)
	}
	candidates := Filter(networks)
	s.log.Info("Scanned", "current", current, "networks", len(networks), "candidates", len(candidates))
	return Result{CurrentSSID: current, Candidates: candidates}, nil
}

// Package gps validates position fixes before they are trusted for a visit
// transition: where the fix comes from (Locator), what the device says about
// itself (PlatformSignals) and the scoring model (Validator).
package gps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

// Accuracy is the precision tier requested from a position source
type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
)

var (
	// ErrUnavailable means no position could be produced at all
	ErrUnavailable = errors.New("gps unavailable")
	// ErrPermissionDenied means the agent has not granted location access
	ErrPermissionDenied = fmt.Errorf("%w: location permission denied", ErrUnavailable)
	// ErrTimeout means the position source did not answer in time
	ErrTimeout = fmt.Errorf("%w: position request timed out", ErrUnavailable)
)

// Fix is one reading from a position source
type Fix struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters *float64  `json:"accuracy,omitempty"`
	Speed          *float64  `json:"speed,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	Mocked         bool      `json:"mocked"`
	Timestamp      time.Time `json:"timestamp,omitempty"`
}

// Position returns the fix coordinates
func (f Fix) Position() models.Position {
	return models.Position{Lat: f.Lat, Lng: f.Lng}
}

// Sample converts the fix into a history row for agentID
func (f Fix) Sample(agentID string, at time.Time) models.LocationSample {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = at
	}
	return models.LocationSample{
		AgentID:        agentID,
		Position:       f.Position(),
		AccuracyMeters: f.AccuracyMeters,
		Speed:          f.Speed,
		Heading:        f.Heading,
		Timestamp:      ts,
	}
}

// Locator produces the current position of an agent's device
type Locator interface {
	Locate(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error)
}

// LocatorFunc adapts a function to Locator
type LocatorFunc func(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error)

// Locate calls f
func (f LocatorFunc) Locate(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error) {
	return f(ctx, agentID, accuracy)
}

// ReportedFix is a fix the mobile client captured and sent with its
// request, together with whatever device attestation it could gather.
// It also satisfies PlatformSignals so the validator uses the reported
// attestation instead of its default signals.
type ReportedFix struct {
	Fix       *Fix
	DevModeOn bool
	RootedOn  bool
}

// Locate returns the reported fix, or ErrUnavailable if the client sent none
func (r ReportedFix) Locate(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error) {
	if r.Fix == nil {
		return Fix{}, ErrUnavailable
	}
	return *r.Fix, nil
}

// DeveloperMode reports the client's attestation
func (r ReportedFix) DeveloperMode(ctx context.Context, agentID string) (bool, error) {
	return r.DevModeOn, nil
}

// Rooted reports the client's attestation
func (r ReportedFix) Rooted(ctx context.Context, agentID string) (bool, error) {
	return r.RootedOn, nil
}

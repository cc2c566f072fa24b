package gps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

type stubSignals struct {
	devMode, rooted bool
	err             error
}

func (s stubSignals) DeveloperMode(context.Context, string) (bool, error) { return s.devMode, s.err }
func (s stubSignals) Rooted(context.Context, string) (bool, error)        { return s.rooted, s.err }

func fixedLocator(fix Fix) Locator {
	return LocatorFunc(func(context.Context, string, Accuracy) (Fix, error) { return fix, nil })
}

func TestValidator_Scoring(t *testing.T) {
	tests := []struct {
		name        string
		fix         Fix
		signals     PlatformSignals
		wantScore   int
		wantValid   bool
		wantTrusted bool
		wantReasons int
	}{
		{
			name:        "clean fix",
			fix:         Fix{Lat: -17.3895, Lng: -66.1568, AccuracyMeters: ptr(8)},
			wantScore:   100,
			wantValid:   true,
			wantTrusted: true,
		},
		{
			name:        "accuracy exactly at limit",
			fix:         Fix{Lat: 1, Lng: 1, AccuracyMeters: ptr(100)},
			wantScore:   100,
			wantValid:   true,
			wantTrusted: true,
		},
		{
			name:        "low accuracy only",
			fix:         Fix{Lat: 1, Lng: 1, AccuracyMeters: ptr(500)},
			wantScore:   90,
			wantValid:   true,
			wantReasons: 1,
		},
		{
			name:        "mocked is never trusted",
			fix:         Fix{Lat: 1, Lng: 1, Mocked: true},
			wantScore:   60,
			wantValid:   true,
			wantReasons: 1,
		},
		{
			name:        "mocked with low accuracy",
			fix:         Fix{Lat: 1, Lng: 1, Mocked: true, AccuracyMeters: ptr(150)},
			wantScore:   50,
			wantReasons: 2,
		},
		{
			name:        "rooted device",
			fix:         Fix{Lat: 1, Lng: 1},
			signals:     stubSignals{rooted: true},
			wantScore:   50,
			wantReasons: 1,
		},
		{
			name:        "developer mode",
			fix:         Fix{Lat: 1, Lng: 1},
			signals:     stubSignals{devMode: true},
			wantScore:   80,
			wantValid:   true,
			wantTrusted: true,
			wantReasons: 1,
		},
		{
			name:        "everything wrong",
			fix:         Fix{Lat: 1, Lng: 1, Mocked: true, AccuracyMeters: ptr(1000)},
			signals:     stubSignals{devMode: true, rooted: true},
			wantScore:   -20,
			wantReasons: 4,
		},
		{
			name:        "signal errors fail open",
			fix:         Fix{Lat: 1, Lng: 1},
			signals:     stubSignals{devMode: true, rooted: true, err: errors.New("attestation down")},
			wantScore:   100,
			wantValid:   true,
			wantTrusted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.signals, time.Second, nil, nil)
			res := v.Validate(context.Background(), fixedLocator(tt.fix), "agent-1")

			assert.False(t, res.Unavailable)
			assert.Equal(t, tt.wantScore, res.TrustScore)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantTrusted, res.Trusted())
			assert.Len(t, res.Reasons, tt.wantReasons)
			require.NotNil(t, res.Fix)
			assert.Equal(t, tt.fix.Lat, res.Fix.Lat)
		})
	}
}

func TestValidator_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		loc    Locator
		reason string
	}{
		{
			name:   "no fix reported",
			loc:    ReportedFix{},
			reason: "enable location services",
		},
		{
			name: "permission denied",
			loc: LocatorFunc(func(context.Context, string, Accuracy) (Fix, error) {
				return Fix{}, ErrPermissionDenied
			}),
			reason: "permission denied",
		},
		{
			name: "locator ignores its context",
			loc: LocatorFunc(func(context.Context, string, Accuracy) (Fix, error) {
				time.Sleep(500 * time.Millisecond)
				return Fix{Lat: 1, Lng: 1}, nil
			}),
			reason: "timed out",
		},
		{
			name: "locator honours its context",
			loc: LocatorFunc(func(ctx context.Context, _ string, _ Accuracy) (Fix, error) {
				<-ctx.Done()
				return Fix{}, ctx.Err()
			}),
			reason: "timed out",
		},
		{
			name:   "nil locator",
			loc:    nil,
			reason: "enable location services",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(nil, 50*time.Millisecond, nil, nil)
			res := v.Validate(context.Background(), tt.loc, "agent-1")

			assert.True(t, res.Unavailable)
			assert.False(t, res.Valid)
			assert.False(t, res.Suspicious())
			assert.Equal(t, 0, res.TrustScore)
			require.Len(t, res.Reasons, 1)
			assert.Contains(t, res.Reasons[0], tt.reason)
			assert.Nil(t, res.Fix)
		})
	}
}

func TestValidator_ReportedSignalsOverrideDefault(t *testing.T) {
	v := NewValidator(stubSignals{rooted: true}, time.Second, nil, nil)

	res := v.Validate(context.Background(), ReportedFix{Fix: &Fix{Lat: 1, Lng: 1}, DevModeOn: true}, "agent-1")

	assert.True(t, res.DeveloperMode)
	assert.False(t, res.Rooted)
	assert.Equal(t, 80, res.TrustScore)
}

func TestResult_TamperDeduction(t *testing.T) {
	assert.Equal(t, 0, Result{}.TamperDeduction())
	assert.Equal(t, 40, Result{Mocked: true}.TamperDeduction())
	assert.Equal(t, 110, Result{Mocked: true, DeveloperMode: true, Rooted: true}.TamperDeduction())
}

func TestErrorsWrapUnavailable(t *testing.T) {
	assert.ErrorIs(t, ErrPermissionDenied, ErrUnavailable)
	assert.ErrorIs(t, ErrTimeout, ErrUnavailable)
}

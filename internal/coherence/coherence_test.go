package coherence

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/field-sales/visit-guard/internal/geo"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

var cochabamba = models.Position{Lat: -17.3895, Lng: -66.1568}

// north returns the point km kilometres due north of p
func north(p models.Position, km float64) models.Position {
	return models.Position{Lat: p.Lat + km/geo.EarthRadiusKm*180/math.Pi, Lng: p.Lng}
}

func TestGates(t *testing.T) {
	assert.False(t, IsImplausibleSpeed(120.0))
	assert.True(t, IsImplausibleSpeed(120.1))

	assert.True(t, IsTeleport(50.1, 4*time.Minute))
	assert.False(t, IsTeleport(50.0, 5*time.Minute))
	assert.False(t, IsTeleport(50.0, 4*time.Minute))
	assert.False(t, IsTeleport(80, 5*time.Minute))
}

func TestEvaluate(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		km        float64
		elapsed   time.Duration
		wantValid bool
		reason    string
	}{
		{name: "walking pace", km: 0.5, elapsed: 10 * time.Minute, wantValid: true},
		{name: "just under speed limit", km: 9.9, elapsed: 5 * time.Minute, wantValid: true},
		{name: "over speed limit", km: 10.1, elapsed: 5 * time.Minute, reason: "implausible speed"},
		{name: "teleport mid day", km: 80, elapsed: 2 * time.Minute, reason: "teleport"},
		{name: "teleport just over distance", km: 50.1, elapsed: 4 * time.Minute, reason: "teleport"},
		{name: "long jump outside window is speed", km: 50.5, elapsed: 5 * time.Minute, reason: "implausible speed"},
		{name: "same place no time", km: 0, elapsed: 0, wantValid: true},
		{name: "long drive", km: 300, elapsed: 4 * time.Hour, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(cochabamba, start, north(cochabamba, tt.km), start.Add(tt.elapsed))

			assert.Equal(t, tt.wantValid, res.Valid, res.Reason)
			assert.InDelta(t, tt.km, res.DistanceKm, 0.01)
			if tt.reason != "" {
				assert.Contains(t, res.Reason, tt.reason)
			}
			if tt.reason == "teleport" {
				assert.NotContains(t, res.Reason, "speed")
			}
		})
	}
}

func TestEvaluate_NoElapsedTimeHasNoSpeed(t *testing.T) {
	now := time.Now()
	res := Evaluate(cochabamba, now, north(cochabamba, 1), now)

	assert.True(t, res.Valid)
	assert.Nil(t, res.SpeedKmh)
}

type fakeHistory struct {
	sample models.LocationSample
	err    error
}

func (f fakeHistory) LatestSample(context.Context, string) (models.LocationSample, error) {
	return f.sample, f.err
}

func TestChecker_Check(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	t.Run("first sample is valid", func(t *testing.T) {
		c := NewChecker(fakeHistory{err: store.ErrNotFound}, nil, clock)
		assert.True(t, c.Check(context.Background(), "agent-1", cochabamba).Valid)
	})

	t.Run("read error fails open", func(t *testing.T) {
		c := NewChecker(fakeHistory{err: errors.New("connection reset")}, nil, clock)
		assert.True(t, c.Check(context.Background(), "agent-1", cochabamba).Valid)
	})

	t.Run("teleport against stored sample", func(t *testing.T) {
		c := NewChecker(fakeHistory{sample: models.LocationSample{
			AgentID:   "agent-1",
			Position:  cochabamba,
			Timestamp: now.Add(-2 * time.Minute),
		}}, nil, clock)

		res := c.Check(context.Background(), "agent-1", north(cochabamba, 80))
		assert.False(t, res.Valid)
		assert.Contains(t, res.Reason, "teleport")
	})

	t.Run("uses the newest sample from the memory store", func(t *testing.T) {
		mem := store.NewMemory()
		ctx := context.Background()
		require.NoError(t, mem.AppendSample(ctx, models.LocationSample{
			AgentID: "agent-1", Position: north(cochabamba, 200), Timestamp: now.Add(-3 * time.Hour),
		}))
		require.NoError(t, mem.AppendSample(ctx, models.LocationSample{
			AgentID: "agent-1", Position: cochabamba, Timestamp: now.Add(-10 * time.Minute),
		}))

		c := NewChecker(mem, nil, clock)
		res := c.Check(ctx, "agent-1", north(cochabamba, 1))
		assert.True(t, res.Valid)
		require.NotNil(t, res.SpeedKmh)
		assert.InDelta(t, 6.0, *res.SpeedKmh, 0.1)
	})
}

package gps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPenalizer struct {
	amounts []int
	reasons []string
	score   int
	err     error
}

func (r *recordingPenalizer) ApplyPenalty(_ context.Context, _ string, amount int, reason string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.amounts = append(r.amounts, amount)
	r.reasons = append(r.reasons, reason)
	r.score -= amount
	return r.score, nil
}

func TestPenalizingCheck_Run(t *testing.T) {
	t.Run("mocked fix costs the tamper deduction", func(t *testing.T) {
		p := &recordingPenalizer{score: 100}
		check := NewPenalizingCheck(NewValidator(stubSignals{devMode: true}, time.Second, nil, nil), p, nil)

		out, err := check.Run(context.Background(), fixedLocator(Fix{Lat: 1, Lng: 1, Mocked: true, AccuracyMeters: ptr(300)}), "agent-1")
		require.NoError(t, err)

		assert.Equal(t, []int{60}, p.amounts)
		assert.Equal(t, 60, out.Penalty)
		require.NotNil(t, out.AgentScore)
		assert.Equal(t, 40, *out.AgentScore)
		assert.Contains(t, p.reasons[0], ReasonMocked)
		assert.Contains(t, p.reasons[0], ReasonDeveloperMode)
		assert.NotContains(t, p.reasons[0], "accuracy")
	})

	t.Run("low accuracy alone is free", func(t *testing.T) {
		p := &recordingPenalizer{score: 100}
		check := NewPenalizingCheck(NewValidator(nil, time.Second, nil, nil), p, nil)

		out, err := check.Run(context.Background(), fixedLocator(Fix{Lat: 1, Lng: 1, AccuracyMeters: ptr(900)}), "agent-1")
		require.NoError(t, err)
		assert.Empty(t, p.amounts)
		assert.Nil(t, out.AgentScore)
	})

	t.Run("unavailable is free", func(t *testing.T) {
		p := &recordingPenalizer{score: 100}
		check := NewPenalizingCheck(NewValidator(nil, time.Second, nil, nil), p, nil)

		out, err := check.Run(context.Background(), ReportedFix{}, "agent-1")
		require.NoError(t, err)
		assert.True(t, out.Unavailable)
		assert.Empty(t, p.amounts)
	})

	t.Run("penalty write failure surfaces with the verdict", func(t *testing.T) {
		p := &recordingPenalizer{err: errors.New("db down")}
		check := NewPenalizingCheck(NewValidator(nil, time.Second, nil, nil), p, nil)

		out, err := check.Run(context.Background(), fixedLocator(Fix{Lat: 1, Lng: 1, Mocked: true}), "agent-1")
		assert.Error(t, err)
		assert.True(t, out.Mocked)
	})
}

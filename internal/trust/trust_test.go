package trust

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

func TestStore_ScoreDefaults(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := NewStore(mem, nil, nil)

	t.Run("unknown agent gets default", func(t *testing.T) {
		assert.Equal(t, 100, s.Score(ctx, "agent-1"))
	})

	t.Run("backend error fails open", func(t *testing.T) {
		mem.SetTrustScore("agent-2", 10)
		mem.FailNext("TrustScore", errors.New("connection reset"))
		assert.Equal(t, 100, s.Score(ctx, "agent-2"))
		assert.Equal(t, 10, s.Score(ctx, "agent-2"))
	})
}

func TestStore_ApplyPenalty(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := NewStore(mem, nil, nil)

	score, err := s.ApplyPenalty(ctx, "agent-1", 20, "forced close with invalid GPS")
	require.NoError(t, err)
	assert.Equal(t, 80, score)
	assert.Equal(t, 80, s.Score(ctx, "agent-1"))

	events := mem.Events("agent-1")
	require.Len(t, events, 1)
	assert.Equal(t, models.LocationEventAnomaly, events[0].EventType)
	assert.Equal(t, "forced close with invalid GPS (trust 100 -> 80)", events[0].Reason)

	t.Run("write errors propagate", func(t *testing.T) {
		mem.FailNext("DeductTrust", errors.New("deadlock detected"))
		_, err := s.ApplyPenalty(ctx, "agent-1", 20, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply trust penalty")
		assert.Equal(t, 80, s.Score(ctx, "agent-1"))
	})

	t.Run("negative amounts cannot raise the score", func(t *testing.T) {
		_, err := s.ApplyPenalty(ctx, "agent-1", -50, "bonus")
		assert.ErrorIs(t, err, store.ErrInvalidPenalty)
		assert.Equal(t, 80, s.Score(ctx, "agent-1"))
	})
}

func TestStore_ScoreBoundsUnderPenaltySequences(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		s := NewStore(store.NewMemory(), nil, nil)
		prev := s.Score(ctx, "agent")
		for i := 0; i < 20; i++ {
			score, err := s.ApplyPenalty(ctx, "agent", rng.Intn(60), "sequence")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
			assert.LessOrEqual(t, score, prev)
			prev = score
		}
	}
}

func TestStatus_BlockThreshold(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	s := NewStore(mem, nil, nil)

	tests := []struct {
		score   int
		blocked bool
	}{
		{100, false},
		{61, false},
		{60, false},
		{59, true},
		{0, true},
	}
	for _, tt := range tests {
		mem.SetTrustScore("agent", tt.score)
		st := s.Status(ctx, "agent")
		assert.Equal(t, tt.blocked, st.Blocked, "score %d", tt.score)
		assert.Equal(t, tt.score, st.Score)
		if tt.blocked {
			assert.Contains(t, st.Message, "blocked")
		} else {
			assert.Empty(t, st.Message)
		}
	}
}

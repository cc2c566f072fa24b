package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePreferences(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "device", "prefs.db")

	prefs, err := NewSQLitePreferences(path)
	require.NoError(t, err)

	t.Run("unknown agent is disabled", func(t *testing.T) {
		enabled, err := prefs.TrackingEnabled(ctx, "agent-1")
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("set and overwrite", func(t *testing.T) {
		require.NoError(t, prefs.SetTrackingEnabled(ctx, "agent-1", true))
		require.NoError(t, prefs.SetTrackingEnabled(ctx, "agent-2", true))
		require.NoError(t, prefs.SetTrackingEnabled(ctx, "agent-3", false))

		enabled, err := prefs.TrackingEnabled(ctx, "agent-1")
		require.NoError(t, err)
		assert.True(t, enabled)

		agents, err := prefs.TrackingAgents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"agent-1", "agent-2"}, agents)

		require.NoError(t, prefs.SetTrackingEnabled(ctx, "agent-2", false))
		agents, err = prefs.TrackingAgents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"agent-1"}, agents)
	})

	t.Run("flag survives reopen", func(t *testing.T) {
		require.NoError(t, prefs.Close())

		reopened, err := NewSQLitePreferences(path)
		require.NoError(t, err)
		defer reopened.Close()

		enabled, err := reopened.TrackingEnabled(ctx, "agent-1")
		require.NoError(t, err)
		assert.True(t, enabled)
	})
}

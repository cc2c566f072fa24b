package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
	"github.com/bizmatters/field-sales/visit-guard/internal/config"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
)

// testEnv isolates config lookup, output and storage.
func testEnv(t *testing.T) (*bytes.Buffer, *store.Memory) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "cli-secret")
	color.NoColor = true

	buf := &bytes.Buffer{}
	origOut := out
	out = buf
	t.Cleanup(func() { out = origOut })

	mem := store.NewMemory()
	origOpen := openBackend
	openBackend = func(context.Context, *config.Config) (trustBackend, func(), error) {
		return mem, nil, nil
	}
	t.Cleanup(func() { openBackend = origOpen })

	configFile = ""
	trustBlockedOnly = false
	return buf, mem
}

func TestTrustShow(t *testing.T) {
	buf, mem := testEnv(t)
	mem.SetTrustScore("agent-9", 40)

	require.NoError(t, trustShowRun(context.Background(), "agent-9"))

	s := buf.String()
	assert.Contains(t, s, "agent-9")
	assert.Contains(t, s, "40")
	assert.Contains(t, s, "blocked")
}

func TestTrustShow_DefaultScore(t *testing.T) {
	buf, _ := testEnv(t)

	require.NoError(t, trustShowRun(context.Background(), "new-agent"))

	assert.Contains(t, buf.String(), "100")
	assert.Contains(t, buf.String(), "active")
}

func TestTrustList(t *testing.T) {
	buf, mem := testEnv(t)
	mem.SetTrustScore("agent-a", 90)
	mem.SetTrustScore("agent-b", 20)

	require.NoError(t, trustListRun(context.Background()))

	s := buf.String()
	require.Contains(t, s, "agent-a")
	require.Contains(t, s, "agent-b")
	assert.Less(t, strings.Index(s, "agent-b"), strings.Index(s, "agent-a"), "lowest score first")
}

func TestTrustList_BlockedOnly(t *testing.T) {
	buf, mem := testEnv(t)
	mem.SetTrustScore("agent-a", 90)
	mem.SetTrustScore("agent-b", 20)
	trustBlockedOnly = true

	require.NoError(t, trustListRun(context.Background()))

	assert.Contains(t, buf.String(), "agent-b")
	assert.NotContains(t, buf.String(), "agent-a")
}

func TestTrustList_Empty(t *testing.T) {
	buf, _ := testEnv(t)

	require.NoError(t, trustListRun(context.Background()))

	assert.Contains(t, buf.String(), "No agents found")
}

func TestToken(t *testing.T) {
	buf, _ := testEnv(t)
	tokenRoles = []string{auth.RoleSupervisor}
	tokenTTL = time.Hour
	t.Cleanup(func() { tokenRoles = nil })

	require.NoError(t, tokenRun(context.Background(), "sup-1"))

	jm, err := auth.NewJWTManager("cli-secret")
	require.NoError(t, err)
	claims, err := jm.ValidateToken(context.Background(), strings.TrimSpace(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, "sup-1", claims.Agent())
	assert.True(t, claims.HasRole(auth.RoleSupervisor))
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	buf, _ := testEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:hunter2@db:5432/visits")

	require.NoError(t, configShowRun())

	s := buf.String()
	assert.Contains(t, s, "Config file: (none)")
	assert.Contains(t, s, "tracking.interval")
	assert.Contains(t, s, "(env DATABASE_URL)")
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "cli-secret")
}

func TestScoreColor(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "59", scoreColor(59))
	assert.Equal(t, "100", scoreColor(100))
}

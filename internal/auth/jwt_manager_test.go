package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager_RequiresSecret(t *testing.T) {
	_, err := NewJWTManager("")
	assert.Error(t, err)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)
	ctx := context.Background()

	token, err := jm.GenerateToken(ctx, "agent-1", []string{RoleSupervisor}, time.Hour)
	require.NoError(t, err)

	claims, err := jm.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.Agent())
	assert.True(t, claims.HasRole(RoleSupervisor))
	assert.False(t, claims.HasRole("admin"))
}

func TestJWTManager_Rejects(t *testing.T) {
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)
	other, err := NewJWTManager("other-secret")
	require.NoError(t, err)
	ctx := context.Background()

	expired, err := jm.GenerateToken(ctx, "agent-1", nil, -time.Minute)
	require.NoError(t, err)
	foreign, err := other.GenerateToken(ctx, "agent-1", nil, time.Hour)
	require.NoError(t, err)
	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{AgentID: "agent-1"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"no identity":  anonymous,
		"wrong alg":    wrongAlg,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := jm.ValidateToken(ctx, token)
			assert.Error(t, err)
		})
	}
}

func TestClaims_AgentFallsBackToSubject(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-9"}}
	assert.Equal(t, "agent-9", c.Agent())
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

func newRouter(t *testing.T) (*gin.Engine, *JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jm, err := NewJWTManager("test-secret")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireAuth(jm, nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"agent_id": AgentID(c)})
	})
	r.GET("/live", RequireAuth(jm, nil), RequireRole(RoleSupervisor, nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, jm
}

func TestRequireAuth(t *testing.T) {
	r, jm := newRouter(t)
	token, err := jm.GenerateToken(context.Background(), "agent-1", nil, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		url        string
		header     string
		wantStatus int
	}{
		{name: "bearer header", url: "/me", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "query token", url: "/me?token=" + token, wantStatus: http.StatusOK},
		{name: "missing", url: "/me", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", url: "/me", header: "Basic " + token, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", url: "/me", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "agent-1", body["agent_id"])
			} else {
				var body models.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, models.ErrCodeUnauthorized, body.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r, jm := newRouter(t)
	ctx := context.Background()
	agentToken, err := jm.GenerateToken(ctx, "agent-1", []string{"agent"}, time.Hour)
	require.NoError(t, err)
	supervisorToken, err := jm.GenerateToken(ctx, "sup-1", []string{RoleSupervisor}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Authorization", "Bearer "+agentToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("Authorization", "Bearer "+supervisorToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

package gps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBridgeClient(t *testing.T) {
	client := NewBridgeClient("http://bridge:8080", 0, nil)

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.tracer)
	assert.NotNil(t, client.breaker)
	assert.Equal(t, DefaultLocateTimeout, client.httpClient.Timeout)
}

func TestBridgeClient_Locate(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedError  error
		errorContains  string
	}{
		{
			name: "successful_fix",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "GET", r.Method)
				assert.Equal(t, "/devices/agent-1/position", r.URL.Path)
				assert.Equal(t, "balanced", r.URL.Query().Get("accuracy"))

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"lat": -17.3895, "lng": -66.1568, "accuracy": 12.5, "mocked": true,
				})
			},
		},
		{
			name: "permission_denied",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			expectedError: ErrPermissionDenied,
		},
		{
			name: "device_offline",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			expectedError: ErrUnavailable,
		},
		{
			name: "server_error",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal server error"))
			},
			errorContains: "device bridge returned status 500",
		},
		{
			name: "invalid_json_response",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("invalid json"))
			},
			errorContains: "failed to decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := NewBridgeClient(server.URL, time.Second, nil)
			fix, err := client.Locate(context.Background(), "agent-1", AccuracyBalanced)

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.errorContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			default:
				require.NoError(t, err)
				assert.Equal(t, -17.3895, fix.Lat)
				assert.Equal(t, -66.1568, fix.Lng)
				require.NotNil(t, fix.AccuracyMeters)
				assert.Equal(t, 12.5, *fix.AccuracyMeters)
				assert.True(t, fix.Mocked)
			}
		})
	}
}

func TestBridgeClient_CircuitOpensOnFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewBridgeClient(server.URL, time.Second, nil)
	for i := 0; i < 6; i++ {
		_, err := client.Locate(context.Background(), "agent-1", AccuracyHigh)
		require.Error(t, err)
	}

	_, err := client.Locate(context.Background(), "agent-1", AccuracyHigh)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 6, calls)
	assert.False(t, client.IsHealthy(context.Background()))
}

func TestBridgeClient_UnavailableDoesNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewBridgeClient(server.URL, time.Second, nil)
	for i := 0; i < 10; i++ {
		_, err := client.Locate(context.Background(), "agent-1", AccuracyHigh)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	}
	assert.True(t, client.IsHealthy(context.Background()))
}

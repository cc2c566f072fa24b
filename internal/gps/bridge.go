package gps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// BridgeClient locates devices through the device telemetry bridge, the
// service that relays positions from the mobile app to the backend.
type BridgeClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// bridgePosition is the bridge's wire format
type bridgePosition struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  *float64  `json:"accuracy"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Mocked    bool      `json:"mocked"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBridgeClient creates a bridge client
func NewBridgeClient(baseURL string, timeout time.Duration, logger *slog.Logger) *BridgeClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}

	settings := gobreaker.Settings{
		Name:        "device-bridge",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a device that is off or without permission is an answer, not a bridge failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BridgeClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("device-bridge-client"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Locate fetches the device's current position
func (c *BridgeClient) Locate(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error) {
	ctx, span := c.tracer.Start(ctx, "device_bridge.locate")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.String("gps.accuracy_tier", string(accuracy)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.locateInternal(ctx, agentID, accuracy)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Fix{}, fmt.Errorf("%w: device bridge circuit open", ErrUnavailable)
		}
		return Fix{}, fmt.Errorf("failed to locate device: %w", err)
	}
	return result.(Fix), nil
}

func (c *BridgeClient) locateInternal(ctx context.Context, agentID string, accuracy Accuracy) (Fix, error) {
	endpoint := fmt.Sprintf("%s/devices/%s/position?accuracy=%s",
		c.baseURL, url.PathEscape(agentID), url.QueryEscape(string(accuracy)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Fix{}, fmt.Errorf("failed to create request: %w", err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Fix{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return Fix{}, ErrPermissionDenied
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return Fix{}, ErrUnavailable
	default:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Fix{}, fmt.Errorf("device bridge returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return Fix{}, fmt.Errorf("device bridge returned status %d: %s", resp.StatusCode, string(body))
	}

	var pos bridgePosition
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return Fix{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return Fix{
		Lat:            pos.Lat,
		Lng:            pos.Lng,
		AccuracyMeters: pos.Accuracy,
		Speed:          pos.Speed,
		Heading:        pos.Heading,
		Mocked:         pos.Mocked,
		Timestamp:      pos.Timestamp,
	}, nil
}

// IsHealthy reports whether the bridge answers its health endpoint
func (c *BridgeClient) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "device_bridge.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		span.RecordError(err)
		return false
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))
	return healthy
}

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
	"github.com/bizmatters/field-sales/visit-guard/internal/checks"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/realtime"
)

var wsTracer = otel.Tracer("live-feed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the supervisor dashboard origin once it has a fixed host
		return true
	},
}

// LivePositions lists the agents currently visible on live views
type LivePositions interface {
	LivePositions(ctx context.Context) ([]models.LivePosition, error)
}

// LiveFeed serves the supervisor live map over WebSocket
type LiveFeed struct {
	hub    *realtime.Hub
	source LivePositions
	tracer trace.Tracer
	logger *slog.Logger
}

// NewLiveFeed creates a new live position feed
func NewLiveFeed(hub *realtime.Hub, source LivePositions, logger *slog.Logger) *LiveFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveFeed{
		hub:    hub,
		source: source,
		tracer: wsTracer,
		logger: logger.With("component", "live-feed"),
	}
}

// Stream handles WebSocket /api/ws/live
// @Summary Stream live agent positions
// @Description Sends a snapshot of visible agents, then one frame per position change. Hidden agents are announced with a "hidden" frame.
// @Tags live
// @Param token query string false "JWT, for clients that cannot set headers on upgrade"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/live [get]
func (f *LiveFeed) Stream(c *gin.Context) {
	ctx, span := f.tracer.Start(c.Request.Context(), "live_feed.stream")
	defer span.End()

	watcherID := auth.AgentID(c)
	span.SetAttributes(attribute.String("user.id", watcherID))

	snapshot := checks.Soft[[]models.LivePosition](ctx, f.logger, "live snapshot", nil, f.source.LivePositions)
	span.SetAttributes(attribute.Int("snapshot.size", len(snapshot)))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		f.logger.WarnContext(ctx, "failed to upgrade connection", "watcher", watcherID, "error", err)
		return
	}
	defer conn.Close()

	f.logger.InfoContext(ctx, "live feed connected", "watcher", watcherID, "snapshot", len(snapshot))
	err = f.hub.Serve(ctx, conn, snapshot)
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "live feed closed with error")
		f.logger.WarnContext(ctx, "live feed closed", "watcher", watcherID, "error", err)
		return
	}
	f.logger.InfoContext(ctx, "live feed disconnected", "watcher", watcherID)
}

package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
	"github.com/bizmatters/field-sales/visit-guard/internal/gps"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/tracking"
	"github.com/bizmatters/field-sales/visit-guard/internal/trust"
	"github.com/bizmatters/field-sales/visit-guard/internal/visits"
)

// Handler handles HTTP requests for the agent facing API
type Handler struct {
	trust    *trust.Store
	gpsCheck *gps.PenalizingCheck
	visits   *visits.Controller
	tracking *tracking.Service
	logger   *slog.Logger
}

// NewHandler creates a new gateway handler
func NewHandler(ts *trust.Store, check *gps.PenalizingCheck, vc *visits.Controller, tr *tracking.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		trust:    ts,
		gpsCheck: check,
		visits:   vc,
		tracking: tr,
		logger:   logger.With("component", "gateway"),
	}
}

// FixRequest is a position captured by the mobile app. Omitting lat/lng
// means the device could not produce a fix.
type FixRequest struct {
	Lat           *float64   `json:"lat"`
	Lng           *float64   `json:"lng"`
	Accuracy      *float64   `json:"accuracy"`
	Speed         *float64   `json:"speed"`
	Heading       *float64   `json:"heading"`
	Mocked        bool       `json:"mocked"`
	Timestamp     *time.Time `json:"timestamp"`
	DeveloperMode bool       `json:"developer_mode"`
	Rooted        bool       `json:"rooted"`
}

// Locator turns the request into a position source
func (r *FixRequest) Locator() gps.ReportedFix {
	if r == nil || r.Lat == nil || r.Lng == nil {
		return gps.ReportedFix{}
	}
	fix := &gps.Fix{
		Lat:            *r.Lat,
		Lng:            *r.Lng,
		AccuracyMeters: r.Accuracy,
		Speed:          r.Speed,
		Heading:        r.Heading,
		Mocked:         r.Mocked,
	}
	if r.Timestamp != nil {
		fix.Timestamp = *r.Timestamp
	}
	return gps.ReportedFix{Fix: fix, DevModeOn: r.DeveloperMode, RootedOn: r.Rooted}
}

// GPSCheckRequest represents a standalone GPS validation request
type GPSCheckRequest struct {
	Position *FixRequest `json:"position"`
}

// StartVisitRequest represents a visit start request
type StartVisitRequest struct {
	ClientID string      `json:"client_id" binding:"required"`
	Position *FixRequest `json:"position"`
}

// EndVisitRequest represents a visit close request
type EndVisitRequest struct {
	Outcome  string      `json:"outcome" binding:"required"`
	Notes    string      `json:"notes"`
	Force    bool        `json:"force"`
	Position *FixRequest `json:"position"`
}

// ActiveVisitResponse represents the agent's open visit, if any
type ActiveVisitResponse struct {
	Visiting bool                `json:"visiting"`
	Visit    *visits.ActiveVisit `json:"visit,omitempty"`
}

// EnableTrackingRequest carries the fix taken when the agent turns tracking on
type EnableTrackingRequest struct {
	Position *FixRequest `json:"position"`
}

// DisableTrackingRequest represents a tracking disable request
type DisableTrackingRequest struct {
	Reason string `json:"reason"`
}

// TrackingResponse represents the agent's tracking state
type TrackingResponse struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`
}

// GetTrust godoc
// @Summary Get trust status
// @Description Return the caller's trust score and whether it is blocked
// @Tags trust
// @Produce json
// @Success 200 {object} trust.Status
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /trust [get]
func (h *Handler) GetTrust(c *gin.Context) {
	c.JSON(http.StatusOK, h.trust.Status(c.Request.Context(), auth.AgentID(c)))
}

// CheckGPS godoc
// @Summary Validate a GPS fix
// @Description Score a reported fix and debit trust for mock, developer mode or root signals
// @Tags gps
// @Accept json
// @Produce json
// @Param request body GPSCheckRequest true "Reported fix"
// @Success 200 {object} gps.CheckOutcome
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /gps/check [post]
func (h *Handler) CheckGPS(c *gin.Context) {
	var req GPSCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	out, err := h.gpsCheck.Run(c.Request.Context(), req.Position.Locator(), auth.AgentID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetActiveVisit godoc
// @Summary Recover the active visit
// @Description Return the caller's open visit so the app can resume it after a restart
// @Tags visits
// @Produce json
// @Success 200 {object} ActiveVisitResponse
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /visits/active [get]
func (h *Handler) GetActiveVisit(c *gin.Context) {
	av, found, err := h.visits.RecoverActiveVisit(c.Request.Context(), auth.AgentID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := ActiveVisitResponse{Visiting: found}
	if found {
		resp.Visit = &av
	}
	c.JSON(http.StatusOK, resp)
}

// StartVisit godoc
// @Summary Start a visit
// @Description Open a visit at a client after the block gate, GPS validation and coherence check
// @Tags visits
// @Accept json
// @Produce json
// @Param request body StartVisitRequest true "Client and check-in fix"
// @Success 201 {object} visits.ActiveVisit
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /visits [post]
func (h *Handler) StartVisit(c *gin.Context) {
	var req StartVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	av, err := h.visits.StartVisit(c.Request.Context(), auth.AgentID(c), req.ClientID, req.Position.Locator())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, av)
}

// EndVisit godoc
// @Summary End the active visit
// @Description Close the open visit. With force=true an invalid fix is accepted at a trust cost.
// @Tags visits
// @Accept json
// @Produce json
// @Param request body EndVisitRequest true "Outcome and check-out fix"
// @Success 200 {object} models.Visit
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /visits/active/end [post]
func (h *Handler) EndVisit(c *gin.Context) {
	var req EndVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	visit, err := h.visits.EndVisit(c.Request.Context(), visits.EndRequest{
		AgentID: auth.AgentID(c),
		Outcome: models.VisitOutcome(req.Outcome),
		Notes:   req.Notes,
		Locator: req.Position.Locator(),
		Force:   req.Force,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visit)
}

// GetTracking godoc
// @Summary Get tracking state
// @Tags tracking
// @Produce json
// @Success 200 {object} TrackingResponse
// @Security BearerAuth
// @Router /tracking [get]
func (h *Handler) GetTracking(c *gin.Context) {
	agentID := auth.AgentID(c)
	c.JSON(http.StatusOK, TrackingResponse{
		Enabled: h.tracking.IsEnabled(c.Request.Context(), agentID),
		Running: h.tracking.Running(agentID),
	})
}

// EnableTracking godoc
// @Summary Enable background tracking
// @Description Requires a fix; without one the agent must grant location permission first
// @Tags tracking
// @Accept json
// @Produce json
// @Param request body EnableTrackingRequest false "Current fix"
// @Success 200 {object} TrackingResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /tracking/enable [post]
func (h *Handler) EnableTracking(c *gin.Context) {
	var req EnableTrackingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	var loc gps.Locator
	if req.Position != nil {
		loc = req.Position.Locator()
	}
	agentID := auth.AgentID(c)
	if err := h.tracking.Enable(c.Request.Context(), agentID, loc); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TrackingResponse{Enabled: true, Running: h.tracking.Running(agentID)})
}

// DisableTracking godoc
// @Summary Disable background tracking
// @Tags tracking
// @Accept json
// @Produce json
// @Param request body DisableTrackingRequest false "Reason"
// @Success 200 {object} TrackingResponse
// @Security BearerAuth
// @Router /tracking/disable [post]
func (h *Handler) DisableTracking(c *gin.Context) {
	var req DisableTrackingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "disabled by agent"
	}

	if err := h.tracking.Disable(c.Request.Context(), auth.AgentID(c), req.Reason); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TrackingResponse{})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "Invalid request",
		Code:    models.ErrCodeInvalidRequest,
		Details: map[string]string{"validation": err.Error()},
	})
}

// respondError maps domain errors to responses that let the app tell a
// settings problem from an escalation from a plain retry.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		blocked *visits.BlockedError
		gpsErr  *visits.GPSError
	)
	switch {
	case errors.As(err, &blocked):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   blocked.Message,
			Code:    models.ErrCodeAgentBlocked,
			Details: map[string]string{"trust_score": strconv.Itoa(blocked.Score)},
		})
	case errors.As(err, &gpsErr):
		code := models.ErrCodeGPSSuspicious
		if gpsErr.Unavailable {
			code = models.ErrCodeGPSUnavailable
		}
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error: gpsErr.Error(),
			Code:  code,
			Details: map[string]string{
				"reasons":   strings.Join(gpsErr.Reasons, "; "),
				"can_force": strconv.FormatBool(gpsErr.CanForce),
			},
		})
	case errors.Is(err, visits.ErrAlreadyVisiting):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeVisitActive})
	case errors.Is(err, visits.ErrNoActiveVisit):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeNoActiveVisit})
	case errors.Is(err, visits.ErrInvalidOutcome):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Code: models.ErrCodeInvalidOutcome})
	case errors.Is(err, tracking.ErrPermissionRequired):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error: "Location permission is required to enable tracking",
			Code:  models.ErrCodePermissionMissing,
		})
	default:
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(), "agent_id", auth.AgentID(c), "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Something went wrong, please try again",
			Code:  models.ErrCodeInternalError,
		})
	}
}

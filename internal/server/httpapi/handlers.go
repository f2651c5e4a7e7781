package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/grant"
	"github.com/tixgate/tixgate/internal/manifest"
	"github.com/tixgate/tixgate/internal/model"
	"github.com/tixgate/tixgate/internal/service"
)

type handlers struct {
	auth      service.AuthService
	manifests *manifest.Builder
	checkins  service.CheckInService
	validator service.ValidateService
	stats     service.StatsService
	scope     *grant.Resolver
}

// writeError maps service errors to HTTP once, at the boundary. Denial bodies
// are deliberately generic: they must not reveal which events or grants exist.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, errs.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "denied"})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

func mustScanContext(c *gin.Context) (model.ScanContext, bool) {
	sc, ok := ScanContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return sc, ok
}

func eventParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad event id"})
		return uuid.Nil, false
	}
	return id, true
}

// POST /auth/token
func (h *handlers) postToken(c *gin.Context) {
	var req struct {
		DeviceID  string `json:"device_id" binding:"required"`
		DeviceKey string `json:"device_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	tok, err := h.auth.TokenForDevice(c.Request.Context(), req.DeviceID, req.DeviceKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok.AccessToken, "expires_at": tok.ExpiresAt})
}

// GET /events/:id/manifest
func (h *handlers) getManifest(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	m, err := h.manifests.Build(c.Request.Context(), sc, eventID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": eventID, "manifest": m})
}

// GET /events/:id/check-in-stats
func (h *handlers) getStats(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	st, err := h.stats.Stats(c.Request.Context(), sc, eventID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": eventID, "stats": st})
}

// GET /organizers/:id/scan-scope
func (h *handlers) getScanScope(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	organizerID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad organizer id"})
		return
	}
	scope, err := h.scope.ResolveOrganizerScope(c.Request.Context(), sc.ActorID, organizerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !scope.Allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "denied"})
		return
	}
	ids := scope.EventIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, gin.H{"all_events": scope.AllEvents, "event_ids": ids})
}

// POST /scanner/validate
func (h *handlers) postValidate(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	var req struct {
		EventID uuid.UUID `json:"event_id" binding:"required"`
		Code    string    `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	st, err := h.validator.Validate(c.Request.Context(), sc, req.EventID, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

// POST /scanner/batch-validate
func (h *handlers) postBatchValidate(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	var req struct {
		EventID uuid.UUID `json:"event_id" binding:"required"`
		Codes   []string  `json:"codes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	results, err := h.validator.BatchValidate(c.Request.Context(), sc, req.EventID, req.Codes)
	if err != nil {
		if errors.Is(err, errs.ErrPermissionDenied) || errors.Is(err, errs.ErrNotFound) {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type checkInRequest struct {
	TicketID         uuid.UUID    `json:"ticket_id"`
	EventID          uuid.UUID    `json:"event_id"`
	Code             string       `json:"code"`
	Origin           model.Origin `json:"origin"`
	OfflineTimestamp *time.Time   `json:"offline_timestamp"`
}

type recordView struct {
	ID         uuid.UUID    `json:"id"`
	TicketID   uuid.UUID    `json:"ticket_id"`
	EventID    uuid.UUID    `json:"event_id"`
	ActorID    uuid.UUID    `json:"actor_id"`
	DeviceID   string       `json:"device_id"`
	ObservedAt time.Time    `json:"observed_at"`
	Origin     model.Origin `json:"origin"`
	CreatedAt  time.Time    `json:"created_at"`
}

func viewOf(r *model.CheckInRecord) *recordView {
	if r == nil {
		return nil
	}
	return &recordView{
		ID: r.ID, TicketID: r.TicketID, EventID: r.EventID, ActorID: r.ActorID,
		DeviceID: r.DeviceID, ObservedAt: r.ObservedAt, Origin: r.Origin, CreatedAt: r.CreatedAt,
	}
}

// POST /scanner/check-in
//
// Safe to retry: replaying the same ticket yields a duplicate outcome, never
// a second admission.
func (h *handlers) postCheckIn(c *gin.Context) {
	sc, ok := mustScanContext(c)
	if !ok {
		return
	}
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	var observed time.Time
	if req.OfflineTimestamp != nil {
		observed = *req.OfflineTimestamp
	}

	var (
		dec model.CheckInDecision
		err error
	)
	switch {
	case req.TicketID != uuid.Nil:
		dec, err = h.checkins.CheckIn(c.Request.Context(), sc, req.TicketID, observed, req.Origin)
	case req.EventID != uuid.Nil && req.Code != "":
		dec, err = h.checkins.CheckInByCode(c.Request.Context(), sc, req.EventID, req.Code, observed, req.Origin)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket_id or event_id+code required"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          dec.Outcome != model.OutcomeRejected,
		"outcome":          dec.Outcome,
		"duplicate":        dec.Outcome == model.OutcomeDuplicate,
		"canonical_record": viewOf(dec.Canonical),
	})
}

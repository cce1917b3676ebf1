package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"safety-service/internal/engine"
	"safety-service/internal/logging"
	"safety-service/internal/models"
	"safety-service/internal/notification"
)

// Store is the persistence the handlers use directly. Alert creation and
// lifecycle changes go through the engine.
type Store interface {
	SubjectByActor(ctx context.Context, actorID string) (models.Subject, error)
	LookupSubject(ctx context.Context, code string) (models.Subject, error)
	CreateSubject(ctx context.Context, s *models.Subject) error
	UpdateSubject(ctx context.Context, s *models.Subject) error
	ListZones(ctx context.Context, f models.ZoneFilter) ([]models.RiskZone, error)
	ActiveZones(ctx context.Context) ([]models.RiskZone, error)
	CreateZone(ctx context.Context, z *models.RiskZone) error
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error)
	DispatchesForAlert(ctx context.Context, alertID int64) ([]models.Dispatch, error)
}

type Handler struct {
	store    Store
	engine   *engine.Engine
	hub      *notification.Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(store Store, eng *engine.Engine, hub *notification.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		store:    store,
		engine:   eng,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UpsertProfile creates the caller's profile or updates the active one.
func (h *Handler) UpsertProfile(c *gin.Context) {
	var in models.SubjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for tourist profile: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	ctx := c.Request.Context()
	actor := actorID(c)

	profile, err := h.store.SubjectByActor(ctx, actor)
	switch {
	case errors.Is(err, models.ErrNotFound):
		profile = models.Subject{ActorID: actor, IsActive: true}
		in.Apply(&profile)
		err = h.store.CreateSubject(ctx, &profile)
	case err == nil:
		in.Apply(&profile)
		err = h.store.UpdateSubject(ctx, &profile)
	}
	if err != nil {
		h.logger.Errorf("Failed to save tourist profile for %s: %v", actor, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save tourist profile"})
		return
	}

	h.logger.Infof("Saved tourist profile %s for %s", profile.Code, actor)
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) GetMyProfile(c *gin.Context) {
	profile, ok := h.myProfile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) GetMySafetyScore(c *gin.Context) {
	profile, ok := h.myProfile(c)
	if !ok {
		return
	}
	score, err := h.engine.ComputeScore(c.Request.Context(), profile)
	if err != nil {
		h.logger.Errorf("Failed to compute safety score for %s: %v", profile.Code, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute safety score"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"safety_score": score})
}

func (h *Handler) GetProfileByCode(c *gin.Context) {
	code := c.Param("code")
	profile, err := h.store.LookupSubject(c.Request.Context(), code)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tourist not found"})
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to get tourist %s: %v", code, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tourist"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) ListRiskZones(c *gin.Context) {
	f := models.ZoneFilter{City: c.Query("city")}
	if v := c.Query("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active_only"})
			return
		}
		f.ActiveOnly = b
	}
	zones, err := h.store.ListZones(c.Request.Context(), f)
	if err != nil {
		h.logger.Errorf("Failed to list risk zones: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list risk zones"})
		return
	}
	c.JSON(http.StatusOK, zones)
}

type zoneRequest struct {
	Name        string                 `json:"name" binding:"required"`
	Description *string                `json:"description"`
	RiskLevel   string                 `json:"risk_level" binding:"required"`
	Category    *string                `json:"category"`
	City        *string                `json:"city"`
	Geom        map[string]interface{} `json:"geom" binding:"required"`
	IsActive    *bool                  `json:"is_active"`
}

func (h *Handler) CreateRiskZone(c *gin.Context) {
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for risk zone: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	actor := actorID(c)
	zone := models.RiskZone{
		Name:        req.Name,
		Description: req.Description,
		RiskLevel:   models.RiskLevel(strings.TrimSpace(req.RiskLevel)),
		Category:    req.Category,
		City:        req.City,
		Geom:        req.Geom,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedBy:   &actor,
	}
	if err := h.store.CreateZone(c.Request.Context(), &zone); err != nil {
		h.logger.Errorf("Failed to create risk zone: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create risk zone"})
		return
	}
	h.logger.Infof("Created risk zone %d (%s) by %s", zone.ID, zone.Name, actor)
	c.JSON(http.StatusCreated, zone)
}

func (h *Handler) ListActiveZones(c *gin.Context) {
	zones, err := h.store.ActiveZones(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list active zones: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list risk zones"})
		return
	}
	c.JSON(http.StatusOK, zones)
}

type locationRequest struct {
	Code       string   `json:"tourist_id_code" binding:"required"`
	Lat        *float64 `json:"lat" binding:"required,gte=-90,lte=90"`
	Lng        *float64 `json:"lng" binding:"required,gte=-180,lte=180"`
	AccuracyM  *float64 `json:"accuracy_m" binding:"omitempty,gte=0"`
	Source     *string  `json:"source"`
	RecordedAt *string  `json:"recorded_at"`
}

func (h *Handler) IngestLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for location: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	upd := engine.LocationUpdate{
		SubjectCode: req.Code,
		Lat:         *req.Lat,
		Lng:         *req.Lng,
		AccuracyM:   req.AccuracyM,
		Source:      req.Source,
	}
	if req.RecordedAt != nil && *req.RecordedAt != "" {
		t, err := models.ParseTimestamp(*req.RecordedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recorded_at"})
			return
		}
		upd.RecordedAt = &t
	}

	alerts, err := h.engine.IngestLocation(c.Request.Context(), upd)
	if err != nil {
		h.fail(c, err, "Failed to ingest location")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type panicRequest struct {
	Code *string  `json:"tourist_id_code"`
	Lat  *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Lng  *float64 `json:"lng" binding:"omitempty,gte=-180,lte=180"`
	Note *string  `json:"note" binding:"omitempty,max=500"`
}

func (h *Handler) TriggerPanic(c *gin.Context) {
	var req panicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for panic: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	pr := engine.PanicRequest{ActorID: actorID(c), Lat: req.Lat, Lng: req.Lng, Note: req.Note}
	if req.Code != nil {
		pr.SubjectCode = *req.Code
	}
	alert, err := h.engine.TriggerPanic(c.Request.Context(), pr)
	if err != nil {
		h.fail(c, err, "Failed to trigger panic alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	f := models.AlertFilter{
		Status:   c.Query("status"),
		Kind:     c.Query("type"),
		Severity: c.Query("severity"),
		Offset:   0,
		Limit:    50,
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		f.Offset = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		f.Limit = n
	}

	ctx := c.Request.Context()
	if isAdmin(c) {
		f.SubjectCode = c.Query("tourist_id_code")
	} else {
		// Tourists only see their own alerts
		profile, err := h.store.SubjectByActor(ctx, actorID(c))
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusOK, []models.Alert{})
			return
		}
		if err != nil {
			h.logger.Errorf("Failed to get tourist profile for %s: %v", actorID(c), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
			return
		}
		f.SubjectID = &profile.ID
	}

	alerts, err := h.store.ListAlerts(ctx, f)
	if err != nil {
		h.logger.Errorf("Failed to list alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	alert, err := h.engine.AcknowledgeAlert(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to acknowledge alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	alert, err := h.engine.ResolveAlert(c.Request.Context(), id, actorID(c))
	if err != nil {
		h.fail(c, err, "Failed to resolve alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ListDispatches shows the delivery attempts made for an alert.
func (h *Handler) ListDispatches(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}
	list, err := h.store.DispatchesForAlert(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get dispatches for alert %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get dispatches"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// AlertFeed upgrades to a websocket that receives every new alert.
func (h *Handler) AlertFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.hub.Add(actorID(c), conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		_ = conn.Close()
		return
	}
	defer func() {
		h.hub.Remove(conn)
		_ = conn.Close()
	}()
	// The feed is one way; reading only detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) myProfile(c *gin.Context) (models.Subject, bool) {
	profile, err := h.store.SubjectByActor(c.Request.Context(), actorID(c))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active tourist profile found"})
		return profile, false
	}
	if err != nil {
		h.logger.Errorf("Failed to get tourist profile for %s: %v", actorID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tourist profile"})
		return profile, false
	}
	return profile, true
}

// fail maps engine errors to HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, engine.ErrSubjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Active tourist profile not found"})
	case errors.Is(err, engine.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please slow down."})
	case errors.Is(err, engine.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, engine.ErrAlertResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "Alert already resolved"})
	default:
		h.logger.Request(c.GetString(ctxRequestID)).Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func alertID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return 0, false
	}
	return id, true
}

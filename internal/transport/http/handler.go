package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/geo"
	"fleet-monitor/livemap/internal/ledger"
	"fleet-monitor/livemap/internal/normalizer"
	"fleet-monitor/livemap/internal/pipeline"
	"fleet-monitor/livemap/internal/store"
)

const maxBodyBytes = 1 << 20

type engine interface {
	Handle(ctx context.Context, raw normalizer.WireEvent) domain.Notification
	Driver(id string) (domain.DriverState, bool)
	ActiveDrivers(window time.Duration) []domain.DriverState
	POIs() []domain.PointOfInterest
	Alerts(f ledger.Filter, by ledger.SortBy) []domain.AlertRecord
	Stats(activeWindow time.Duration) pipeline.Stats
	SeedTrack(ctx context.Context, driverID string, history []domain.Coordinate) domain.DriverState
	ConnectionState() domain.ConnectionState
}

type historySource interface {
	DriverHistory(ctx context.Context, driverID string, limit int) ([]domain.Coordinate, error)
}

type tollboothRequest struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	Address   string      `json:"address"`
}

type trackResponse struct {
	DriverID string              `json:"driver_id"`
	Track    []domain.Coordinate `json:"track"`
	LengthKm float64             `json:"length_km"`
	Length   string              `json:"length"`
}

type Handler struct {
	engine       engine
	history      historySource
	activeWindow time.Duration

	mu     sync.Mutex
	seeded map[string]bool
}

func NewHandler(engine engine, history historySource, activeWindow time.Duration) *Handler {
	return &Handler{
		engine:       engine,
		history:      history,
		activeWindow: activeWindow,
		seeded:       make(map[string]bool),
	}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.POST("/alert", h.PostAlert)
	r.POST("/driver/location", h.PostLocation)

	r.GET("/api/drivers", h.ListDrivers)
	r.GET("/api/drivers/:driver_id", h.GetDriver)
	r.GET("/api/drivers/:driver_id/track", h.GetTrack)
	r.GET("/api/alerts", h.ListAlerts)
	r.GET("/api/tollbooths", h.ListTollbooths)
	r.POST("/api/tollbooths", h.CreateTollbooth)
	r.GET("/api/stats", h.GetStats)
	r.GET("/health", h.Health)
}

func (h *Handler) PostAlert(c *gin.Context) {
	body, ok := readDriverBody(c)
	if !ok {
		return
	}

	n := h.engine.Handle(c.Request.Context(), normalizer.WireEvent{Name: string(domain.KindAlert), Body: body})
	resp := gin.H{"status": "ok"}
	if n.NewAlert != nil {
		resp["alert_id"] = n.NewAlert.ID
		resp["severity"] = n.NewAlert.Severity
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PostLocation(c *gin.Context) {
	body, ok := readDriverBody(c)
	if !ok {
		return
	}

	h.engine.Handle(c.Request.Context(), normalizer.WireEvent{Name: string(domain.KindLocationUpdate), Body: body})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListDrivers(c *gin.Context) {
	window := h.activeWindow
	if v := c.Query("active_within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active_within parameter"})
			return
		}
		window = d
	}
	c.JSON(http.StatusOK, h.engine.ActiveDrivers(window))
}

func (h *Handler) GetDriver(c *gin.Context) {
	st, ok := h.engine.Driver(c.Param("driver_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "driver not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetTrack returns a driver's track. The first request for a driver
// merges recorded history from the history source into the live track.
func (h *Handler) GetTrack(c *gin.Context) {
	driverID := c.Param("driver_id")

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = n
	}

	h.seedOnce(c.Request.Context(), driverID, limit)

	st, ok := h.engine.Driver(driverID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "driver not found"})
		return
	}

	track := st.Track
	if limit > 0 && len(track) > limit {
		track = track[len(track)-limit:]
	}
	length := pathLength(track)
	c.JSON(http.StatusOK, trackResponse{
		DriverID: driverID,
		Track:    track,
		LengthKm: length,
		Length:   geo.FormatDistance(length),
	})
}

func (h *Handler) seedOnce(ctx context.Context, driverID string, limit int) {
	if h.history == nil {
		return
	}

	h.mu.Lock()
	done := h.seeded[driverID]
	h.seeded[driverID] = true
	h.mu.Unlock()
	if done {
		return
	}

	history, err := h.history.DriverHistory(ctx, driverID, limit)
	if err != nil {
		if !errors.Is(err, store.ErrNoHistory) {
			log.Printf("driver history for %s failed: %v", driverID, err)
			h.mu.Lock()
			delete(h.seeded, driverID)
			h.mu.Unlock()
		}
		return
	}
	h.engine.SeedTrack(ctx, driverID, history)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	f := ledger.Filter{Search: c.Query("q")}
	if v := c.Query("severity"); v != "" {
		sev := domain.AlertSeverity(strings.ToUpper(v))
		if !validSeverity(sev) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity parameter"})
			return
		}
		f.Severity = sev
	}
	c.JSON(http.StatusOK, h.engine.Alerts(f, ledger.ParseSortBy(c.Query("sort"))))
}

// ListTollbooths returns every known tollbooth, or only those within
// radius_km of lat/lon when all three are given.
func (h *Handler) ListTollbooths(c *gin.Context) {
	pois := h.engine.POIs()
	if c.Query("radius_km") == "" {
		c.JSON(http.StatusOK, pois)
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	radius, errRadius := strconv.ParseFloat(c.Query("radius_km"), 64)
	center := domain.Coordinate{Latitude: lat, Longitude: lon}
	if errLat != nil || errLon != nil || errRadius != nil || radius <= 0 || !geo.IsValid(center) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat, lon or radius_km parameter"})
		return
	}

	box := geo.BoundingBox(center, radius)
	within := make([]domain.PointOfInterest, 0, len(pois))
	for _, p := range pois {
		if box.Contains(p.Coordinate) && geo.Distance(center, p.Coordinate) <= radius {
			within = append(within, p)
		}
	}
	c.JSON(http.StatusOK, within)
}

func (h *Handler) CreateTollbooth(c *gin.Context) {
	var req tollboothRequest
	if err := json.NewDecoder(io.LimitReader(c.Request.Body, maxBodyBytes)).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || req.Latitude == nil || req.Longitude == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	coord := domain.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if !geo.IsValid(coord) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coordinate"})
		return
	}

	id := req.ID.String()
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(map[string]any{
		"id":      id,
		"name":    name,
		"lat":     coord.Latitude,
		"lon":     coord.Longitude,
		"address": req.Address,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode tollbooth"})
		return
	}

	n := h.engine.Handle(c.Request.Context(), normalizer.WireEvent{Name: string(domain.KindTollboothAdded), Body: body})
	if n.NewPOI == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "tollbooth already exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": n.NewPOI.ID})
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats(h.activeWindow))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"connection_state": h.engine.ConnectionState(),
	})
}

// readDriverBody reads the request body and rejects it with 400 when it
// carries no driver_id. The body itself is passed on untouched.
func readDriverBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return nil, false
	}

	var probe struct {
		DriverID any `json:"driver_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return nil, false
	}
	switch v := probe.DriverID.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return body, true
		}
	case float64:
		return body, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "missing driver_id"})
	return nil, false
}

func validSeverity(s domain.AlertSeverity) bool {
	for _, v := range domain.Severities {
		if v == s {
			return true
		}
	}
	return false
}

func pathLength(track []domain.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(track); i++ {
		total += geo.Distance(track[i-1], track[i])
	}
	return total
}

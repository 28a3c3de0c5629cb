package decision

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelpay/fraudgate/internal/pagination"
	"github.com/sentinelpay/fraudgate/internal/validation"
)

// maxHistoryLen bounds the recent-amount history accepted per request.
const maxHistoryLen = 100

// EventSink receives decision lifecycle events (e.g. the realtime feed).
type EventSink interface {
	DecisionMade(assessment *RiskAssessment)
}

// Handler provides HTTP endpoints for risk decisions.
type Handler struct {
	engine *Engine
	store  Store
	events EventSink
}

// NewHandler creates a new decision handler. store and events may be nil.
func NewHandler(engine *Engine, store Store, events EventSink) *Handler {
	return &Handler{engine: engine, store: store, events: events}
}

// RegisterRoutes sets up decision routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/decisions", h.Decide)
	r.GET("/decisions", h.ListRecent)
}

// DecideRequest is the request body for POST /v1/decisions.
type DecideRequest struct {
	Category string    `json:"category" binding:"required"`
	Amount   float64   `json:"amt"`
	City     string    `json:"city"`
	State    string    `json:"state"`
	Job      string    `json:"job"`
	Hour     int       `json:"hour"`
	DOW      int       `json:"dow"`
	Age      int       `json:"age"`
	History  []float64 `json:"history"` // recent amounts, most-recent-first
}

// Decide handles POST /v1/decisions
func (h *Handler) Decide(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Category is required and the body must be valid JSON",
		})
		return
	}

	if errs := validation.Validate(
		validation.NonNegativeAmount("amt", req.Amount),
		validation.HourOfDay("hour", req.Hour),
		validation.DayOfWeek("dow", req.DOW),
		validation.MaxLength("category", req.Category, validation.MaxStringLength),
		validation.MaxLength("city", req.City, validation.MaxStringLength),
		validation.MaxLength("state", req.State, validation.MaxStringLength),
		validation.MaxLength("job", req.Job, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}
	if len(req.History) > maxHistoryLen {
		req.History = req.History[:maxHistoryLen]
	}
	for _, amt := range req.History {
		if amt < 0 || amt != amt {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "history amounts must be non-negative",
			})
			return
		}
	}

	features := &TransactionFeatures{
		Category: req.Category,
		Amount:   req.Amount,
		City:     req.City,
		State:    req.State,
		Job:      req.Job,
		Hour:     req.Hour,
		DOW:      req.DOW,
		Age:      req.Age,
	}

	assessment := h.engine.Decide(c.Request.Context(), features, req.History)

	if h.events != nil {
		h.events.DecisionMade(assessment)
	}

	c.JSON(http.StatusOK, gin.H{"assessment": assessment})
}

// ListRecent handles GET /v1/decisions
func (h *Handler) ListRecent(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"assessments": []*RiskAssessment{}, "count": 0})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	assessments, err := h.store.ListRecent(c.Request.Context(), cursor, limit+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	assessments, next, hasMore := pagination.ComputePage(assessments, limit, func(a *RiskAssessment) (time.Time, string) {
		return a.EvaluatedAt, a.ID
	})

	resp := gin.H{
		"assessments": assessments,
		"count":       len(assessments),
		"has_more":    hasMore,
	}
	if next != "" {
		resp["next_cursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

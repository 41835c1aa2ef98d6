package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/repository"
)

// EventHandler serves the append-only check-in/check-out log.
type EventHandler struct {
	store  repository.Store
	logger *zap.Logger
}

func NewEventHandler(store repository.Store, logger *zap.Logger) *EventHandler {
	return &EventHandler{store: store, logger: logger}
}

type checkEventRequest struct {
	Kind string `json:"kind" binding:"required,oneof=in out"`
	Note string `json:"note"`
}

// Append handles POST /v1/people/:id/events
func (h *EventHandler) Append(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var req checkEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.store.People().GetByID(c.Request.Context(), personID)
	if err != nil {
		h.logger.Error("failed to get person", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	event, err := h.store.Events().Append(c.Request.Context(), personID, req.Kind, req.Note)
	if err != nil {
		h.logger.Error("failed to append check event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	c.JSON(http.StatusCreated, event)
}

// List handles GET /v1/people/:id/events?before=<id>&limit=<n>
func (h *EventHandler) List(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var before int64
	if s := c.Query("before"); s != "" {
		before, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
	}
	limit := parseLimit(c.Query("limit"), 50)

	events, err := h.store.Events().ListByPerson(c.Request.Context(), personID, before, limit)
	if err != nil {
		h.logger.Error("failed to list check events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, events)
}

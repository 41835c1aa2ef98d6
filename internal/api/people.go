package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/assign"
	"github.com/lodgepole/campdesk/internal/repository"
)

// PersonHandler handles camper registration and room moves. Every
// occupancy mutation goes through the assign service; the handler never
// touches room counters directly.
type PersonHandler struct {
	svc    *assign.Service
	store  repository.Store
	logger *zap.Logger
}

func NewPersonHandler(svc *assign.Service, store repository.Store, logger *zap.Logger) *PersonHandler {
	return &PersonHandler{svc: svc, store: store, logger: logger}
}

type createPersonRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Room      string `json:"room"`
}

// Create handles POST /v1/people
//
// With a room in the body this is create-with-assignment: if the room is
// full the whole request fails with 409 and no person is created.
func (h *PersonHandler) Create(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.svc.CreatePersonWithRoom(c.Request.Context(), assign.PersonSpec{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}, req.Room)
	if err != nil {
		respondError(c, h.logger, "create person", err)
		return
	}

	c.JSON(http.StatusCreated, person)
}

// Get handles GET /v1/people/:id
func (h *PersonHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.store.People().GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to get person", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get person"})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	c.JSON(http.StatusOK, person)
}

// List handles GET /v1/people?after=<uuid>&limit=<n>
func (h *PersonHandler) List(c *gin.Context) {
	var after uuid.UUID
	if s := c.Query("after"); s != "" {
		parsed, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
			return
		}
		after = parsed
	}
	limit := parseLimit(c.Query("limit"), 50)

	people, err := h.store.People().List(c.Request.Context(), after, limit)
	if err != nil {
		h.logger.Error("failed to list people", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list people"})
		return
	}

	c.JSON(http.StatusOK, people)
}

type reassignRequest struct {
	// Room is the destination room number (or legacy id); null unassigns.
	Room *string `json:"room"`
}

// Reassign handles PUT /v1/people/:id/room
func (h *PersonHandler) Reassign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.svc.ReassignPerson(c.Request.Context(), id, req.Room)
	if err != nil {
		respondError(c, h.logger, "reassign person", err)
		return
	}

	c.JSON(http.StatusOK, person)
}

// Delete handles DELETE /v1/people/:id (soft delete; frees their room slot).
func (h *PersonHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	if err := h.svc.DeletePerson(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete person", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseLimit(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 500 {
		return def
	}
	return n
}

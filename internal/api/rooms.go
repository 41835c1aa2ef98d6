package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/assign"
	"github.com/lodgepole/campdesk/internal/repository"
)

// RoomHandler handles room administration and bulk assignment.
type RoomHandler struct {
	svc    *assign.Service
	store  repository.Store
	logger *zap.Logger
}

func NewRoomHandler(svc *assign.Service, store repository.Store, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{svc: svc, store: store, logger: logger}
}

type createRoomRequest struct {
	Number   string `json:"number" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,min=1"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.Rooms().Create(c.Request.Context(), req.Number, req.Capacity)
	if err != nil {
		respondError(c, h.logger, "create room", err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

// List handles GET /v1/rooms and GET /v1/rooms?available=true
func (h *RoomHandler) List(c *gin.Context) {
	if c.Query("available") == "true" {
		available, err := h.svc.ListAvailableRooms(c.Request.Context())
		if err != nil {
			h.logger.Error("failed to list available rooms", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
			return
		}
		c.JSON(http.StatusOK, available)
		return
	}

	all, err := h.store.Rooms().List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, all)
}

// Get handles GET /v1/rooms/:number (human-facing key, not internal id).
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.store.Rooms().GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.logger.Error("failed to get room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room"})
		return
	}
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	c.JSON(http.StatusOK, room)
}

type updateCapacityRequest struct {
	Capacity int `json:"capacity" binding:"required,min=1"`
}

// UpdateCapacity handles PATCH /v1/rooms/:id/capacity
func (h *RoomHandler) UpdateCapacity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req updateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.Rooms().UpdateCapacity(c.Request.Context(), id, req.Capacity)
	if err != nil {
		respondError(c, h.logger, "update capacity", err)
		return
	}

	c.JSON(http.StatusOK, room)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive handles PATCH /v1/rooms/:id/active. Deactivating keeps the
// current occupants; it only stops new assignments.
func (h *RoomHandler) SetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.Rooms().SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		respondError(c, h.logger, "set room active", err)
		return
	}

	c.JSON(http.StatusOK, room)
}

type setLeadRequest struct {
	PersonID uuid.UUID `json:"person_id" binding:"required"`
}

// SetLead handles PUT /v1/rooms/:id/lead
func (h *RoomHandler) SetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req setLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.svc.SetRoomLead(c.Request.Context(), id, req.PersonID)
	if err != nil {
		respondError(c, h.logger, "set room lead", err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// RemoveMember handles DELETE /v1/rooms/:id/members/:personID
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	personID, err := uuid.Parse(c.Param("personID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	if err := h.svc.RemovePerson(c.Request.Context(), personID, roomID); err != nil {
		respondError(c, h.logger, "remove person", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// BulkAssign handles POST /v1/rooms/assignments
//
// Returns 200 even when some items failed; per-item errors are in the
// body. Only a whole-batch failure (capacity below occupancy, bad input)
// gets an error status.
func (h *RoomHandler) BulkAssign(c *gin.Context) {
	var req assign.BulkAssignInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.BulkAssign(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "bulk assign", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Delete handles DELETE /v1/rooms/:id (hard delete, empty rooms only).
func (h *RoomHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	if err := h.store.Rooms().Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete room", err)
		return
	}

	c.Status(http.StatusNoContent)
}

type occupancyStats struct {
	Rooms     int `json:"rooms"`
	Active    int `json:"active_rooms"`
	Capacity  int `json:"capacity"`
	Occupancy int `json:"occupancy"`
	Free      int `json:"free"`
}

// Stats handles GET /v1/stats/occupancy, the summary the stats cache key
// fronts.
func (h *RoomHandler) Stats(c *gin.Context) {
	rooms, err := h.store.Rooms().List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	var stats occupancyStats
	for _, r := range rooms {
		stats.Rooms++
		if r.Active {
			stats.Active++
			stats.Capacity += r.Capacity
			stats.Free += r.Capacity - r.Occupancy
		}
		stats.Occupancy += r.Occupancy
	}

	c.JSON(http.StatusOK, stats)
}

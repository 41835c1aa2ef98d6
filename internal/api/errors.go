package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/assign"
	"github.com/lodgepole/campdesk/internal/repository"
)

// respondError maps the allocation error taxonomy onto HTTP statuses.
// RoomFull is a 409 the client may retry against another room; not-found
// errors are 404s the client must correct; anything unclassified is a 500
// with the detail kept server-side.
func respondError(c *gin.Context, logger *zap.Logger, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("action", action), zap.Error(err))
		c.JSON(status, gin.H{"error": action + " failed"})
		return
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  assign.ErrorKind(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrPersonNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrRoomFull),
		errors.Is(err, repository.ErrRoomInactive),
		errors.Is(err, repository.ErrAlreadyMember),
		errors.Is(err, repository.ErrNotAMember),
		errors.Is(err, repository.ErrCapacityBelowOccupancy),
		errors.Is(err, repository.ErrDuplicateRoom),
		errors.Is(err, repository.ErrRoomOccupied),
		errors.Is(err, repository.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

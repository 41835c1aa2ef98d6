package assign

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

// BulkAssignInput moves a batch of people into one room, creating the room
// (and any new people) on the way.
type BulkAssignInput struct {
	RoomNumber  string       `json:"room_number" binding:"required"`
	Capacity    int          `json:"capacity" binding:"required,min=1"`
	ExistingIDs []uuid.UUID  `json:"existing_ids"`
	NewPeople   []PersonSpec `json:"new_people"`
}

// ItemError records one failed batch item. Ref is the person id for an
// existing-id item and "new[i]" for the i-th new-person spec.
type ItemError struct {
	Ref     string `json:"ref"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type BulkResult struct {
	Room           *models.Room    `json:"room"`
	AssignedPeople []models.Person `json:"assigned_people"`
	CreatedPeople  []models.Person `json:"created_people"`
	Errors         []ItemError     `json:"errors"`
}

// BulkAssign finds or creates the room, adjusts its capacity, then
// processes every item independently: one item failing (full room, unknown
// person) is recorded and the rest of the batch continues. Only a
// capacity shrink below current occupancy fails the whole call, before any
// item runs.
//
// Each item is its own transaction. The batch as a whole is deliberately
// not atomic; that is the partial-failure contract.
func (s *Service) BulkAssign(ctx context.Context, in BulkAssignInput) (*BulkResult, error) {
	room, err := s.ensureRoom(ctx, in.RoomNumber, in.Capacity)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{
		Room:           room,
		AssignedPeople: []models.Person{},
		CreatedPeople:  []models.Person{},
		Errors:         []ItemError{},
	}

	for _, id := range in.ExistingIDs {
		ref := room.Number
		p, err := s.ReassignPerson(ctx, id, &ref)
		if err != nil {
			res.Errors = append(res.Errors, itemError(id.String(), err))
			s.logger.Debug("bulk assign item failed",
				zap.String("person_id", id.String()),
				zap.String("room", room.Number),
				zap.Error(err),
			)
			continue
		}
		res.AssignedPeople = append(res.AssignedPeople, *p)
	}

	for i, spec := range in.NewPeople {
		p, err := s.CreatePersonWithRoom(ctx, spec, room.Number)
		if err != nil {
			res.Errors = append(res.Errors, itemError(fmt.Sprintf("new[%d]", i), err))
			s.logger.Debug("bulk assign new person failed",
				zap.Int("index", i),
				zap.String("room", room.Number),
				zap.Error(err),
			)
			continue
		}
		res.CreatedPeople = append(res.CreatedPeople, *p)
	}

	// Re-read so the returned room reflects every item that landed.
	if final, err := s.store.Rooms().GetByNumber(ctx, room.Number); err == nil && final != nil {
		res.Room = final
	}
	return res, nil
}

// ensureRoom finds the room by number, creating it when absent. A lost
// create race (two batches targeting a new number) is resolved by
// re-reading the winner's room. A capacity change below the current
// occupancy is rejected with ErrCapacityBelowOccupancy.
func (s *Service) ensureRoom(ctx context.Context, number string, capacity int) (*models.Room, error) {
	rooms := s.store.Rooms()

	room, err := rooms.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if room == nil {
		created, err := rooms.Create(ctx, number, capacity)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, repository.ErrDuplicateRoom) {
			return nil, err
		}
		room, err = rooms.GetByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if room == nil {
			return nil, repository.ErrRoomNotFound
		}
	}
	if capacity > 0 && capacity != room.Capacity {
		return rooms.UpdateCapacity(ctx, room.ID, capacity)
	}
	return room, nil
}

func itemError(ref string, err error) ItemError {
	return ItemError{Ref: ref, Kind: ErrorKind(err), Message: err.Error()}
}

// ErrorKind labels an allocation error for API responses and batch item
// reports.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, repository.ErrRoomFull):
		return "room_full"
	case errors.Is(err, repository.ErrRoomInactive):
		return "room_inactive"
	case errors.Is(err, repository.ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, repository.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, repository.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, repository.ErrPersonNotFound):
		return "person_not_found"
	case errors.Is(err, repository.ErrCapacityBelowOccupancy):
		return "capacity_below_occupancy"
	default:
		return "internal"
	}
}

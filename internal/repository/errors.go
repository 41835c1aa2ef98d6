package repository

import "errors"

// Allocation error taxonomy. Handlers map these onto HTTP statuses; the
// orchestrator and repositories communicate exclusively through them, so
// callers can errors.Is their way to a decision without string matching.
var (
	// ErrRoomFull: the conditional attach found occupancy == capacity.
	// Expected under contention; the caller may retry against another room.
	ErrRoomFull = errors.New("room is at capacity")

	// ErrRoomInactive: the room exists but no longer accepts assignments.
	ErrRoomInactive = errors.New("room is inactive")

	// ErrAlreadyMember: attach of a person the room already lists. The
	// orchestrator's no-op path normally prevents this from surfacing.
	ErrAlreadyMember = errors.New("person is already a member of the room")

	// ErrNotAMember: detach of a person the room does not list (and the
	// room's occupancy is already zero, so the drift fallback cannot apply).
	ErrNotAMember = errors.New("person is not a member of the room")

	ErrRoomNotFound   = errors.New("room not found")
	ErrPersonNotFound = errors.New("person not found")

	// ErrCapacityBelowOccupancy: a capacity shrink would strand current
	// occupants. Rejected outright with no partial effect.
	ErrCapacityBelowOccupancy = errors.New("requested capacity is below current occupancy")

	// ErrDuplicateRoom: a second room with the same number. Racing
	// creators recover by re-reading.
	ErrDuplicateRoom = errors.New("room number already exists")

	// ErrRoomOccupied: hard delete or deactivate-with-eviction attempted
	// on a room that still has occupants.
	ErrRoomOccupied = errors.New("room still has occupants")

	ErrDuplicateEmail = errors.New("email already registered")
)

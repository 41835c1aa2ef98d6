package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/lodgepole/campdesk/internal/models"
)

// Store bundles the repositories behind one transaction boundary.
//
// WithTx runs fn against a Store whose repositories share a single
// transaction. If fn returns an error the transaction rolls back and
// nothing fn did is visible to anyone; otherwise it commits atomically.
// Calling WithTx on a Store that is already transactional reuses the
// open transaction.
type Store interface {
	Rooms() RoomRepository
	People() PersonRepository
	Events() EventRepository
	Staff() StaffRepository

	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// RoomRepository owns the Room records, including the two allocation
// primitives. TryAttach and TryDetach are single conditional writes: every
// guard is part of the write condition itself, so there is no
// read-then-write window for a racing request to slip through.
type RoomRepository interface {
	// Create inserts a room with zero occupancy. Returns ErrDuplicateRoom
	// if the number is taken.
	Create(ctx context.Context, number string, capacity int) (*models.Room, error)

	// GetByID returns nil, nil when no room has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)

	// GetByNumber returns nil, nil when no room has the number.
	GetByNumber(ctx context.Context, number string) (*models.Room, error)

	// GetByIDs returns the rooms whose ids appear in ids; missing ids are
	// simply absent from the result.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Room, error)

	// GetByNumbers returns the rooms whose numbers appear in numbers.
	GetByNumbers(ctx context.Context, numbers []string) ([]models.Room, error)

	// List returns every room, ordered by number.
	List(ctx context.Context) ([]models.Room, error)

	// ListAvailable returns active rooms with free capacity, ordered by number.
	ListAvailable(ctx context.Context) ([]models.Room, error)

	// FindByMember returns the room whose member list contains personID,
	// or nil, nil. At most one room can list a person at a committed
	// instant.
	FindByMember(ctx context.Context, personID uuid.UUID) (*models.Room, error)

	// TryAttach adds personID to the room if and only if the room is
	// active, does not already list the person, and has free capacity,
	// all checked atomically with the write. Returns the updated room, or
	// ErrRoomNotFound, ErrRoomInactive, ErrAlreadyMember, ErrRoomFull.
	// Never partially mutates.
	TryAttach(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error)

	// TryDetach removes personID from the room. It also succeeds when the
	// member list does not contain the person but occupancy >= 1, as a
	// tolerance for pre-existing drift; occupancy never drops below zero.
	// Returns ErrNotAMember when neither condition holds.
	TryDetach(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error)

	// UpdateCapacity changes the capacity, rejecting with
	// ErrCapacityBelowOccupancy when the new value is below the current
	// occupancy (checked atomically with the write).
	UpdateCapacity(ctx context.Context, roomID uuid.UUID, capacity int) (*models.Room, error)

	// SetActive flips the active flag. Deactivating keeps occupants;
	// it only blocks new attaches.
	SetActive(ctx context.Context, roomID uuid.UUID, active bool) (*models.Room, error)

	// SetLead designates a lead; ClearLead removes the designation only
	// if personID currently holds it.
	SetLead(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error)
	ClearLead(ctx context.Context, roomID, personID uuid.UUID) error

	// SetMembership overwrites member list and occupancy unconditionally,
	// bumping the version. Reserved for reconciliation's corrective
	// writes; the orchestrator never calls it.
	SetMembership(ctx context.Context, roomID uuid.UUID, memberIDs []uuid.UUID, occupancy int) error

	// ScanOccupied pages through rooms with occupancy > 0 or a non-empty
	// member list, keyed on id > afterID, ordered by id.
	ScanOccupied(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Room, error)

	// Delete hard-deletes an empty room; ErrRoomOccupied otherwise.
	Delete(ctx context.Context, roomID uuid.UUID) error
}

// PersonRepository owns the Person records. It never touches Room counters;
// keeping the two sides in step is the orchestrator's job, inside one
// transaction.
type PersonRepository interface {
	Create(ctx context.Context, firstName, lastName, email string) (*models.Person, error)

	// GetByID returns nil, nil when no person has the id or the person is
	// soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error)

	// List pages through non-deleted people, keyed on id > afterID.
	List(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error)

	// SetRoomRef points the person at a room number, or clears it with nil.
	SetRoomRef(ctx context.Context, personID uuid.UUID, roomRef *string) error

	// SoftDelete marks the person deleted; the row is retained.
	SoftDelete(ctx context.Context, personID uuid.UUID) error

	// ScanAssigned pages through non-deleted people with a non-nil
	// RoomRef, keyed on id > afterID, ordered by id. Reconciliation's
	// input stream.
	ScanAssigned(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error)
}

// EventRepository is the append-only check-in/check-out log. No allocation
// logic reads it; it exists for the audit trail.
type EventRepository interface {
	Append(ctx context.Context, personID uuid.UUID, kind, note string) (*models.CheckEvent, error)

	// ListByPerson returns events newest first; before == 0 starts at the
	// latest.
	ListByPerson(ctx context.Context, personID uuid.UUID, before int64, limit int) ([]models.CheckEvent, error)
}

// StaffRepository owns back-office accounts.
type StaffRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.Staff, error)

	// GetByEmail returns nil, nil when no account has the email.
	GetByEmail(ctx context.Context, email string) (*models.Staff, error)
}

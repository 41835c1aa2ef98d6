package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a capacity-bounded sleeping room at the camp.
//
// Occupancy and MemberIDs are stored redundantly on purpose: Occupancy is
// the cheap counter the capacity guard checks, MemberIDs is the
// authoritative membership list. After every committed mutation they must
// agree: Occupancy == len(MemberIDs) and Occupancy <= Capacity.
//
// Version increments on every successful mutation. The primary concurrency
// defense is the conditional UPDATE in the repository; the version counter
// exists so stale reads and lost updates are at least detectable.
type Room struct {
	ID        uuid.UUID   `json:"id"`
	Number    string      `json:"number"`
	Capacity  int         `json:"capacity"`
	Occupancy int         `json:"occupancy"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	LeadID    *uuid.UUID  `json:"lead_id,omitempty"`
	Version   int64       `json:"version"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// HasMember reports whether personID appears in MemberIDs.
func (r *Room) HasMember(personID uuid.UUID) bool {
	for _, id := range r.MemberIDs {
		if id == personID {
			return true
		}
	}
	return false
}

// Available reports whether the room accepts new assignments.
func (r *Room) Available() bool {
	return r.Active && r.Occupancy < r.Capacity
}

// Person is a registered camper.
//
// RoomRef points at the occupied room by its human-facing number ("A-101"),
// or nil when unassigned. Historical data sometimes stored the room's
// internal UUID instead of the number; readers must resolve UUID-shaped
// values through a room lookup before treating them as a number.
//
// Deleted is a soft-delete flag: deleted people keep their rows but are
// invisible to allocation and reconciliation.
type Person struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	RoomRef   *string   `json:"room_ref,omitempty"`
	Deleted   bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckEvent is one entry in the append-only check-in/check-out log.
//
// bigserial int64 rather than UUID: events are the highest-volume table,
// are only ever created through this API, and a sequence gives a natural
// newest-first cursor.
type CheckEvent struct {
	ID        int64     `json:"id"`
	PersonID  uuid.UUID `json:"person_id"`
	Kind      string    `json:"kind"` // "in" or "out"
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Staff is a back-office account that operates the registration desk.
type Staff struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Package assign is the assignment orchestrator: every live mutation of
// room occupancy goes through here, composed from the repository's
// conditional attach/detach primitives inside a single transaction per
// operation. A failed operation leaves both the Room and the Person record
// exactly as they were.
package assign

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/cache"
	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

type Service struct {
	store  repository.Store
	cache  cache.Invalidator
	logger *zap.Logger
}

func NewService(store repository.Store, inv cache.Invalidator, logger *zap.Logger) *Service {
	return &Service{store: store, cache: inv, logger: logger}
}

// PersonSpec is the input for creating a camper.
type PersonSpec struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
}

// ResolveRoomRef resolves a room reference that is either a human-facing
// room number or, for legacy data, the room's internal UUID. Returns
// nil, nil when nothing matches. Every read boundary that touches a
// Person.RoomRef goes through this.
func ResolveRoomRef(ctx context.Context, rooms repository.RoomRepository, ref string) (*models.Room, error) {
	if id, err := uuid.Parse(ref); err == nil {
		room, err := rooms.GetByID(ctx, id)
		if err != nil || room != nil {
			return room, err
		}
		// A UUID-shaped ref with no matching id falls through to the
		// number lookup; numbers are never UUID-shaped in practice.
	}
	return rooms.GetByNumber(ctx, ref)
}

// CreatePersonWithRoom creates the person and, when roomRef is non-empty,
// attaches them to the resolved room in the same transaction. A full or
// missing room aborts the whole operation: the person is not left
// half-created.
func (s *Service) CreatePersonWithRoom(ctx context.Context, spec PersonSpec, roomRef string) (*models.Person, error) {
	var (
		person     *models.Person
		roomNumber string
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.People().Create(ctx, spec.FirstName, spec.LastName, spec.Email)
		if err != nil {
			return err
		}
		if roomRef != "" {
			room, err := ResolveRoomRef(ctx, tx.Rooms(), roomRef)
			if err != nil {
				return err
			}
			if room == nil {
				return repository.ErrRoomNotFound
			}
			if _, err := tx.Rooms().TryAttach(ctx, room.ID, p.ID); err != nil {
				return err
			}
			if err := tx.People().SetRoomRef(ctx, p.ID, &room.Number); err != nil {
				return err
			}
			p.RoomRef = &room.Number
			roomNumber = room.Number
		}
		person = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if roomNumber != "" {
		s.cache.Invalidate(ctx, cache.RoomKey(roomNumber), cache.StatsKey)
	}
	return person, nil
}

// ReassignPerson moves the person to the room named by roomRef, or
// unassigns them when roomRef is nil.
//
// The destination is attached before the current room is detached. If the
// destination is full the operation aborts with the person still fully in
// their current room; the reverse order could release a slot that is never
// reclaimed.
func (s *Service) ReassignPerson(ctx context.Context, personID uuid.UUID, roomRef *string) (*models.Person, error) {
	var (
		person  *models.Person
		touched []string
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		touched = touched[:0]

		p, err := tx.People().GetByID(ctx, personID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.ErrPersonNotFound
		}

		current, err := s.currentRoom(ctx, tx, p)
		if err != nil {
			return err
		}

		var dest *models.Room
		if roomRef != nil {
			dest, err = ResolveRoomRef(ctx, tx.Rooms(), *roomRef)
			if err != nil {
				return err
			}
			if dest == nil {
				return repository.ErrRoomNotFound
			}
		}

		// Same room: no-op, occupancy untouched.
		if dest != nil && current != nil && dest.ID == current.ID {
			person = p
			return nil
		}
		// Already unassigned: nothing to move, but normalize a stale ref.
		if dest == nil && current == nil {
			if p.RoomRef != nil {
				if err := tx.People().SetRoomRef(ctx, p.ID, nil); err != nil {
					return err
				}
				p.RoomRef = nil
			}
			person = p
			return nil
		}

		if dest != nil {
			if _, err := tx.Rooms().TryAttach(ctx, dest.ID, p.ID); err != nil {
				return err
			}
			touched = append(touched, dest.Number)
		}
		if current != nil {
			if _, err := tx.Rooms().TryDetach(ctx, current.ID, p.ID); err != nil {
				// A phantom ref: the person's RoomRef named a room
				// that neither lists them nor has any occupancy.
				// The move itself is sound, so proceed and let the
				// ref update below erase the phantom.
				if !errors.Is(err, repository.ErrNotAMember) {
					return err
				}
			} else {
				touched = append(touched, current.Number)
			}
		}

		var ref *string
		if dest != nil {
			ref = &dest.Number
		}
		if err := tx.People().SetRoomRef(ctx, p.ID, ref); err != nil {
			return err
		}
		p.RoomRef = ref
		person = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateRooms(ctx, touched)
	return person, nil
}

// RemovePerson detaches the person from the room and clears their ref. If
// the person held the room's lead role, the designation is cleared in the
// same transaction.
func (s *Service) RemovePerson(ctx context.Context, personID, roomID uuid.UUID) error {
	var number string
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.People().GetByID(ctx, personID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.ErrPersonNotFound
		}

		room, err := tx.Rooms().TryDetach(ctx, roomID, personID)
		if err != nil {
			return err
		}
		if room.LeadID != nil && *room.LeadID == personID {
			if err := tx.Rooms().ClearLead(ctx, roomID, personID); err != nil {
				return err
			}
		}
		if err := tx.People().SetRoomRef(ctx, personID, nil); err != nil {
			return err
		}
		number = room.Number
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateRooms(ctx, []string{number})
	return nil
}

// DeletePerson soft-deletes the person, first detaching them from any
// room they occupy so no membership entry outlives its person.
func (s *Service) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	var touched []string
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.People().GetByID(ctx, personID)
		if err != nil {
			return err
		}
		if p == nil {
			return repository.ErrPersonNotFound
		}

		current, err := s.currentRoom(ctx, tx, p)
		if err != nil {
			return err
		}
		if current != nil {
			if _, err := tx.Rooms().TryDetach(ctx, current.ID, p.ID); err != nil {
				if !errors.Is(err, repository.ErrNotAMember) {
					return err
				}
			} else {
				touched = append(touched, current.Number)
			}
			if current.LeadID != nil && *current.LeadID == personID {
				if err := tx.Rooms().ClearLead(ctx, current.ID, personID); err != nil {
					return err
				}
			}
		}
		return tx.People().SoftDelete(ctx, personID)
	})
	if err != nil {
		return err
	}
	s.invalidateRooms(ctx, touched)
	return nil
}

// SetRoomLead designates a current member as the room's lead.
func (s *Service) SetRoomLead(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error) {
	room, err := s.store.Rooms().SetLead(ctx, roomID, personID)
	if err != nil {
		return nil, err
	}
	s.invalidateRooms(ctx, []string{room.Number})
	return room, nil
}

// ListAvailableRooms returns active rooms with free capacity.
func (s *Service) ListAvailableRooms(ctx context.Context) ([]models.Room, error) {
	return s.store.Rooms().ListAvailable(ctx)
}

// currentRoom resolves the room the person occupies right now. The room
// member lists are the source of truth; the person's RoomRef is only a
// fallback for drifted data where no room lists them.
func (s *Service) currentRoom(ctx context.Context, tx repository.Store, p *models.Person) (*models.Room, error) {
	room, err := tx.Rooms().FindByMember(ctx, p.ID)
	if err != nil || room != nil {
		return room, err
	}
	if p.RoomRef == nil {
		return nil, nil
	}
	return ResolveRoomRef(ctx, tx.Rooms(), *p.RoomRef)
}

func (s *Service) invalidateRooms(ctx context.Context, numbers []string) {
	if len(numbers) == 0 {
		return
	}
	keys := make([]string, 0, len(numbers)+1)
	for _, n := range numbers {
		keys = append(keys, cache.RoomKey(n))
	}
	keys = append(keys, cache.StatsKey)
	s.cache.Invalidate(ctx, keys...)
}

// Package memory is an in-memory repository.Store with the same conditional
// write and transaction semantics as the Postgres store. Tests run against
// it; transactions work on a deep copy of the state that replaces the
// committed state only when the closure succeeds, so an aborted operation
// really does leave nothing behind.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

type data struct {
	rooms       map[uuid.UUID]*models.Room
	people      map[uuid.UUID]*models.Person
	events      []models.CheckEvent
	staff       map[uuid.UUID]*models.Staff
	nextEventID int64
}

func newData() *data {
	return &data{
		rooms:       map[uuid.UUID]*models.Room{},
		people:      map[uuid.UUID]*models.Person{},
		staff:       map[uuid.UUID]*models.Staff{},
		nextEventID: 1,
	}
}

func (d *data) clone() *data {
	c := &data{
		rooms:       make(map[uuid.UUID]*models.Room, len(d.rooms)),
		people:      make(map[uuid.UUID]*models.Person, len(d.people)),
		events:      append([]models.CheckEvent(nil), d.events...),
		staff:       make(map[uuid.UUID]*models.Staff, len(d.staff)),
		nextEventID: d.nextEventID,
	}
	for id, r := range d.rooms {
		c.rooms[id] = copyRoom(r)
	}
	for id, p := range d.people {
		c.people[id] = copyPerson(p)
	}
	for id, st := range d.staff {
		cp := *st
		c.staff[id] = &cp
	}
	return c
}

func copyRoom(r *models.Room) *models.Room {
	c := *r
	c.MemberIDs = append([]uuid.UUID(nil), r.MemberIDs...)
	if r.LeadID != nil {
		lead := *r.LeadID
		c.LeadID = &lead
	}
	return &c
}

func copyPerson(p *models.Person) *models.Person {
	c := *p
	if p.RoomRef != nil {
		ref := *p.RoomRef
		c.RoomRef = &ref
	}
	return &c
}

// session is where a repository call executes: the committed state under
// the lock, or a transaction's working copy.
type session interface {
	do(fn func(d *data) error) error
}

// Store is the committed state. Safe for concurrent use; each call (and
// each whole transaction) holds the single mutex. Repositories handed out
// by a transaction never touch the mutex: the transaction already owns it.
type Store struct {
	mu    sync.Mutex
	state *data
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newData()}
}

func (s *Store) do(fn func(d *data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) Rooms() repository.RoomRepository { return &roomRepo{s: s} }

func (s *Store) People() repository.PersonRepository { return &personRepo{s: s} }

func (s *Store) Events() repository.EventRepository { return &eventRepo{s: s} }

func (s *Store) Staff() repository.StaffRepository { return &staffRepo{s: s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&txStore{work: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// txStore is a Store bound to an uncommitted working copy. The root mutex
// is held for the duration of the transaction, so no extra locking here.
type txStore struct {
	work *data
}

var _ repository.Store = (*txStore)(nil)

func (t *txStore) do(fn func(d *data) error) error { return fn(t.work) }

func (t *txStore) Rooms() repository.RoomRepository { return &roomRepo{s: t} }

func (t *txStore) People() repository.PersonRepository { return &personRepo{s: t} }

func (t *txStore) Events() repository.EventRepository { return &eventRepo{s: t} }

func (t *txStore) Staff() repository.StaffRepository { return &staffRepo{s: t} }

func (t *txStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

// ---------------------------------------------------------------------------

type roomRepo struct {
	s session
}

func (r *roomRepo) Create(ctx context.Context, number string, capacity int) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		for _, existing := range d.rooms {
			if existing.Number == number {
				return repository.ErrDuplicateRoom
			}
		}
		now := time.Now()
		rm := &models.Room{
			ID:        uuid.New(),
			Number:    number,
			Capacity:  capacity,
			MemberIDs: []uuid.UUID{},
			Version:   1,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.rooms[rm.ID] = rm
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) GetByID(ctx context.Context, id uuid.UUID) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		if rm, ok := d.rooms[id]; ok {
			room = copyRoom(rm)
		}
		return nil
	})
	return room, err
}

func (r *roomRepo) GetByNumber(ctx context.Context, number string) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		for _, rm := range d.rooms {
			if rm.Number == number {
				room = copyRoom(rm)
				return nil
			}
		}
		return nil
	})
	return room, err
}

func (r *roomRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (rooms []models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rooms = make([]models.Room, 0, len(ids))
		for _, id := range ids {
			if rm, ok := d.rooms[id]; ok {
				rooms = append(rooms, *copyRoom(rm))
			}
		}
		return nil
	})
	return rooms, err
}

func (r *roomRepo) GetByNumbers(ctx context.Context, numbers []string) (rooms []models.Room, err error) {
	want := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	err = r.s.do(func(d *data) error {
		rooms = make([]models.Room, 0, len(numbers))
		for _, rm := range d.rooms {
			if want[rm.Number] {
				rooms = append(rooms, *copyRoom(rm))
			}
		}
		return nil
	})
	sortRoomsByNumber(rooms)
	return rooms, err
}

func (r *roomRepo) List(ctx context.Context) (rooms []models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rooms = make([]models.Room, 0, len(d.rooms))
		for _, rm := range d.rooms {
			rooms = append(rooms, *copyRoom(rm))
		}
		return nil
	})
	sortRoomsByNumber(rooms)
	return rooms, err
}

func (r *roomRepo) ListAvailable(ctx context.Context) (rooms []models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rooms = make([]models.Room, 0)
		for _, rm := range d.rooms {
			if rm.Available() {
				rooms = append(rooms, *copyRoom(rm))
			}
		}
		return nil
	})
	sortRoomsByNumber(rooms)
	return rooms, err
}

func (r *roomRepo) FindByMember(ctx context.Context, personID uuid.UUID) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		for _, rm := range d.rooms {
			if rm.HasMember(personID) {
				room = copyRoom(rm)
				return nil
			}
		}
		return nil
	})
	return room, err
}

func (r *roomRepo) TryAttach(ctx context.Context, roomID, personID uuid.UUID) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		switch {
		case !ok:
			return repository.ErrRoomNotFound
		case !rm.Active:
			return repository.ErrRoomInactive
		case rm.HasMember(personID):
			return repository.ErrAlreadyMember
		case rm.Occupancy >= rm.Capacity:
			return repository.ErrRoomFull
		}
		rm.Occupancy++
		rm.MemberIDs = append(rm.MemberIDs, personID)
		rm.Version++
		rm.UpdatedAt = time.Now()
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) TryDetach(ctx context.Context, roomID, personID uuid.UUID) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		if !rm.HasMember(personID) && rm.Occupancy < 1 {
			return repository.ErrNotAMember
		}
		if rm.Occupancy > 0 {
			rm.Occupancy--
		}
		members := rm.MemberIDs[:0]
		for _, id := range rm.MemberIDs {
			if id != personID {
				members = append(members, id)
			}
		}
		rm.MemberIDs = members
		rm.Version++
		rm.UpdatedAt = time.Now()
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) UpdateCapacity(ctx context.Context, roomID uuid.UUID, capacity int) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		if rm.Occupancy > capacity {
			return repository.ErrCapacityBelowOccupancy
		}
		rm.Capacity = capacity
		rm.Version++
		rm.UpdatedAt = time.Now()
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) SetActive(ctx context.Context, roomID uuid.UUID, active bool) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		rm.Active = active
		rm.Version++
		rm.UpdatedAt = time.Now()
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) SetLead(ctx context.Context, roomID, personID uuid.UUID) (room *models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		if !rm.HasMember(personID) {
			return repository.ErrNotAMember
		}
		lead := personID
		rm.LeadID = &lead
		rm.Version++
		rm.UpdatedAt = time.Now()
		room = copyRoom(rm)
		return nil
	})
	return room, err
}

func (r *roomRepo) ClearLead(ctx context.Context, roomID, personID uuid.UUID) error {
	return r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok || rm.LeadID == nil || *rm.LeadID != personID {
			return nil
		}
		rm.LeadID = nil
		rm.Version++
		rm.UpdatedAt = time.Now()
		return nil
	})
}

func (r *roomRepo) SetMembership(ctx context.Context, roomID uuid.UUID, memberIDs []uuid.UUID, occupancy int) error {
	return r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		rm.MemberIDs = append([]uuid.UUID{}, memberIDs...)
		rm.Occupancy = occupancy
		rm.Version++
		rm.UpdatedAt = time.Now()
		return nil
	})
}

func (r *roomRepo) ScanOccupied(ctx context.Context, afterID uuid.UUID, limit int) (rooms []models.Room, err error) {
	err = r.s.do(func(d *data) error {
		rooms = make([]models.Room, 0)
		for _, rm := range d.rooms {
			if (rm.Occupancy > 0 || len(rm.MemberIDs) > 0) && idAfter(rm.ID, afterID) {
				rooms = append(rooms, *copyRoom(rm))
			}
		}
		return nil
	})
	sortRoomsByID(rooms)
	if len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms, err
}

func (r *roomRepo) Delete(ctx context.Context, roomID uuid.UUID) error {
	return r.s.do(func(d *data) error {
		rm, ok := d.rooms[roomID]
		if !ok {
			return repository.ErrRoomNotFound
		}
		if rm.Occupancy > 0 || len(rm.MemberIDs) > 0 {
			return repository.ErrRoomOccupied
		}
		delete(d.rooms, roomID)
		return nil
	})
}

// ---------------------------------------------------------------------------

type personRepo struct {
	s session
}

func (r *personRepo) Create(ctx context.Context, firstName, lastName, email string) (person *models.Person, err error) {
	err = r.s.do(func(d *data) error {
		now := time.Now()
		p := &models.Person{
			ID:        uuid.New(),
			FirstName: firstName,
			LastName:  lastName,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.people[p.ID] = p
		person = copyPerson(p)
		return nil
	})
	return person, err
}

func (r *personRepo) GetByID(ctx context.Context, id uuid.UUID) (person *models.Person, err error) {
	err = r.s.do(func(d *data) error {
		if p, ok := d.people[id]; ok && !p.Deleted {
			person = copyPerson(p)
		}
		return nil
	})
	return person, err
}

func (r *personRepo) List(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error) {
	return r.scan(afterID, limit, func(p *models.Person) bool { return !p.Deleted })
}

func (r *personRepo) SetRoomRef(ctx context.Context, personID uuid.UUID, roomRef *string) error {
	return r.s.do(func(d *data) error {
		p, ok := d.people[personID]
		if !ok || p.Deleted {
			return repository.ErrPersonNotFound
		}
		if roomRef == nil {
			p.RoomRef = nil
		} else {
			ref := *roomRef
			p.RoomRef = &ref
		}
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (r *personRepo) SoftDelete(ctx context.Context, personID uuid.UUID) error {
	return r.s.do(func(d *data) error {
		p, ok := d.people[personID]
		if !ok || p.Deleted {
			return repository.ErrPersonNotFound
		}
		p.Deleted = true
		p.RoomRef = nil
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (r *personRepo) ScanAssigned(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error) {
	return r.scan(afterID, limit, func(p *models.Person) bool {
		return !p.Deleted && p.RoomRef != nil
	})
}

func (r *personRepo) scan(afterID uuid.UUID, limit int, keep func(*models.Person) bool) (people []models.Person, err error) {
	err = r.s.do(func(d *data) error {
		people = make([]models.Person, 0)
		for _, p := range d.people {
			if keep(p) && idAfter(p.ID, afterID) {
				people = append(people, *copyPerson(p))
			}
		}
		return nil
	})
	sort.Slice(people, func(i, j int) bool {
		return idAfter(people[j].ID, people[i].ID)
	})
	if len(people) > limit {
		people = people[:limit]
	}
	return people, err
}

// ---------------------------------------------------------------------------

type eventRepo struct {
	s session
}

func (r *eventRepo) Append(ctx context.Context, personID uuid.UUID, kind, note string) (event *models.CheckEvent, err error) {
	err = r.s.do(func(d *data) error {
		e := models.CheckEvent{
			ID:        d.nextEventID,
			PersonID:  personID,
			Kind:      kind,
			Note:      note,
			CreatedAt: time.Now(),
		}
		d.nextEventID++
		d.events = append(d.events, e)
		event = &e
		return nil
	})
	return event, err
}

func (r *eventRepo) ListByPerson(ctx context.Context, personID uuid.UUID, before int64, limit int) (events []models.CheckEvent, err error) {
	err = r.s.do(func(d *data) error {
		events = make([]models.CheckEvent, 0)
		for i := len(d.events) - 1; i >= 0; i-- {
			e := d.events[i]
			if e.PersonID != personID {
				continue
			}
			if before > 0 && e.ID >= before {
				continue
			}
			events = append(events, e)
			if len(events) == limit {
				break
			}
		}
		return nil
	})
	return events, err
}

// ---------------------------------------------------------------------------

type staffRepo struct {
	s session
}

func (r *staffRepo) Create(ctx context.Context, email, displayName, passwordHash string) (staff *models.Staff, err error) {
	err = r.s.do(func(d *data) error {
		for _, st := range d.staff {
			if st.Email == email {
				return repository.ErrDuplicateEmail
			}
		}
		st := &models.Staff{
			ID:           uuid.New(),
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: passwordHash,
			CreatedAt:    time.Now(),
		}
		d.staff[st.ID] = st
		cp := *st
		staff = &cp
		return nil
	})
	return staff, err
}

func (r *staffRepo) GetByEmail(ctx context.Context, email string) (staff *models.Staff, err error) {
	err = r.s.do(func(d *data) error {
		for _, st := range d.staff {
			if st.Email == email {
				cp := *st
				staff = &cp
				return nil
			}
		}
		return nil
	})
	return staff, err
}

// ---------------------------------------------------------------------------

func idAfter(id, after uuid.UUID) bool {
	return strings.Compare(id.String(), after.String()) > 0
}

func sortRoomsByNumber(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Number < rooms[j].Number })
}

func sortRoomsByID(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool { return idAfter(rooms[j].ID, rooms[i].ID) })
}

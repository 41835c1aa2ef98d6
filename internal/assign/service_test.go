package assign

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/cache"
	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
	"github.com/lodgepole/campdesk/internal/repository/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, cache.Noop{}, zap.NewNop()), store
}

func mustRoom(t *testing.T, store *memory.Store, number string, capacity int) *models.Room {
	t.Helper()
	room, err := store.Rooms().Create(context.Background(), number, capacity)
	require.NoError(t, err)
	return room
}

func spec(name string) PersonSpec {
	return PersonSpec{FirstName: name, LastName: "Tester", Email: name + "@example.com"}
}

func TestCreatePersonWithRoom(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)
	require.NotNil(t, person.RoomRef)
	assert.Equal(t, "A-101", *person.RoomRef)

	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
	assert.True(t, got.HasMember(person.ID))
}

func TestCreatePersonWithRoom_Unassigned(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "")
	require.NoError(t, err)
	assert.Nil(t, person.RoomRef)
}

// A full room aborts the whole operation: no half-created person.
func TestCreatePersonWithRoom_FullRoomCreatesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	mustRoom(t, store, "A-101", 1)

	_, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)

	_, err = svc.CreatePersonWithRoom(ctx, spec("bob"), "A-101")
	assert.ErrorIs(t, err, repository.ErrRoomFull)

	people, err := store.People().List(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestCreatePersonWithRoom_UnknownRoom(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "Z-999")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	people, err := store.People().List(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestReassignPerson_MovesBetweenRooms(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	roomA := mustRoom(t, store, "A-101", 2)
	roomB := mustRoom(t, store, "B-201", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)

	dest := "B-201"
	moved, err := svc.ReassignPerson(ctx, person.ID, &dest)
	require.NoError(t, err)
	assert.Equal(t, "B-201", *moved.RoomRef)

	a, err := store.Rooms().GetByID(ctx, roomA.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Occupancy)
	assert.False(t, a.HasMember(person.ID))

	b, err := store.Rooms().GetByID(ctx, roomB.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Occupancy)
	assert.True(t, b.HasMember(person.ID))
}

// Destination full: the person stays fully in their original room. Both
// rooms are snapshotted before and after the rejected call.
func TestReassignPerson_FullDestinationLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	roomA := mustRoom(t, store, "A-101", 2)
	roomB := mustRoom(t, store, "B-201", 1)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)
	_, err = svc.CreatePersonWithRoom(ctx, spec("bob"), "B-201")
	require.NoError(t, err)

	beforeA, err := store.Rooms().GetByID(ctx, roomA.ID)
	require.NoError(t, err)
	beforeB, err := store.Rooms().GetByID(ctx, roomB.ID)
	require.NoError(t, err)

	dest := "B-201"
	_, err = svc.ReassignPerson(ctx, person.ID, &dest)
	assert.ErrorIs(t, err, repository.ErrRoomFull)

	afterA, err := store.Rooms().GetByID(ctx, roomA.ID)
	require.NoError(t, err)
	afterB, err := store.Rooms().GetByID(ctx, roomB.ID)
	require.NoError(t, err)

	assert.Equal(t, beforeA.Occupancy, afterA.Occupancy)
	assert.Equal(t, beforeA.MemberIDs, afterA.MemberIDs)
	assert.Equal(t, beforeB.Occupancy, afterB.Occupancy)
	assert.Equal(t, beforeB.MemberIDs, afterB.MemberIDs)

	got, err := store.People().GetByID(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-101", *got.RoomRef)
}

// Reassigning to the room the person already occupies is a no-op.
func TestReassignPerson_SameRoomNoOp(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "B-201", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "B-201")
	require.NoError(t, err)

	before, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)

	dest := "B-201"
	_, err = svc.ReassignPerson(ctx, person.ID, &dest)
	require.NoError(t, err)

	after, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Occupancy, after.Occupancy)
	assert.Equal(t, before.Version, after.Version)
}

func TestReassignPerson_Unassign(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)

	got, err := svc.ReassignPerson(ctx, person.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, got.RoomRef)

	current, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.Occupancy)
}

func TestReassignPerson_UnknownPerson(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	mustRoom(t, store, "A-101", 2)

	dest := "A-101"
	_, err := svc.ReassignPerson(ctx, uuid.New(), &dest)
	assert.ErrorIs(t, err, repository.ErrPersonNotFound)
}

// A legacy UUID-shaped ref still resolves: the member lists are empty for
// this person, so the current room comes from resolving the ref.
func TestReassignPerson_LegacyRefFallback(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	roomA := mustRoom(t, store, "A-101", 2)
	roomB := mustRoom(t, store, "B-201", 2)

	person, err := store.People().Create(ctx, "Ada", "Quinn", "ada@example.com")
	require.NoError(t, err)
	// Drifted state: ref holds the internal id, and the room's member
	// list never recorded the person but its counter did.
	legacyRef := roomA.ID.String()
	require.NoError(t, store.People().SetRoomRef(ctx, person.ID, &legacyRef))
	require.NoError(t, store.Rooms().SetMembership(ctx, roomA.ID, nil, 1))

	dest := "B-201"
	moved, err := svc.ReassignPerson(ctx, person.ID, &dest)
	require.NoError(t, err)
	assert.Equal(t, "B-201", *moved.RoomRef)

	a, err := store.Rooms().GetByID(ctx, roomA.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Occupancy)

	b, err := store.Rooms().GetByID(ctx, roomB.ID)
	require.NoError(t, err)
	assert.True(t, b.HasMember(person.ID))
}

func TestRemovePerson(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)
	_, err = svc.SetRoomLead(ctx, room.ID, person.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemovePerson(ctx, person.ID, room.ID))

	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupancy)
	assert.Nil(t, got.LeadID, "removing the lead clears the designation")

	p, err := store.People().GetByID(ctx, person.ID)
	require.NoError(t, err)
	assert.Nil(t, p.RoomRef)
}

func TestRemovePerson_NotAMember(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 2)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "")
	require.NoError(t, err)

	err = svc.RemovePerson(ctx, person.ID, room.ID)
	assert.ErrorIs(t, err, repository.ErrNotAMember)
}

func TestDeletePerson_FreesRoomSlot(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 1)

	person, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)

	require.NoError(t, svc.DeletePerson(ctx, person.ID))

	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupancy)

	// The slot is reusable immediately.
	_, err = svc.CreatePersonWithRoom(ctx, spec("bob"), "A-101")
	require.NoError(t, err)
}

func TestBulkAssign_CreatesRoomAndPeople(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	existing, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "")
	require.NoError(t, err)

	res, err := svc.BulkAssign(ctx, BulkAssignInput{
		RoomNumber:  "C-301",
		Capacity:    4,
		ExistingIDs: []uuid.UUID{existing.ID},
		NewPeople:   []PersonSpec{spec("bob"), spec("cyd")},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Errors)
	assert.Len(t, res.AssignedPeople, 1)
	assert.Len(t, res.CreatedPeople, 2)
	assert.Equal(t, 3, res.Room.Occupancy)
	assert.Equal(t, 4, res.Room.Capacity)

	room, err := store.Rooms().GetByNumber(ctx, "C-301")
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.True(t, room.HasMember(existing.ID))
}

// One bad item does not sink the batch: the missing person and the
// over-capacity newcomer are each reported, everything else proceeds, and
// the room's occupancy is untouched by the failures.
func TestBulkAssign_PartialFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 1)

	_, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)

	missing := uuid.New()
	res, err := svc.BulkAssign(ctx, BulkAssignInput{
		RoomNumber:  "A-101",
		Capacity:    1,
		ExistingIDs: []uuid.UUID{missing},
		NewPeople:   []PersonSpec{spec("bob")},
	})
	require.NoError(t, err)

	require.Len(t, res.Errors, 2)
	kinds := map[string]int{}
	for _, e := range res.Errors {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds["person_not_found"])
	assert.Equal(t, 1, kinds["room_full"])

	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
}

func TestBulkAssign_CapacityShrinkRejectedWholeBatch(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	mustRoom(t, store, "A-101", 3)

	_, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "A-101")
	require.NoError(t, err)
	_, err = svc.CreatePersonWithRoom(ctx, spec("bob"), "A-101")
	require.NoError(t, err)

	_, err = svc.BulkAssign(ctx, BulkAssignInput{
		RoomNumber: "A-101",
		Capacity:   1,
		NewPeople:  []PersonSpec{spec("cyd")},
	})
	assert.ErrorIs(t, err, repository.ErrCapacityBelowOccupancy)

	// Nothing was processed.
	people, err := store.People().List(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Len(t, people, 2)
}

func TestBulkAssign_GrowsCapacity(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	mustRoom(t, store, "A-101", 1)

	res, err := svc.BulkAssign(ctx, BulkAssignInput{
		RoomNumber: "A-101",
		Capacity:   3,
		NewPeople:  []PersonSpec{spec("ada"), spec("bob")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Room.Capacity)
	assert.Equal(t, 2, res.Room.Occupancy)
}

func TestListAvailableRooms(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	mustRoom(t, store, "A-101", 1)
	mustRoom(t, store, "B-201", 1)
	inactive := mustRoom(t, store, "C-301", 5)

	_, err := svc.CreatePersonWithRoom(ctx, spec("ada"), "B-201")
	require.NoError(t, err)
	_, err = store.Rooms().SetActive(ctx, inactive.ID, false)
	require.NoError(t, err)

	rooms, err := svc.ListAvailableRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "A-101", rooms[0].Number)
}

// Fill a two-bed room, reject the third camper, free a bed. The matching
// reconcile dry-run over this scenario lives in the reconcile package.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	room := mustRoom(t, store, "A-101", 2)

	p1, err := svc.CreatePersonWithRoom(ctx, spec("p1"), "A-101")
	require.NoError(t, err)
	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
	assert.Equal(t, []uuid.UUID{p1.ID}, got.MemberIDs)

	p2, err := svc.CreatePersonWithRoom(ctx, spec("p2"), "A-101")
	require.NoError(t, err)
	got, err = store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Occupancy)

	_, err = svc.CreatePersonWithRoom(ctx, spec("p3"), "A-101")
	assert.ErrorIs(t, err, repository.ErrRoomFull)
	got, err = store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Occupancy)

	require.NoError(t, svc.RemovePerson(ctx, p1.ID, room.ID))
	got, err = store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
	assert.Equal(t, []uuid.UUID{p2.ID}, got.MemberIDs)
}

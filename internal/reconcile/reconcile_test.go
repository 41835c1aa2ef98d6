package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/assign"
	"github.com/lodgepole/campdesk/internal/cache"
	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository/memory"
)

func newJob(t *testing.T, store *memory.Store, opts Options) *Job {
	t.Helper()
	return New(store, zap.NewNop(), opts)
}

func seedRoom(t *testing.T, store *memory.Store, number string, capacity int) *models.Room {
	t.Helper()
	room, err := store.Rooms().Create(context.Background(), number, capacity)
	require.NoError(t, err)
	return room
}

func seedAssigned(t *testing.T, store *memory.Store, name, ref string) *models.Person {
	t.Helper()
	ctx := context.Background()
	p, err := store.People().Create(ctx, name, "Tester", name+"@example.com")
	require.NoError(t, err)
	require.NoError(t, store.People().SetRoomRef(ctx, p.ID, &ref))
	return p
}

func TestBuildPlan_CleanStateIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := assign.NewService(store, cache.Noop{}, zap.NewNop())
	seedRoom(t, store, "A-101", 2)

	_, err := svc.CreatePersonWithRoom(ctx, assign.PersonSpec{
		FirstName: "Ada", LastName: "Quinn", Email: "ada@example.com",
	}, "A-101")
	require.NoError(t, err)

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.PeopleScanned)
	assert.Equal(t, 1, plan.RoomsChecked)
}

func TestBuildPlan_DetectsMissingMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	room := seedRoom(t, store, "A-101", 3)

	// Two people point at the room, but the room recorded neither.
	p1 := seedAssigned(t, store, "ada", "A-101")
	p2 := seedAssigned(t, store, "bob", "A-101")

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	fix := plan.Updates[0]
	assert.Equal(t, room.ID, fix.RoomID)
	assert.Equal(t, 2, fix.Occupancy)
	assert.Equal(t, 0, fix.WasOccupancy)
	assert.ElementsMatch(t, []uuid.UUID{p1.ID, p2.ID}, fix.MemberIDs)
}

func TestBuildPlan_DetectsStaleMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	room := seedRoom(t, store, "A-101", 3)

	p := seedAssigned(t, store, "ada", "A-101")
	ghost := uuid.New()
	// The room additionally lists a person who no longer references it.
	require.NoError(t, store.Rooms().SetMembership(ctx, room.ID, []uuid.UUID{p.ID, ghost}, 2))

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []uuid.UUID{p.ID}, plan.Updates[0].MemberIDs)
	assert.Equal(t, 1, plan.Updates[0].Occupancy)
}

// Applying a plan and rebuilding immediately yields an empty plan.
func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRoom(t, store, "A-101", 3)
	seedAssigned(t, store, "ada", "A-101")
	seedAssigned(t, store, "bob", "A-101")

	job := newJob(t, store, Options{})

	plan, err := job.BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.Updates, 1)

	res, err := job.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Zero(t, res.Failed)

	second, err := job.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Updates)
	assert.Empty(t, second.Prunes)
	assert.Empty(t, second.RefFixes)
}

func TestBuildPlan_LegacyRefResolvedAndNormalized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	room := seedRoom(t, store, "A-101", 3)

	p := seedAssigned(t, store, "ada", room.ID.String())

	job := newJob(t, store, Options{})
	plan, err := job.BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.RefFixes, 1)
	assert.Equal(t, p.ID, plan.RefFixes[0].PersonID)
	assert.Equal(t, "A-101", plan.RefFixes[0].To)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []uuid.UUID{p.ID}, plan.Updates[0].MemberIDs)

	_, err = job.Apply(ctx, plan)
	require.NoError(t, err)

	got, err := store.People().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "A-101", *got.RoomRef)

	second, err := job.BuildPlan(ctx)
	require.NoError(t, err)
	assert.True(t, second.Empty())
}

func TestBuildPlan_UnresolvableRefReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	p := seedAssigned(t, store, "ada", uuid.New().String())

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.MissingRoomRefs, 1)
	assert.Equal(t, p.ID, plan.MissingRoomRefs[0].PersonID)
	assert.Empty(t, plan.Updates)
}

func TestBuildPlan_MissingRoomReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seedAssigned(t, store, "ada", "Z-999")
	seedAssigned(t, store, "bob", "Z-999")

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.MissingRooms, 1)
	assert.Equal(t, "Z-999", plan.MissingRooms[0].RoomNumber)
	assert.Equal(t, 2, plan.MissingRooms[0].ExpectedOccupancy)
}

// Over-capacity rooms are reported but not repaired unless the operator
// overrides: a silent repair would violate the capacity invariant.
func TestBuildPlan_OverCapacitySkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRoom(t, store, "A-101", 1)

	seedAssigned(t, store, "ada", "A-101")
	seedAssigned(t, store, "bob", "A-101")

	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.OverCapacity, 1)
	assert.Equal(t, 2, plan.OverCapacity[0].ExpectedOccupancy)
	assert.Empty(t, plan.Updates)

	override, err := newJob(t, store, Options{AllowOverCapacity: true}).BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, override.Updates, 1)
	assert.Equal(t, 2, override.Updates[0].Occupancy)
}

func TestBuildPlan_PruneUnreferencedRooms(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orphan := seedRoom(t, store, "D-401", 4)
	require.NoError(t, store.Rooms().SetMembership(ctx, orphan.ID, []uuid.UUID{uuid.New()}, 1))

	// Without prune mode the orphan room is left alone.
	plan, err := newJob(t, store, Options{}).BuildPlan(ctx)
	require.NoError(t, err)
	assert.Empty(t, plan.Prunes)

	job := newJob(t, store, Options{Prune: true})
	plan, err = job.BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.Prunes, 1)
	assert.Equal(t, orphan.ID, plan.Prunes[0].RoomID)
	assert.Equal(t, 1, plan.Prunes[0].WasOccupancy)

	_, err = job.Apply(ctx, plan)
	require.NoError(t, err)

	got, err := store.Rooms().GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupancy)
	assert.Empty(t, got.MemberIDs)
}

func TestBuildPlan_SingleRoomFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRoom(t, store, "A-101", 2)
	seedRoom(t, store, "B-201", 2)

	seedAssigned(t, store, "ada", "A-101")
	seedAssigned(t, store, "bob", "B-201")

	plan, err := newJob(t, store, Options{Room: "B-201"}).BuildPlan(ctx)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "B-201", plan.Updates[0].RoomNumber)
}

// Pagination exercises the keyset cursors: more people than one page.
func TestBuildPlan_PagesThroughLargeScans(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedRoom(t, store, "A-101", 50)

	for i := 0; i < 17; i++ {
		seedAssigned(t, store, "camper", "A-101")
	}

	plan, err := newJob(t, store, Options{PageSize: 5}).BuildPlan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 17, plan.PeopleScanned)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, 17, plan.Updates[0].Occupancy)
}

// The live end-to-end scenario ends drift-free: after attach, reject and
// detach through the orchestrator, a dry run over the room reports nothing.
func TestDryRunAfterLiveTraffic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := assign.NewService(store, cache.Noop{}, zap.NewNop())
	room := seedRoom(t, store, "A-101", 2)

	p1, err := svc.CreatePersonWithRoom(ctx, assign.PersonSpec{
		FirstName: "P1", LastName: "Tester", Email: "p1@example.com",
	}, "A-101")
	require.NoError(t, err)
	_, err = svc.CreatePersonWithRoom(ctx, assign.PersonSpec{
		FirstName: "P2", LastName: "Tester", Email: "p2@example.com",
	}, "A-101")
	require.NoError(t, err)
	_, err = svc.CreatePersonWithRoom(ctx, assign.PersonSpec{
		FirstName: "P3", LastName: "Tester", Email: "p3@example.com",
	}, "A-101")
	require.Error(t, err)

	require.NoError(t, svc.RemovePerson(ctx, p1.ID, room.ID))

	plan, err := newJob(t, store, Options{Room: "A-101"}).BuildPlan(ctx)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

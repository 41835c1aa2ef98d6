package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

func TestTryAttach_CapacityGuard(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 2)
	require.NoError(t, err)

	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()

	got, err := store.Rooms().TryAttach(ctx, room.ID, p1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
	assert.True(t, got.HasMember(p1))
	assert.Equal(t, int64(2), got.Version)

	got, err = store.Rooms().TryAttach(ctx, room.ID, p2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Occupancy)

	_, err = store.Rooms().TryAttach(ctx, room.ID, p3)
	assert.ErrorIs(t, err, repository.ErrRoomFull)

	// The rejected attach left nothing behind.
	current, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Occupancy)
	assert.Len(t, current.MemberIDs, 2)
}

func TestTryAttach_AlreadyMember(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 3)
	require.NoError(t, err)

	p := uuid.New()
	_, err = store.Rooms().TryAttach(ctx, room.ID, p)
	require.NoError(t, err)

	_, err = store.Rooms().TryAttach(ctx, room.ID, p)
	assert.ErrorIs(t, err, repository.ErrAlreadyMember)

	current, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Occupancy)
}

func TestTryAttach_InactiveRoom(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 3)
	require.NoError(t, err)
	_, err = store.Rooms().SetActive(ctx, room.ID, false)
	require.NoError(t, err)

	_, err = store.Rooms().TryAttach(ctx, room.ID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrRoomInactive)
}

func TestTryAttach_UnknownRoom(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Rooms().TryAttach(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)
}

// Exactly min(capacity, attempts) of a burst of concurrent attaches may
// win; the rest get ErrRoomFull and the counters stay consistent.
func TestTryAttach_ConcurrentNeverOvercommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	const capacity = 5
	const attempts = 40

	room, err := store.Rooms().Create(ctx, "A-101", capacity)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		fullErrs int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Rooms().TryAttach(ctx, room.ID, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, repository.ErrRoomFull):
				fullErrs++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, wins)
	assert.Equal(t, attempts-capacity, fullErrs)

	final, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, final.Occupancy)
	assert.Len(t, final.MemberIDs, capacity)
}

func TestTryDetach(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 2)
	require.NoError(t, err)

	p1, p2 := uuid.New(), uuid.New()
	_, err = store.Rooms().TryAttach(ctx, room.ID, p1)
	require.NoError(t, err)
	_, err = store.Rooms().TryAttach(ctx, room.ID, p2)
	require.NoError(t, err)

	got, err := store.Rooms().TryDetach(ctx, room.ID, p1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Occupancy)
	assert.False(t, got.HasMember(p1))
	assert.True(t, got.HasMember(p2))
}

// A detach of a non-member still succeeds while occupancy >= 1. This is
// the drift-tolerance fallback; the reconcile job is the real fix for the
// underlying drift.
func TestTryDetach_DriftFallback(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 2)
	require.NoError(t, err)

	// Manufacture drift: occupancy says 1, member list is empty.
	require.NoError(t, store.Rooms().SetMembership(ctx, room.ID, nil, 1))

	got, err := store.Rooms().TryDetach(ctx, room.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupancy)

	// With occupancy at zero the fallback no longer applies.
	_, err = store.Rooms().TryDetach(ctx, room.ID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotAMember)
}

func TestUpdateCapacity_RejectsShrinkBelowOccupancy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 3)
	require.NoError(t, err)
	_, err = store.Rooms().TryAttach(ctx, room.ID, uuid.New())
	require.NoError(t, err)
	_, err = store.Rooms().TryAttach(ctx, room.ID, uuid.New())
	require.NoError(t, err)

	_, err = store.Rooms().UpdateCapacity(ctx, room.ID, 1)
	assert.ErrorIs(t, err, repository.ErrCapacityBelowOccupancy)

	got, err := store.Rooms().UpdateCapacity(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Capacity)
}

func TestCreate_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Rooms().Create(ctx, "A-101", 2)
	require.NoError(t, err)
	_, err = store.Rooms().Create(ctx, "A-101", 4)
	assert.ErrorIs(t, err, repository.ErrDuplicateRoom)
}

func TestWithTx_RollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	room, err := store.Rooms().Create(ctx, "A-101", 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Rooms().TryAttach(ctx, room.ID, uuid.New()); err != nil {
			return err
		}
		if _, err := tx.People().Create(ctx, "Ada", "Quinn", "ada@example.com"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Rooms().GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Occupancy)
	assert.Empty(t, got.MemberIDs)

	people, err := store.People().List(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestWithTx_CommitIsVisible(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var created *models.Person
	err := store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.People().Create(ctx, "Ada", "Quinn", "ada@example.com")
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	require.NoError(t, err)

	got, err := store.People().GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.FirstName)
}

func TestSoftDelete_HidesPerson(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p, err := store.People().Create(ctx, "Ada", "Quinn", "ada@example.com")
	require.NoError(t, err)
	ref := "A-101"
	require.NoError(t, store.People().SetRoomRef(ctx, p.ID, &ref))

	require.NoError(t, store.People().SoftDelete(ctx, p.ID))

	got, err := store.People().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assigned, err := store.People().ScanAssigned(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

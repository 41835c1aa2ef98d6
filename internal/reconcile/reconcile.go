// Package reconcile detects and repairs drift between the Person room
// refs and the Room membership lists. It is the offline complement to the
// assignment orchestrator: the orchestrator prevents new drift under
// concurrent traffic, this job repairs drift that already exists (data
// migrations, out-of-band writes).
//
// The job is dry-run by default and idempotent: applying a plan and
// rebuilding it immediately yields an empty plan. Applies are best-effort
// bulk writes, not one transaction, which is acceptable only because the
// job runs operator-gated while mutating traffic on the same rooms is
// paused.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

type Options struct {
	// Room restricts the run to a single room number.
	Room string

	// Prune clears occupancy on rooms no person references at all.
	Prune bool

	// AllowOverCapacity repairs rooms even when the expected membership
	// exceeds capacity. Off by default: such a repair silently violates
	// the capacity invariant.
	AllowOverCapacity bool

	// PageSize bounds every scan page. Defaults to 500.
	PageSize int
}

// MembershipFix is one queued corrective write: the room's member list and
// occupancy are overwritten with the expected values.
type MembershipFix struct {
	RoomID       uuid.UUID   `json:"room_id"`
	RoomNumber   string      `json:"room_number"`
	MemberIDs    []uuid.UUID `json:"member_ids"`
	Occupancy    int         `json:"occupancy"`
	WasOccupancy int         `json:"was_occupancy"`
	WasMemberIDs []uuid.UUID `json:"was_member_ids"`
}

// RefFix normalizes a legacy UUID-shaped Person.RoomRef to the room number.
type RefFix struct {
	PersonID uuid.UUID `json:"person_id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
}

// MissingRef is a Person.RoomRef nothing resolves; its person is excluded
// from expected membership.
type MissingRef struct {
	PersonID uuid.UUID `json:"person_id"`
	RoomRef  string    `json:"room_ref"`
}

// MissingRoom is a room number people reference but no Room record carries.
type MissingRoom struct {
	RoomNumber        string `json:"room_number"`
	ExpectedOccupancy int    `json:"expected_occupancy"`
}

// OverCapacityRoom is a room whose expected membership exceeds capacity;
// skipped from repair unless the override is set.
type OverCapacityRoom struct {
	RoomNumber        string `json:"room_number"`
	Capacity          int    `json:"capacity"`
	ExpectedOccupancy int    `json:"expected_occupancy"`
}

type Plan struct {
	Updates         []MembershipFix    `json:"updates"`
	Prunes          []MembershipFix    `json:"prunes"`
	RefFixes        []RefFix           `json:"ref_fixes"`
	MissingRoomRefs []MissingRef       `json:"missing_room_refs"`
	MissingRooms    []MissingRoom      `json:"missing_rooms"`
	OverCapacity    []OverCapacityRoom `json:"over_capacity"`
	PeopleScanned   int                `json:"people_scanned"`
	RoomsChecked    int                `json:"rooms_checked"`
}

// Empty reports whether the plan queues no writes and found no anomalies.
func (p *Plan) Empty() bool {
	return len(p.Updates) == 0 && len(p.Prunes) == 0 && len(p.RefFixes) == 0 &&
		len(p.MissingRoomRefs) == 0 && len(p.MissingRooms) == 0 && len(p.OverCapacity) == 0
}

// ApplyResult reports the best-effort apply outcome.
type ApplyResult struct {
	Applied int      `json:"applied"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type Job struct {
	store  repository.Store
	logger *zap.Logger
	opts   Options
}

func New(store repository.Store, logger *zap.Logger, opts Options) *Job {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	return &Job{store: store, logger: logger, opts: opts}
}

// assignedRef is one scanned person together with their raw room ref.
type assignedRef struct {
	personID uuid.UUID
	ref      string
}

// BuildPlan computes the drift plan without writing anything.
func (j *Job) BuildPlan(ctx context.Context) (*Plan, error) {
	plan := &Plan{
		Updates:         []MembershipFix{},
		Prunes:          []MembershipFix{},
		RefFixes:        []RefFix{},
		MissingRoomRefs: []MissingRef{},
		MissingRooms:    []MissingRoom{},
		OverCapacity:    []OverCapacityRoom{},
	}

	refs, err := j.scanAssignedRefs(ctx, plan)
	if err != nil {
		return nil, err
	}

	legacy, err := j.legacyLookup(ctx, refs)
	if err != nil {
		return nil, err
	}

	// Expected membership: roomNumber -> set of person ids.
	expected := map[string]map[uuid.UUID]bool{}
	for _, ar := range refs {
		number := ar.ref
		if _, parseErr := uuid.Parse(ar.ref); parseErr == nil {
			resolved, ok := legacy[ar.ref]
			if !ok {
				plan.MissingRoomRefs = append(plan.MissingRoomRefs, MissingRef{
					PersonID: ar.personID,
					RoomRef:  ar.ref,
				})
				continue
			}
			number = resolved
		}
		if j.opts.Room != "" && number != j.opts.Room {
			continue
		}
		if number != ar.ref {
			plan.RefFixes = append(plan.RefFixes, RefFix{
				PersonID: ar.personID,
				From:     ar.ref,
				To:       number,
			})
		}
		set := expected[number]
		if set == nil {
			set = map[uuid.UUID]bool{}
			expected[number] = set
		}
		set[ar.personID] = true
	}

	if err := j.diffRooms(ctx, expected, plan); err != nil {
		return nil, err
	}

	if j.opts.Prune {
		if err := j.planPrunes(ctx, expected, plan); err != nil {
			return nil, err
		}
	}

	sortPlan(plan)
	return plan, nil
}

// scanAssignedRefs pages through every non-deleted person with a non-nil
// room ref. Keyset cursors keep memory bounded regardless of camp size.
func (j *Job) scanAssignedRefs(ctx context.Context, plan *Plan) ([]assignedRef, error) {
	var (
		refs  []assignedRef
		after uuid.UUID
	)
	for {
		page, err := j.store.People().ScanAssigned(ctx, after, j.opts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("scan assigned people: %w", err)
		}
		for _, p := range page {
			refs = append(refs, assignedRef{personID: p.ID, ref: *p.RoomRef})
		}
		plan.PeopleScanned += len(page)
		if len(page) < j.opts.PageSize {
			return refs, nil
		}
		after = page[len(page)-1].ID
	}
}

// legacyLookup resolves every UUID-shaped ref through one batched room
// read, so resolution costs one query per run instead of one per person.
func (j *Job) legacyLookup(ctx context.Context, refs []assignedRef) (map[string]string, error) {
	var ids []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, ar := range refs {
		if id, err := uuid.Parse(ar.ref); err == nil && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	lookup := map[string]string{}
	if len(ids) == 0 {
		return lookup, nil
	}
	rooms, err := j.store.Rooms().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve legacy refs: %w", err)
	}
	for _, r := range rooms {
		lookup[r.ID.String()] = r.Number
	}
	return lookup, nil
}

// diffRooms loads the actual room for every expected number and queues a
// corrective write wherever membership or occupancy disagrees.
func (j *Job) diffRooms(ctx context.Context, expected map[string]map[uuid.UUID]bool, plan *Plan) error {
	numbers := make([]string, 0, len(expected))
	for n := range expected {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	rooms, err := j.store.Rooms().GetByNumbers(ctx, numbers)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	byNumber := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		byNumber[r.Number] = r
	}

	for _, number := range numbers {
		want := sortedIDs(expected[number])
		room, ok := byNumber[number]
		if !ok {
			plan.MissingRooms = append(plan.MissingRooms, MissingRoom{
				RoomNumber:        number,
				ExpectedOccupancy: len(want),
			})
			continue
		}
		plan.RoomsChecked++

		if len(want) > room.Capacity {
			plan.OverCapacity = append(plan.OverCapacity, OverCapacityRoom{
				RoomNumber:        number,
				Capacity:          room.Capacity,
				ExpectedOccupancy: len(want),
			})
			if !j.opts.AllowOverCapacity {
				continue
			}
		}

		if room.Occupancy == len(want) && sameIDs(room.MemberIDs, want) {
			continue
		}
		plan.Updates = append(plan.Updates, MembershipFix{
			RoomID:       room.ID,
			RoomNumber:   room.Number,
			MemberIDs:    want,
			Occupancy:    len(want),
			WasOccupancy: room.Occupancy,
			WasMemberIDs: room.MemberIDs,
		})
	}
	return nil
}

// planPrunes queues a clearing write for every room that shows occupants
// even though no person references its number.
func (j *Job) planPrunes(ctx context.Context, expected map[string]map[uuid.UUID]bool, plan *Plan) error {
	var after uuid.UUID
	for {
		page, err := j.store.Rooms().ScanOccupied(ctx, after, j.opts.PageSize)
		if err != nil {
			return fmt.Errorf("scan occupied rooms: %w", err)
		}
		for _, r := range page {
			if _, referenced := expected[r.Number]; referenced {
				continue
			}
			if j.opts.Room != "" && r.Number != j.opts.Room {
				continue
			}
			plan.Prunes = append(plan.Prunes, MembershipFix{
				RoomID:       r.ID,
				RoomNumber:   r.Number,
				MemberIDs:    []uuid.UUID{},
				Occupancy:    0,
				WasOccupancy: r.Occupancy,
				WasMemberIDs: r.MemberIDs,
			})
		}
		if len(page) < j.opts.PageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

// Apply executes the queued writes best-effort: one failing room does not
// stop the rest, and each write is its own statement rather than one big
// transaction.
func (j *Job) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	res := &ApplyResult{}

	fixes := make([]MembershipFix, 0, len(plan.Updates)+len(plan.Prunes))
	fixes = append(fixes, plan.Updates...)
	fixes = append(fixes, plan.Prunes...)
	for _, fix := range fixes {
		if err := j.store.Rooms().SetMembership(ctx, fix.RoomID, fix.MemberIDs, fix.Occupancy); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("room %s: %v", fix.RoomNumber, err))
			j.logger.Error("reconcile write failed",
				zap.String("room", fix.RoomNumber),
				zap.Error(err),
			)
			continue
		}
		res.Applied++
		j.logger.Info("reconciled room",
			zap.String("room", fix.RoomNumber),
			zap.Int("occupancy", fix.Occupancy),
			zap.Int("was_occupancy", fix.WasOccupancy),
		)
	}

	for _, fix := range plan.RefFixes {
		to := fix.To
		if err := j.store.People().SetRoomRef(ctx, fix.PersonID, &to); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("person %s: %v", fix.PersonID, err))
			j.logger.Error("ref normalization failed",
				zap.String("person_id", fix.PersonID.String()),
				zap.Error(err),
			)
			continue
		}
		res.Applied++
	}
	return res, nil
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]uuid.UUID(nil), a...)
	bs := append([]uuid.UUID(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i].String() < as[j].String() })
	sort.Slice(bs, func(i, j int) bool { return bs[i].String() < bs[j].String() })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortPlan(plan *Plan) {
	sort.Slice(plan.Updates, func(i, j int) bool { return plan.Updates[i].RoomNumber < plan.Updates[j].RoomNumber })
	sort.Slice(plan.Prunes, func(i, j int) bool { return plan.Prunes[i].RoomNumber < plan.Prunes[j].RoomNumber })
	sort.Slice(plan.MissingRooms, func(i, j int) bool { return plan.MissingRooms[i].RoomNumber < plan.MissingRooms[j].RoomNumber })
	sort.Slice(plan.OverCapacity, func(i, j int) bool { return plan.OverCapacity[i].RoomNumber < plan.OverCapacity[j].RoomNumber })
	sort.Slice(plan.MissingRoomRefs, func(i, j int) bool {
		return plan.MissingRoomRefs[i].PersonID.String() < plan.MissingRoomRefs[j].PersonID.String()
	})
	sort.Slice(plan.RefFixes, func(i, j int) bool {
		return plan.RefFixes[i].PersonID.String() < plan.RefFixes[j].PersonID.String()
	})
}

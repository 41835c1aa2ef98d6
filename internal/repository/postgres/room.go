package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

type RoomStore struct {
	q Querier
}

const roomColumns = `id, number, capacity, occupancy, member_ids, lead_id, version, active, created_at, updated_at`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.ID,
		&r.Number,
		&r.Capacity,
		&r.Occupancy,
		&r.MemberIDs,
		&r.LeadID,
		&r.Version,
		&r.Active,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRooms(rows pgx.Rows) ([]models.Room, error) {
	defer rows.Close()

	rooms := make([]models.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

func (s *RoomStore) Create(ctx context.Context, number string, capacity int) (*models.Room, error) {
	query := `
		INSERT INTO rooms (id, number, capacity, occupancy, member_ids, version, active, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, 0, '{}', 1, TRUE, now(), now())
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, number, capacity))
	if err != nil {
		if uniqueViolation(err) {
			return nil, repository.ErrDuplicateRoom
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) GetByNumber(ctx context.Context, number string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE number = $1`

	room, err := scanRoom(s.q.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room by number: %w", err)
	}
	return room, nil
}

func (s *RoomStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Room, error) {
	if len(ids) == 0 {
		return []models.Room{}, nil
	}
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ANY($1)`

	rows, err := s.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get rooms by ids: %w", err)
	}
	return collectRooms(rows)
}

func (s *RoomStore) GetByNumbers(ctx context.Context, numbers []string) ([]models.Room, error) {
	if len(numbers) == 0 {
		return []models.Room{}, nil
	}
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE number = ANY($1)`

	rows, err := s.q.Query(ctx, query, numbers)
	if err != nil {
		return nil, fmt.Errorf("get rooms by numbers: %w", err)
	}
	return collectRooms(rows)
}

func (s *RoomStore) List(ctx context.Context) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms ORDER BY number`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return collectRooms(rows)
}

func (s *RoomStore) ListAvailable(ctx context.Context) ([]models.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE active AND occupancy < capacity
		ORDER BY number`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list available rooms: %w", err)
	}
	return collectRooms(rows)
}

func (s *RoomStore) FindByMember(ctx context.Context, personID uuid.UUID) (*models.Room, error) {
	// At most one room lists a person at a committed instant; LIMIT 1
	// keeps the query cheap if drift ever breaks that.
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE member_ids @> ARRAY[$1]::uuid[]
		LIMIT 1`

	room, err := scanRoom(s.q.QueryRow(ctx, query, personID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find room by member: %w", err)
	}
	return room, nil
}

// TryAttach is a single conditional UPDATE: the active, membership and
// capacity guards are all in the WHERE clause, so two racing attaches on
// the last free slot serialize inside Postgres and exactly one wins.
func (s *RoomStore) TryAttach(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error) {
	query := `
		UPDATE rooms
		SET occupancy  = occupancy + 1,
		    member_ids = array_append(member_ids, $2),
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND active
		  AND NOT (member_ids @> ARRAY[$2]::uuid[])
		  AND occupancy < capacity
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, roomID, personID))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attach member: %w", err)
	}

	// The guard rejected the write; re-read to say which condition failed.
	current, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	switch {
	case current == nil:
		return nil, repository.ErrRoomNotFound
	case !current.Active:
		return nil, repository.ErrRoomInactive
	case current.HasMember(personID):
		return nil, repository.ErrAlreadyMember
	default:
		return nil, repository.ErrRoomFull
	}
}

// TryDetach removes the person in a single conditional UPDATE. The
// occupancy >= 1 arm tolerates pre-existing drift: a counter that says the
// room is occupied even though the member list lost the person. GREATEST
// keeps the counter from going negative on the mirror-image drift.
func (s *RoomStore) TryDetach(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error) {
	query := `
		UPDATE rooms
		SET occupancy  = GREATEST(occupancy - 1, 0),
		    member_ids = array_remove(member_ids, $2),
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND (member_ids @> ARRAY[$2]::uuid[] OR occupancy >= 1)
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, roomID, personID))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("detach member: %w", err)
	}

	current, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, repository.ErrRoomNotFound
	}
	return nil, repository.ErrNotAMember
}

func (s *RoomStore) UpdateCapacity(ctx context.Context, roomID uuid.UUID, capacity int) (*models.Room, error) {
	query := `
		UPDATE rooms
		SET capacity   = $2,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND occupancy <= $2
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, roomID, capacity))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update capacity: %w", err)
	}

	current, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, repository.ErrRoomNotFound
	}
	return nil, repository.ErrCapacityBelowOccupancy
}

func (s *RoomStore) SetActive(ctx context.Context, roomID uuid.UUID, active bool) (*models.Room, error) {
	query := `
		UPDATE rooms
		SET active     = $2,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, roomID, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("set room active: %w", err)
	}
	return room, nil
}

func (s *RoomStore) SetLead(ctx context.Context, roomID, personID uuid.UUID) (*models.Room, error) {
	// Only a current member can be the lead.
	query := `
		UPDATE rooms
		SET lead_id    = $2,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND member_ids @> ARRAY[$2]::uuid[]
		RETURNING ` + roomColumns

	room, err := scanRoom(s.q.QueryRow(ctx, query, roomID, personID))
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("set room lead: %w", err)
	}

	current, err := s.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, repository.ErrRoomNotFound
	}
	return nil, repository.ErrNotAMember
}

func (s *RoomStore) ClearLead(ctx context.Context, roomID, personID uuid.UUID) error {
	// Conditional on personID still holding the role, so clearing is
	// idempotent and never stomps a newer designation.
	query := `
		UPDATE rooms
		SET lead_id    = NULL,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND lead_id = $2`

	if _, err := s.q.Exec(ctx, query, roomID, personID); err != nil {
		return fmt.Errorf("clear room lead: %w", err)
	}
	return nil
}

func (s *RoomStore) SetMembership(ctx context.Context, roomID uuid.UUID, memberIDs []uuid.UUID, occupancy int) error {
	if memberIDs == nil {
		memberIDs = []uuid.UUID{}
	}
	query := `
		UPDATE rooms
		SET member_ids = $2,
		    occupancy  = $3,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, roomID, memberIDs, occupancy)
	if err != nil {
		return fmt.Errorf("set membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) ScanOccupied(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE (occupancy > 0 OR cardinality(member_ids) > 0)
		  AND id > $1
		ORDER BY id
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan occupied rooms: %w", err)
	}
	return collectRooms(rows)
}

func (s *RoomStore) Delete(ctx context.Context, roomID uuid.UUID) error {
	query := `
		DELETE FROM rooms
		WHERE id = $1
		  AND occupancy = 0
		  AND cardinality(member_ids) = 0`

	tag, err := s.q.Exec(ctx, query, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if current == nil {
		return repository.ErrRoomNotFound
	}
	return repository.ErrRoomOccupied
}

package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/lodgepole/campdesk/internal/models"
)

// EventStore appends to and reads the check-in/check-out log. Append-only:
// there is no update or delete path, and nothing in allocation reads it.
type EventStore struct {
	q Querier
}

func (s *EventStore) Append(ctx context.Context, personID uuid.UUID, kind, note string) (*models.CheckEvent, error) {
	query := `
		INSERT INTO check_events (person_id, kind, note, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, person_id, kind, note, created_at`

	var e models.CheckEvent
	err := s.q.QueryRow(ctx, query, personID, kind, note).Scan(
		&e.ID,
		&e.PersonID,
		&e.Kind,
		&e.Note,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert check event: %w", err)
	}
	return &e, nil
}

func (s *EventStore) ListByPerson(ctx context.Context, personID uuid.UUID, before int64, limit int) ([]models.CheckEvent, error) {
	// before == 0 means "from the latest". Cursor pagination on the
	// bigserial id, newest first.
	if before <= 0 {
		before = math.MaxInt64
	}
	query := `
		SELECT id, person_id, kind, note, created_at
		FROM check_events
		WHERE person_id = $1
		  AND id < $2
		ORDER BY id DESC
		LIMIT $3`

	rows, err := s.q.Query(ctx, query, personID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list check events: %w", err)
	}
	defer rows.Close()

	events := make([]models.CheckEvent, 0)
	for rows.Next() {
		var e models.CheckEvent
		if err := rows.Scan(&e.ID, &e.PersonID, &e.Kind, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check events: %w", err)
	}
	return events, nil
}

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

type PersonStore struct {
	q Querier
}

const personColumns = `id, first_name, last_name, email, room_ref, deleted, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var p models.Person
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.RoomRef,
		&p.Deleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPeople(rows pgx.Rows) ([]models.Person, error) {
	defer rows.Close()

	people := make([]models.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

func (s *PersonStore) Create(ctx context.Context, firstName, lastName, email string) (*models.Person, error) {
	query := `
		INSERT INTO people (id, first_name, last_name, email, room_ref, deleted, created_at, updated_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, NULL, FALSE, now(), now())
		RETURNING ` + personColumns

	person, err := scanPerson(s.q.QueryRow(ctx, query, firstName, lastName, email))
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return person, nil
}

func (s *PersonStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE id = $1 AND NOT deleted`

	person, err := scanPerson(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return person, nil
}

func (s *PersonStore) List(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE NOT deleted
		  AND id > $1
		ORDER BY id
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return collectPeople(rows)
}

func (s *PersonStore) SetRoomRef(ctx context.Context, personID uuid.UUID, roomRef *string) error {
	query := `
		UPDATE people
		SET room_ref   = $2,
		    updated_at = now()
		WHERE id = $1
		  AND NOT deleted`

	tag, err := s.q.Exec(ctx, query, personID, roomRef)
	if err != nil {
		return fmt.Errorf("set room ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrPersonNotFound
	}
	return nil
}

func (s *PersonStore) SoftDelete(ctx context.Context, personID uuid.UUID) error {
	// The ref is cleared too: deleted people are excluded from expected
	// membership, so a dangling ref would only confuse later inspection.
	query := `
		UPDATE people
		SET deleted    = TRUE,
		    room_ref   = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND NOT deleted`

	tag, err := s.q.Exec(ctx, query, personID)
	if err != nil {
		return fmt.Errorf("soft delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrPersonNotFound
	}
	return nil
}

func (s *PersonStore) ScanAssigned(ctx context.Context, afterID uuid.UUID, limit int) ([]models.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE NOT deleted
		  AND room_ref IS NOT NULL
		  AND id > $1
		ORDER BY id
		LIMIT $2`

	rows, err := s.q.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan assigned people: %w", err)
	}
	return collectPeople(rows)
}

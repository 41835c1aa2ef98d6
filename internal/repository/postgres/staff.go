package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lodgepole/campdesk/internal/models"
	"github.com/lodgepole/campdesk/internal/repository"
)

type StaffStore struct {
	q Querier
}

func (s *StaffStore) Create(ctx context.Context, email, displayName, passwordHash string) (*models.Staff, error) {
	query := `
		INSERT INTO staff (id, email, display_name, password_hash, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, now())
		RETURNING id, email, display_name, password_hash, created_at`

	var st models.Staff
	err := s.q.QueryRow(ctx, query, email, displayName, passwordHash).Scan(
		&st.ID,
		&st.Email,
		&st.DisplayName,
		&st.PasswordHash,
		&st.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert staff: %w", err)
	}
	return &st, nil
}

func (s *StaffStore) GetByEmail(ctx context.Context, email string) (*models.Staff, error) {
	query := `
		SELECT id, email, display_name, password_hash, created_at
		FROM staff
		WHERE email = $1`

	var st models.Staff
	err := s.q.QueryRow(ctx, query, email).Scan(
		&st.ID,
		&st.Email,
		&st.DisplayName,
		&st.PasswordHash,
		&st.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get staff by email: %w", err)
	}
	return &st, nil
}

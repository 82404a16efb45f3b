// Package profiles reads the role-bearing profile of a signed-in subject.
package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishdesk/parishdesk/internal/gate"
)

// Repository loads profiles from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the profile of subject, or gate.ErrProfileNotFound. Profiles of
// deactivated accounts are reported missing.
func (r *Repository) Get(ctx context.Context, subject string) (*gate.Profile, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, gate.ErrProfileNotFound
	}
	var (
		role   string
		name   string
		avatar pgtype.Text
	)
	err = r.pool.QueryRow(ctx, `
SELECT p.role, p.full_name, p.avatar_url
FROM profiles p
JOIN users u ON u.id = p.id
WHERE p.id = $1 AND u.is_active`, id).Scan(&role, &name, &avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gate.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profiles: get %s: %w", id, err)
	}
	return &gate.Profile{
		ID:        id,
		Role:      gate.ParseRole(role),
		FullName:  name,
		AvatarURL: avatar.String,
	}, nil
}

// Create inserts a profile inside tx.
func Create(ctx context.Context, tx pgx.Tx, p gate.Profile) error {
	_, err := tx.Exec(ctx, `
INSERT INTO profiles (id, role, full_name, avatar_url)
VALUES ($1, $2, $3, $4)`, p.ID, string(p.Role), p.FullName, pgtype.Text{String: p.AvatarURL, Valid: p.AvatarURL != ""})
	if err != nil {
		return fmt.Errorf("profiles: create: %w", err)
	}
	return nil
}

// SetRole changes the role of a profile.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role gate.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET role = $2, updated_at = now() WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("profiles: set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return gate.ErrProfileNotFound
	}
	return nil
}

package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ForUser binds the repository to one recipient.
func (r *Repository) ForUser(userID uuid.UUID) Store {
	return &userStore{repo: r, userID: userID}
}

// ListRecent returns the newest notifications of a user.
func (r *Repository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, type, title, message, link, is_read, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var (
			n    Notification
			kind string
			link pgtype.Text
		)
		if err := rows.Scan(&n.ID, &kind, &n.Title, &n.Message, &link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = Type(kind)
		n.Link = link.String
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadCount counts every unread notification of a user.
func (r *Repository) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	return count, err
}

// MarkRead marks one notification of a user read.
func (r *Repository) MarkRead(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = now() WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of a user read.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE, read_at = now() WHERE user_id = $1 AND NOT is_read`, userID)
	return err
}

// Publish writes a notification for a single user.
func (r *Repository) Publish(ctx context.Context, userID uuid.UUID, d Draft) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO notifications (user_id, type, title, message, link)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, userID, string(d.Type), d.Title, d.Message, pgtype.Text{String: d.Link, Valid: d.Link != ""}).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("notifications: publish: %w", err)
	}
	return id, nil
}

// Broadcast writes d for every profile whose role is in roles. An empty
// roles slice addresses everyone.
func (r *Repository) Broadcast(ctx context.Context, roles []string, d Draft) (int64, error) {
	if roles == nil {
		// nil encodes as NULL, which would match nobody.
		roles = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
INSERT INTO notifications (user_id, type, title, message, link)
SELECT p.id, $1, $2, $3, $4
FROM profiles p
WHERE cardinality($5::text[]) = 0 OR p.role = ANY($5::text[])`,
		string(d.Type), d.Title, d.Message, pgtype.Text{String: d.Link, Valid: d.Link != ""}, roles)
	if err != nil {
		return 0, fmt.Errorf("notifications: broadcast: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneRead deletes read notifications created before cutoff.
func (r *Repository) PruneRead(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE is_read AND created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("notifications: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

type userStore struct {
	repo   *Repository
	userID uuid.UUID
}

func (s *userStore) ListRecent(ctx context.Context, limit int) ([]Notification, error) {
	return s.repo.ListRecent(ctx, s.userID, limit)
}

func (s *userStore) UnreadCount(ctx context.Context) (int, error) {
	return s.repo.UnreadCount(ctx, s.userID)
}

func (s *userStore) MarkRead(ctx context.Context, id int64) error {
	return s.repo.MarkRead(ctx, s.userID, id)
}

func (s *userStore) MarkAllRead(ctx context.Context) error {
	return s.repo.MarkAllRead(ctx, s.userID)
}

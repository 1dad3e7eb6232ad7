package repository

import (
	"context"
	"database/sql"
	"time"

	"waitlist-engine/core/database"
	"waitlist-engine/core/logger"
	"waitlist-engine/modules/notification/entity"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) (*entity.Notification, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]entity.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type notificationRepository struct {
	db database.IDatabase
}

func NewNotificationRepository(db database.IDatabase) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) (*entity.Notification, error) {
	query := `
		INSERT INTO notifications (owner_id, entry_id, channel, recipient, subject, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		n.OwnerID, n.EntryID, n.Channel, n.Recipient, n.Subject, n.Payload, n.Status,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "error", err, "entry_id", n.EntryID)
		return nil, err
	}
	return n, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	var n entity.Notification
	if err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]entity.Notification, error) {
	var out []entity.Notification
	query := `SELECT * FROM notifications WHERE entry_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, query, entryID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'sent', sent_at = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2
	`
	return r.db.ExecContext(ctx, query, sentAt, id)
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE notifications
		SET status = 'failed', last_error = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2
	`
	return r.db.ExecContext(ctx, query, lastError, id)
}

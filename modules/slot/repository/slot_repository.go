package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitlist-engine/core/database"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/params"
	calentity "waitlist-engine/modules/calendar/entity"
	"waitlist-engine/modules/slot/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DueSlot pairs a due slot with its owner's enabled calendar connection.
type DueSlot struct {
	Slot       entity.Slot
	Connection calentity.CalendarConnection
}

type SlotRepository interface {
	Create(ctx context.Context, slot *entity.Slot) (*entity.Slot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Slot, error)
	List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedSlots, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error

	// UpdateStatusCAS is the single race guard for slot transitions: the
	// update applies only when the current status equals from, and reports
	// whether it did.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to entity.SlotStatus) (bool, error)
	UpdateStatusCASTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entity.SlotStatus) (bool, error)

	FetchDue(ctx context.Context, now time.Time, limit int) ([]DueSlot, error)
	Reschedule(ctx context.Context, id uuid.UUID, lastCheckAt, nextCheckAt time.Time) error
	Backoff(ctx context.Context, id uuid.UUID, nextCheckAt time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	PromotePending(ctx context.Context, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, ownerID uuid.UUID) (entity.StatusCounts, error)
}

type slotRepository struct {
	db database.IDatabase
}

func NewSlotRepository(db database.IDatabase) SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) Create(ctx context.Context, slot *entity.Slot) (*entity.Slot, error) {
	query := `
		INSERT INTO slots (owner_id, slot_start, slot_end, status, check_interval_minutes, next_check_at, calendar_event_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		slot.OwnerID, slot.SlotStart, slot.SlotEnd, slot.Status,
		slot.CheckIntervalMinutes, slot.NextCheckAt, slot.CalendarEventRef,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		logger.Error("SlotRepository:Create:Error", "error", err, "owner_id", slot.OwnerID)
		return nil, err
	}
	return slot, nil
}

func (r *slotRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Slot, error) {
	var slot entity.Slot
	query := `SELECT * FROM slots WHERE id = $1`
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepository) List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedSlots, error) {
	baseQuery := `FROM slots WHERE owner_id = $1`
	args := []any{ownerID}
	if p.Status != "" {
		baseQuery += ` AND status = $2`
		args = append(args, p.Status)
	}

	var totalItems int
	if err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		logger.Error("SlotRepository:List:Count:Error", "error", err)
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * %s ORDER BY slot_start ASC LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, p.PageSize, p.Offset())

	var slots []entity.Slot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		logger.Error("SlotRepository:List:Select:Error", "error", err)
		return nil, err
	}

	return &entity.PaginatedSlots{
		Items:      slots,
		TotalItems: totalItems,
		PageNumber: p.PageNumber,
		PageSize:   p.PageSize,
	}, nil
}

func (r *slotRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	rows, err := r.db.ExecRowsContext(ctx, `DELETE FROM slots WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *slotRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to entity.SlotStatus) (bool, error) {
	query := `UPDATE slots SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	rows, err := r.db.ExecRowsContext(ctx, query, to, id, from)
	if err != nil {
		logger.Error("SlotRepository:UpdateStatusCAS:Error", "error", err, "slot_id", id)
		return false, err
	}
	return rows == 1, nil
}

func (r *slotRepository) UpdateStatusCASTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entity.SlotStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// FetchDue returns monitoring slots whose next check is due, joined with
// their owner's enabled google connection. Slots under a disabled connection
// simply never come back from this query, which is how suspension works.
func (r *slotRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]DueSlot, error) {
	query := `
		SELECT
			s.id, s.owner_id, s.slot_start, s.slot_end, s.status,
			s.check_interval_minutes, s.last_check_at, s.next_check_at,
			s.calendar_event_ref, s.created_at, s.updated_at,
			c.id AS conn_id, c.owner_id AS conn_owner_id, c.provider,
			c.access_token, c.refresh_token, c.token_expiry, c.calendar_id,
			c.is_enabled, c.last_error, c.created_at AS conn_created_at, c.updated_at AS conn_updated_at
		FROM slots s
		JOIN calendar_connections c ON c.owner_id = s.owner_id AND c.is_enabled = true
		WHERE s.status = 'monitoring' AND s.next_check_at <= $1
		ORDER BY s.next_check_at
		LIMIT $2
		FOR UPDATE OF s SKIP LOCKED
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		logger.Error("SlotRepository:FetchDue:Error", "error", err)
		return nil, err
	}
	defer rows.Close()

	var due []DueSlot
	for rows.Next() {
		var d DueSlot
		if err := rows.Scan(
			&d.Slot.ID, &d.Slot.OwnerID, &d.Slot.SlotStart, &d.Slot.SlotEnd, &d.Slot.Status,
			&d.Slot.CheckIntervalMinutes, &d.Slot.LastCheckAt, &d.Slot.NextCheckAt,
			&d.Slot.CalendarEventRef, &d.Slot.CreatedAt, &d.Slot.UpdatedAt,
			&d.Connection.ID, &d.Connection.OwnerID, &d.Connection.Provider,
			&d.Connection.AccessToken, &d.Connection.RefreshToken, &d.Connection.TokenExpiry,
			&d.Connection.CalendarID, &d.Connection.IsEnabled, &d.Connection.LastError,
			&d.Connection.CreatedAt, &d.Connection.UpdatedAt,
		); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *slotRepository) Reschedule(ctx context.Context, id uuid.UUID, lastCheckAt, nextCheckAt time.Time) error {
	query := `UPDATE slots SET last_check_at = $1, next_check_at = $2, updated_at = NOW() WHERE id = $3`
	return r.db.ExecContext(ctx, query, lastCheckAt, nextCheckAt, id)
}

// Backoff pushes only the next check time; last_check_at stays untouched so
// the regular interval invariant is preserved across transient failures.
func (r *slotRepository) Backoff(ctx context.Context, id uuid.UUID, nextCheckAt time.Time) error {
	query := `UPDATE slots SET next_check_at = $1, updated_at = NOW() WHERE id = $2`
	return r.db.ExecContext(ctx, query, nextCheckAt, id)
}

// ExpireStale closes slots whose window started without being filled. The
// status guard in the WHERE clause keeps it compare-and-set safe against a
// racing confirm.
func (r *slotRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE slots SET status = 'expired', updated_at = NOW()
		WHERE status IN ('monitoring', 'available') AND slot_start <= $1
	`
	return r.db.ExecRowsContext(ctx, query, now)
}

// PromotePending starts monitoring for slots created before their owner had
// an enabled connection. Runs every tick so a fresh connect or reconnect
// picks them up without the calendar module touching slot state.
func (r *slotRepository) PromotePending(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE slots SET status = 'monitoring', next_check_at = $1, updated_at = NOW()
		WHERE status = 'pending' AND slot_start > $1
		  AND EXISTS (
			SELECT 1 FROM calendar_connections c
			WHERE c.owner_id = slots.owner_id AND c.is_enabled = true
		  )
	`
	return r.db.ExecRowsContext(ctx, query, now)
}

func (r *slotRepository) CountByStatus(ctx context.Context, ownerID uuid.UUID) (entity.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM slots WHERE owner_id = $1 GROUP BY status`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := entity.StatusCounts{}
	for rows.Next() {
		var status entity.SlotStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

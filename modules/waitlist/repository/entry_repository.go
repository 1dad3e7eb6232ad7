package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waitlist-engine/core/database"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/params"
	slotentity "waitlist-engine/modules/slot/entity"
	slotrepo "waitlist-engine/modules/slot/repository"
	"waitlist-engine/modules/waitlist/entity"

	"github.com/google/uuid"
)

type EntryRepository interface {
	Create(ctx context.Context, entry *entity.Entry) (*entity.Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Entry, error)
	GetByToken(ctx context.Context, token string) (*entity.Entry, error)
	List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedEntries, error)

	// NextCandidate returns the highest-priority pending entry whose
	// requested slot or one of its alternatives falls inside the window.
	NextCandidate(ctx context.Context, ownerID uuid.UUID, windowStart, windowEnd time.Time) (*entity.Entry, error)

	// MarkNotified is the offer grant: it moves a pending entry to notified
	// and stamps the token, slot and expiry in the same guarded update, so
	// two matchers can never hand the same entry two offers.
	MarkNotified(ctx context.Context, id, slotID uuid.UUID, token string, notifiedAt, expiresAt time.Time) (bool, error)

	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to entity.EntryStatus) (bool, error)

	// FinalizeConfirmation commits the winning confirm: slot available to
	// filled and entry notified to confirmed inside one transaction. Both
	// guards must hold or nothing is written.
	FinalizeConfirmation(ctx context.Context, entryID, slotID uuid.UUID, confirmedAt time.Time) (bool, error)

	FetchExpiredOffers(ctx context.Context, now time.Time, limit int) ([]entity.Entry, error)
	CountByStatus(ctx context.Context, ownerID uuid.UUID) (entity.StatusCounts, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}

type entryRepository struct {
	db    database.IDatabase
	slots slotrepo.SlotRepository
}

func NewEntryRepository(db database.IDatabase, slots slotrepo.SlotRepository) EntryRepository {
	return &entryRepository{db: db, slots: slots}
}

func (r *entryRepository) Create(ctx context.Context, entry *entity.Entry) (*entity.Entry, error) {
	query := `
		INSERT INTO entries (owner_id, customer_name, customer_email, customer_phone,
			requested_slot, alternative_slots, nb_persons, status, source, confirm_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, priority, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		entry.OwnerID, entry.CustomerName, entry.CustomerEmail, entry.CustomerPhone,
		entry.RequestedSlot, entry.AlternativeSlots, entry.NbPersons,
		entry.Status, entry.Source, entry.ConfirmToken,
	).Scan(&entry.ID, &entry.Priority, &entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		logger.Error("EntryRepository:Create:Error", "error", err, "owner_id", entry.OwnerID)
		return nil, err
	}
	return entry, nil
}

func (r *entryRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Entry, error) {
	var entry entity.Entry
	if err := r.db.GetContext(ctx, &entry, `SELECT * FROM entries WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *entryRepository) GetByToken(ctx context.Context, token string) (*entity.Entry, error) {
	var entry entity.Entry
	if err := r.db.GetContext(ctx, &entry, `SELECT * FROM entries WHERE confirm_token = $1`, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *entryRepository) List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedEntries, error) {
	baseQuery := `FROM entries WHERE owner_id = $1`
	args := []any{ownerID}
	if p.Status != "" {
		baseQuery += ` AND status = $2`
		args = append(args, p.Status)
	}

	var totalItems int
	if err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		logger.Error("EntryRepository:List:Count:Error", "error", err)
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * %s ORDER BY priority ASC LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, p.PageSize, p.Offset())

	var entries []entity.Entry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		logger.Error("EntryRepository:List:Select:Error", "error", err)
		return nil, err
	}

	return &entity.PaginatedEntries{
		Items:      entries,
		TotalItems: totalItems,
		PageNumber: p.PageNumber,
		PageSize:   p.PageSize,
	}, nil
}

// NextCandidate matches on the requested slot or any alternative. The jsonb
// alternatives are RFC3339 strings, so the elements cast straight to
// timestamptz.
func (r *entryRepository) NextCandidate(ctx context.Context, ownerID uuid.UUID, windowStart, windowEnd time.Time) (*entity.Entry, error) {
	query := `
		SELECT * FROM entries
		WHERE owner_id = $1 AND status = 'pending'
		  AND (
			(requested_slot >= $2 AND requested_slot < $3)
			OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(alternative_slots) AS alt
				WHERE alt::timestamptz >= $2 AND alt::timestamptz < $3
			)
		  )
		ORDER BY priority ASC, created_at ASC
		LIMIT 1
	`
	var entry entity.Entry
	if err := r.db.GetContext(ctx, &entry, query, ownerID, windowStart, windowEnd); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("EntryRepository:NextCandidate:Error", "error", err, "owner_id", ownerID)
		return nil, err
	}
	return &entry, nil
}

func (r *entryRepository) MarkNotified(ctx context.Context, id, slotID uuid.UUID, token string, notifiedAt, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE entries
		SET status = 'notified', confirm_token = $1, offered_slot_id = $2,
			notified_at = $3, offer_expires_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = 'pending'
	`
	rows, err := r.db.ExecRowsContext(ctx, query, token, slotID, notifiedAt, expiresAt, id)
	if err != nil {
		logger.Error("EntryRepository:MarkNotified:Error", "error", err, "entry_id", id)
		return false, err
	}
	return rows == 1, nil
}

func (r *entryRepository) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to entity.EntryStatus) (bool, error) {
	query := `UPDATE entries SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	rows, err := r.db.ExecRowsContext(ctx, query, to, id, from)
	if err != nil {
		logger.Error("EntryRepository:UpdateStatusCAS:Error", "error", err, "entry_id", id)
		return false, err
	}
	return rows == 1, nil
}

func (r *entryRepository) FinalizeConfirmation(ctx context.Context, entryID, slotID uuid.UUID, confirmedAt time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	slotOK, err := r.slots.UpdateStatusCASTx(ctx, tx, slotID, slotentity.SlotStatusAvailable, slotentity.SlotStatusFilled)
	if err != nil {
		return false, err
	}
	if !slotOK {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE entries SET status = 'confirmed', confirmed_at = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'notified'`,
		confirmedAt, entryID,
	)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows != 1 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *entryRepository) FetchExpiredOffers(ctx context.Context, now time.Time, limit int) ([]entity.Entry, error) {
	query := `
		SELECT * FROM entries
		WHERE status = 'notified' AND offer_expires_at <= $1
		ORDER BY offer_expires_at
		LIMIT $2
	`
	var entries []entity.Entry
	if err := r.db.SelectContext(ctx, &entries, query, now, limit); err != nil {
		logger.Error("EntryRepository:FetchExpiredOffers:Error", "error", err)
		return nil, err
	}
	return entries, nil
}

func (r *entryRepository) CountByStatus(ctx context.Context, ownerID uuid.UUID) (entity.StatusCounts, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM entries WHERE owner_id = $1 GROUP BY status`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := entity.StatusCounts{}
	for rows.Next() {
		var status entity.EntryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *entryRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	rows, err := r.db.ExecRowsContext(ctx, `DELETE FROM entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

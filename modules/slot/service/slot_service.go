package service

import (
	"context"
	"database/sql"
	"time"

	"waitlist-engine/core/constants"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/params"
	calrepo "waitlist-engine/modules/calendar/repository"
	"waitlist-engine/modules/slot/dto"
	"waitlist-engine/modules/slot/entity"
	"waitlist-engine/modules/slot/repository"

	"github.com/google/uuid"
)

// SlotService owns the slot lifecycle. Every transition out of a state goes
// through the repository compare-and-set; a lost race is reported as stale
// state, never as corruption.
type SlotService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req *dto.CreateSlotRequest) (*entity.Slot, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*entity.Slot, error)
	List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedSlots, error)
	Cancel(ctx context.Context, id, ownerID uuid.UUID) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	Stats(ctx context.Context, ownerID uuid.UUID) (*dto.SlotStatsResponse, error)
}

type slotService struct {
	repo     repository.SlotRepository
	connRepo calrepo.CalendarRepository
	now      func() time.Time
}

func NewSlotService(repo repository.SlotRepository, connRepo calrepo.CalendarRepository) SlotService {
	return &slotService{repo: repo, connRepo: connRepo, now: time.Now}
}

func (s *slotService) Create(ctx context.Context, ownerID uuid.UUID, req *dto.CreateSlotRequest) (*entity.Slot, error) {
	if !req.SlotEnd.After(req.SlotStart) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "slot_end must be after slot_start", nil)
	}
	if req.SlotStart.Before(s.now()) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "slot window is in the past", nil)
	}

	interval := req.CheckIntervalMinutes
	if interval <= 0 {
		interval = constants.DefaultCheckIntervalMinutes
	}

	now := s.now()
	slot := &entity.Slot{
		OwnerID:              ownerID,
		SlotStart:            req.SlotStart,
		SlotEnd:              req.SlotEnd,
		Status:               entity.SlotStatusPending,
		CheckIntervalMinutes: interval,
		NextCheckAt:          &now,
		CalendarEventRef:     req.CalendarEventRef,
	}
	created, err := s.repo.Create(ctx, slot)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to create slot", err)
	}

	// Monitoring starts right away when the owner has a usable connection;
	// otherwise the slot waits in pending until reconnection.
	conn, err := s.connRepo.GetConnectionByOwnerAndProvider(ctx, ownerID, constants.ProviderGoogle)
	if err == nil && conn != nil && conn.IsEnabled {
		if ok, casErr := s.repo.UpdateStatusCAS(ctx, created.ID, entity.SlotStatusPending, entity.SlotStatusMonitoring); casErr == nil && ok {
			created.Status = entity.SlotStatusMonitoring
		}
	} else {
		logger.Warn("SlotService:Create:NoEnabledConnection", "owner_id", ownerID, "slot_id", created.ID)
	}

	return created, nil
}

func (s *slotService) Get(ctx context.Context, id, ownerID uuid.UUID) (*entity.Slot, error) {
	slot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load slot", err)
	}
	if slot == nil || slot.OwnerID != ownerID {
		return nil, errors.NewAppError(errors.ErrNotFound, "slot not found", nil)
	}
	return slot, nil
}

func (s *slotService) List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedSlots, error) {
	return s.repo.List(ctx, ownerID, p)
}

// Cancel stops monitoring. A cancel racing a confirmation at the same tick
// is resolved by the compare-and-set: whichever lands first wins.
func (s *slotService) Cancel(ctx context.Context, id, ownerID uuid.UUID) error {
	slot, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	for _, from := range []entity.SlotStatus{entity.SlotStatusMonitoring, entity.SlotStatusPending, entity.SlotStatusAvailable} {
		ok, casErr := s.repo.UpdateStatusCAS(ctx, slot.ID, from, entity.SlotStatusCancelled)
		if casErr != nil {
			return errors.NewAppError(errors.ErrInternalServer, "failed to cancel slot", casErr)
		}
		if ok {
			logger.Info("SlotService:Cancel:Success", "slot_id", id, "from", from)
			return nil
		}
	}
	return errors.NewAppError(errors.ErrStaleState, "slot is no longer cancellable", nil)
}

func (s *slotService) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	slot, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !slot.Status.Terminal() {
		return errors.NewAppError(errors.ErrInvalidInput, "only filled, expired or cancelled slots can be deleted", nil)
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return errors.NewAppError(errors.ErrNotFound, "slot not found", nil)
		}
		return errors.NewAppError(errors.ErrInternalServer, "failed to delete slot", err)
	}
	return nil
}

func (s *slotService) Stats(ctx context.Context, ownerID uuid.UUID) (*dto.SlotStatsResponse, error) {
	counts, err := s.repo.CountByStatus(ctx, ownerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to compute stats", err)
	}

	out := make(map[string]int, len(counts))
	total := 0
	for status, n := range counts {
		out[string(status)] = n
		total += n
	}

	filled := counts[entity.SlotStatusFilled]
	closed := filled + counts[entity.SlotStatusExpired]
	fillRate := 0.0
	if closed > 0 {
		fillRate = float64(filled) / float64(closed)
	}

	return &dto.SlotStatsResponse{Counts: out, FillRate: fillRate, TotalSlots: total}, nil
}

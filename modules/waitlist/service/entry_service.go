package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	coreentity "waitlist-engine/core/entity"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/params"
	"waitlist-engine/core/utils"
	"waitlist-engine/modules/waitlist/dto"
	"waitlist-engine/modules/waitlist/entity"
	"waitlist-engine/modules/waitlist/repository"

	"github.com/google/uuid"
)

const defaultSource = "manual"

// EntryService owns waitlist signups and owner-side entry management. The
// offer protocol itself lives in the Matcher.
type EntryService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req *dto.CreateEntryRequest) (*entity.Entry, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*entity.Entry, error)
	List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedEntries, error)
	Cancel(ctx context.Context, id, ownerID uuid.UUID) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	Stats(ctx context.Context, ownerID uuid.UUID) (*dto.EntryStatsResponse, error)
}

type entryService struct {
	repo    repository.EntryRepository
	matcher *Matcher
	now     func() time.Time
}

func NewEntryService(repo repository.EntryRepository, matcher *Matcher) EntryService {
	return &entryService{repo: repo, matcher: matcher, now: time.Now}
}

func (s *entryService) Create(ctx context.Context, ownerID uuid.UUID, req *dto.CreateEntryRequest) (*entity.Entry, error) {
	name := strings.TrimSpace(req.CustomerName)
	email := strings.TrimSpace(req.CustomerEmail)
	if name == "" || email == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "customer_name and customer_email are required", nil)
	}
	if req.RequestedSlot.Before(s.now()) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "requested_slot is in the past", nil)
	}

	nbPersons := req.NbPersons
	if nbPersons <= 0 {
		nbPersons = 1
	}
	source := req.Source
	if source == "" {
		source = defaultSource
	}

	entry := &entity.Entry{
		OwnerID:          ownerID,
		CustomerName:     name,
		CustomerEmail:    email,
		CustomerPhone:    req.CustomerPhone,
		RequestedSlot:    req.RequestedSlot,
		AlternativeSlots: coreentity.TimeList(req.AlternativeSlots),
		NbPersons:        nbPersons,
		Status:           entity.EntryStatusPending,
		Source:           source,
		ConfirmToken:     utils.GenerateConfirmationToken(),
	}
	created, err := s.repo.Create(ctx, entry)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to create entry", err)
	}
	logger.Info("EntryService:Create:Success", "entry_id", created.ID, "priority", created.Priority)
	return created, nil
}

func (s *entryService) Get(ctx context.Context, id, ownerID uuid.UUID) (*entity.Entry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load entry", err)
	}
	if entry == nil || entry.OwnerID != ownerID {
		return nil, errors.NewAppError(errors.ErrNotFound, "entry not found", nil)
	}
	return entry, nil
}

// Cancel removes an entry from the pool. Cancelling a notified entry also
// releases its offer so the slot moves on to the next candidate.
func (s *entryService) Cancel(ctx context.Context, id, ownerID uuid.UUID) error {
	entry, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}

	switch entry.Status {
	case entity.EntryStatusPending:
		ok, casErr := s.repo.UpdateStatusCAS(ctx, id, entity.EntryStatusPending, entity.EntryStatusCancelled)
		if casErr != nil {
			return errors.NewAppError(errors.ErrInternalServer, "failed to cancel entry", casErr)
		}
		if !ok {
			return errors.NewAppError(errors.ErrStaleState, "entry changed state, retry", nil)
		}
		return nil
	case entity.EntryStatusNotified:
		ok, casErr := s.repo.UpdateStatusCAS(ctx, id, entity.EntryStatusNotified, entity.EntryStatusCancelled)
		if casErr != nil {
			return errors.NewAppError(errors.ErrInternalServer, "failed to cancel entry", casErr)
		}
		if !ok {
			return errors.NewAppError(errors.ErrStaleState, "entry changed state, retry", nil)
		}
		s.matcher.ReleaseOffer(ctx, entry)
		return nil
	default:
		return errors.NewAppError(errors.ErrStaleState, "entry is already resolved", nil)
	}
}

func (s *entryService) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	entry, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !entry.Status.Terminal() {
		return errors.NewAppError(errors.ErrInvalidInput, "only resolved entries can be deleted", nil)
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return errors.NewAppError(errors.ErrNotFound, "entry not found", nil)
		}
		return errors.NewAppError(errors.ErrInternalServer, "failed to delete entry", err)
	}
	return nil
}

func (s *entryService) List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedEntries, error) {
	return s.repo.List(ctx, ownerID, p)
}

func (s *entryService) Stats(ctx context.Context, ownerID uuid.UUID) (*dto.EntryStatsResponse, error) {
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
	return &dto.EntryStatsResponse{Counts: out, TotalEntries: total}, nil
}

package service

import (
	"context"
	"time"

	"waitlist-engine/core/cache"
	"waitlist-engine/core/config"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/utils"
	slotentity "waitlist-engine/modules/slot/entity"
	slotrepo "waitlist-engine/modules/slot/repository"
	"waitlist-engine/modules/waitlist/entity"
	"waitlist-engine/modules/waitlist/repository"
)

// OfferNotifier delivers the offer message. Implemented by the notification
// dispatcher; a delivery failure never rolls back the offer, the window
// simply runs out.
type OfferNotifier interface {
	SendOffer(ctx context.Context, entry *entity.Entry, slot *slotentity.Slot) error
}

// Matcher runs the serial offer protocol. A slot carries at most one active
// offer at a time; the next candidate is only contacted after the current
// offer resolves by confirm, decline or expiry.
type Matcher struct {
	entries        repository.EntryRepository
	slots          slotrepo.SlotRepository
	cache          cache.Cache
	notifier       OfferNotifier
	offerWindow    time.Duration
	closeUnclaimed bool
	batch          int
	now            func() time.Time
}

func NewMatcher(
	entries repository.EntryRepository,
	slots slotrepo.SlotRepository,
	c cache.Cache,
	notifier OfferNotifier,
	cfg config.EngineConfig,
) *Matcher {
	return &Matcher{
		entries:        entries,
		slots:          slots,
		cache:          c,
		notifier:       notifier,
		offerWindow:    cfg.OfferWindow(),
		closeUnclaimed: cfg.CloseUnclaimedSlots,
		batch:          cfg.BatchSize,
		now:            time.Now,
	}
}

// OfferNext grants the slot to the highest-priority matching pending entry.
// Losing the MarkNotified race just means another matcher got that entry
// first, so the loop moves on to the next candidate.
func (m *Matcher) OfferNext(ctx context.Context, slot *slotentity.Slot) error {
	for {
		cand, err := m.entries.NextCandidate(ctx, slot.OwnerID, slot.SlotStart, slot.SlotEnd)
		if err != nil {
			return err
		}
		if cand == nil {
			return m.closeOut(ctx, slot)
		}

		now := m.now()
		token := utils.GenerateConfirmationToken()
		ok, err := m.entries.MarkNotified(ctx, cand.ID, slot.ID, token, now, now.Add(m.offerWindow))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if cacheErr := m.cache.SetOfferToken(ctx, token, cand.ID, m.offerWindow); cacheErr != nil {
			logger.Warn("Matcher:OfferNext:CacheSet", "entry_id", cand.ID, "error", cacheErr)
		}

		cand.ConfirmToken = token
		cand.Status = entity.EntryStatusNotified
		cand.OfferedSlotID = &slot.ID
		expiresAt := now.Add(m.offerWindow)
		cand.OfferExpiresAt = &expiresAt

		logger.Info("Matcher:OfferNext:Offered",
			"slot_id", slot.ID, "entry_id", cand.ID, "expires_at", expiresAt)

		if sendErr := m.notifier.SendOffer(ctx, cand, slot); sendErr != nil {
			logger.Error("Matcher:OfferNext:Notify", "entry_id", cand.ID, "error", sendErr)
		}
		return nil
	}
}

// closeOut handles an empty candidate pool. Depending on configuration the
// slot either closes immediately or goes back to monitoring so a later
// signup can still claim it.
func (m *Matcher) closeOut(ctx context.Context, slot *slotentity.Slot) error {
	to := slotentity.SlotStatusMonitoring
	if m.closeUnclaimed {
		to = slotentity.SlotStatusExpired
	}
	ok, err := m.slots.UpdateStatusCAS(ctx, slot.ID, slotentity.SlotStatusAvailable, to)
	if err != nil {
		return err
	}
	if ok && to == slotentity.SlotStatusMonitoring {
		if err := m.slots.Backoff(ctx, slot.ID, m.now().Add(slot.CheckInterval())); err != nil {
			logger.Error("Matcher:CloseOut:Backoff", "slot_id", slot.ID, "error", err)
		}
	}
	logger.Info("Matcher:CloseOut", "slot_id", slot.ID, "to", to, "applied", ok)
	return nil
}

// Confirm resolves a confirmation link. Confirming an already-confirmed
// entry succeeds again with the same result; every other late arrival gets
// stale state or offer expired.
func (m *Matcher) Confirm(ctx context.Context, token string) (*entity.Entry, *slotentity.Slot, error) {
	entry, err := m.resolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	switch entry.Status {
	case entity.EntryStatusConfirmed:
		slot, _ := m.offeredSlot(ctx, entry)
		return entry, slot, nil
	case entity.EntryStatusNotified:
		// fall through to the guarded commit
	case entity.EntryStatusExpired:
		return nil, nil, errors.NewAppError(errors.ErrOfferExpired, "the offer window has passed", nil)
	default:
		return nil, nil, errors.NewAppError(errors.ErrStaleState, "this offer is no longer active", nil)
	}

	now := m.now()
	if entry.OfferExpiresAt != nil && !now.Before(*entry.OfferExpiresAt) {
		m.expireOffer(ctx, entry)
		return nil, nil, errors.NewAppError(errors.ErrOfferExpired, "the offer window has passed", nil)
	}
	if entry.OfferedSlotID == nil {
		return nil, nil, errors.NewAppError(errors.ErrStaleState, "this offer is no longer active", nil)
	}

	ok, err := m.entries.FinalizeConfirmation(ctx, entry.ID, *entry.OfferedSlotID, now)
	if err != nil {
		return nil, nil, errors.NewAppError(errors.ErrInternalServer, "failed to confirm offer", err)
	}
	if !ok {
		// Lost the race. If another request of ours already confirmed,
		// report success; otherwise the slot got taken or cancelled.
		fresh, rErr := m.entries.GetByID(ctx, entry.ID)
		if rErr == nil && fresh != nil && fresh.Status == entity.EntryStatusConfirmed {
			slot, _ := m.offeredSlot(ctx, fresh)
			return fresh, slot, nil
		}
		return nil, nil, errors.NewAppError(errors.ErrStaleState, "the slot is no longer available", nil)
	}

	if cacheErr := m.cache.DeleteOfferToken(ctx, token); cacheErr != nil {
		logger.Warn("Matcher:Confirm:CacheDelete", "entry_id", entry.ID, "error", cacheErr)
	}

	entry.Status = entity.EntryStatusConfirmed
	entry.ConfirmedAt = &now
	slot, _ := m.offeredSlot(ctx, entry)
	logger.Info("Matcher:Confirm:Success", "entry_id", entry.ID, "slot_id", *entry.OfferedSlotID)
	return entry, slot, nil
}

// Decline resolves the offer negatively and moves the chain to the next
// candidate while the slot is still available.
func (m *Matcher) Decline(ctx context.Context, token string) error {
	entry, err := m.resolveToken(ctx, token)
	if err != nil {
		return err
	}

	switch entry.Status {
	case entity.EntryStatusDeclined:
		return nil
	case entity.EntryStatusNotified:
	case entity.EntryStatusExpired:
		return errors.NewAppError(errors.ErrOfferExpired, "the offer window has passed", nil)
	default:
		return errors.NewAppError(errors.ErrStaleState, "this offer is no longer active", nil)
	}

	ok, err := m.entries.UpdateStatusCAS(ctx, entry.ID, entity.EntryStatusNotified, entity.EntryStatusDeclined)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to decline offer", err)
	}
	if !ok {
		return errors.NewAppError(errors.ErrStaleState, "this offer is no longer active", nil)
	}

	if cacheErr := m.cache.DeleteOfferToken(ctx, token); cacheErr != nil {
		logger.Warn("Matcher:Decline:CacheDelete", "entry_id", entry.ID, "error", cacheErr)
	}
	logger.Info("Matcher:Decline:Success", "entry_id", entry.ID)

	m.advanceChain(ctx, entry)
	return nil
}

// View returns the public state behind a confirmation link.
func (m *Matcher) View(ctx context.Context, token string) (*entity.Entry, *slotentity.Slot, error) {
	entry, err := m.resolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	slot, _ := m.offeredSlot(ctx, entry)
	return entry, slot, nil
}

func (m *Matcher) Name() string { return "offer-expiry" }

// Run sweeps offers whose window lapsed without an answer. Each expiry is
// compare-and-set guarded, so a confirm landing between the fetch and the
// update simply wins.
func (m *Matcher) Run(ctx context.Context, now time.Time) error {
	due, err := m.entries.FetchExpiredOffers(ctx, now, m.batch)
	if err != nil {
		return err
	}
	for i := range due {
		m.expireOffer(ctx, &due[i])
	}
	return nil
}

func (m *Matcher) expireOffer(ctx context.Context, entry *entity.Entry) {
	ok, err := m.entries.UpdateStatusCAS(ctx, entry.ID, entity.EntryStatusNotified, entity.EntryStatusExpired)
	if err != nil {
		logger.Error("Matcher:ExpireOffer:CAS", "entry_id", entry.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	if cacheErr := m.cache.DeleteOfferToken(ctx, entry.ConfirmToken); cacheErr != nil {
		logger.Warn("Matcher:ExpireOffer:CacheDelete", "entry_id", entry.ID, "error", cacheErr)
	}
	logger.Info("Matcher:ExpireOffer:Expired", "entry_id", entry.ID)

	m.advanceChain(ctx, entry)
}

// ReleaseOffer clears an offer resolved out of band, such as an owner-side
// cancellation of a notified entry, and moves the chain on.
func (m *Matcher) ReleaseOffer(ctx context.Context, entry *entity.Entry) {
	if entry.ConfirmToken != "" {
		if err := m.cache.DeleteOfferToken(ctx, entry.ConfirmToken); err != nil {
			logger.Warn("Matcher:ReleaseOffer:CacheDelete", "entry_id", entry.ID, "error", err)
		}
	}
	m.advanceChain(ctx, entry)
}

// advanceChain hands the slot to the next candidate when it is still open.
func (m *Matcher) advanceChain(ctx context.Context, entry *entity.Entry) {
	if entry.OfferedSlotID == nil {
		return
	}
	slot, err := m.slots.GetByID(ctx, *entry.OfferedSlotID)
	if err != nil || slot == nil {
		return
	}
	if slot.Status != slotentity.SlotStatusAvailable {
		return
	}
	if err := m.OfferNext(ctx, slot); err != nil {
		logger.Error("Matcher:AdvanceChain:OfferNext", "slot_id", slot.ID, "error", err)
	}
}

// resolveToken goes through the cache first; the database lookup keeps links
// working across cache restarts.
func (m *Matcher) resolveToken(ctx context.Context, token string) (*entity.Entry, error) {
	if token == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "missing confirmation token", nil)
	}
	if entryID, found, err := m.cache.GetOfferToken(ctx, token); err == nil && found {
		if entry, dbErr := m.entries.GetByID(ctx, entryID); dbErr == nil && entry != nil && entry.ConfirmToken == token {
			return entry, nil
		}
	}
	entry, err := m.entries.GetByToken(ctx, token)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to look up token", err)
	}
	if entry == nil {
		return nil, errors.NewAppError(errors.ErrNotFound, "unknown confirmation link", nil)
	}
	return entry, nil
}

func (m *Matcher) offeredSlot(ctx context.Context, entry *entity.Entry) (*slotentity.Slot, error) {
	if entry.OfferedSlotID == nil {
		return nil, nil
	}
	return m.slots.GetByID(ctx, *entry.OfferedSlotID)
}

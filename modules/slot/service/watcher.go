package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"waitlist-engine/core/config"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	calentity "waitlist-engine/modules/calendar/entity"
	calrepo "waitlist-engine/modules/calendar/repository"
	calservice "waitlist-engine/modules/calendar/service"
	"waitlist-engine/modules/slot/entity"
	"waitlist-engine/modules/slot/repository"
)

// TokenEnsurer yields a usable access token for a connection, refreshing
// when the stored one is near expiry.
type TokenEnsurer interface {
	EnsureValid(ctx context.Context, conn *calentity.CalendarConnection) (string, error)
	Refresh(ctx context.Context, conn *calentity.CalendarConnection) (string, error)
}

// OfferStarter kicks off the offer chain for a slot that just became
// available. Implemented by the waitlist matcher.
type OfferStarter interface {
	OfferNext(ctx context.Context, slot *entity.Slot) error
}

// Watcher is the polling job. Each tick it expires stale slots, claims a
// batch of due ones and probes the owner's calendar for each. State
// transitions are compare-and-set so a concurrent cancel or confirm simply
// makes the watcher's write a no-op.
type Watcher struct {
	slots    repository.SlotRepository
	conns    calrepo.CalendarRepository
	gateway  calservice.Gateway
	tokens   TokenEnsurer
	matcher  OfferStarter
	workers  int
	batch    int
	retryMax int
	backoff  time.Duration
	now      func() time.Time
}

func NewWatcher(
	slots repository.SlotRepository,
	conns calrepo.CalendarRepository,
	gateway calservice.Gateway,
	tokens TokenEnsurer,
	cfg config.EngineConfig,
) *Watcher {
	return &Watcher{
		slots:    slots,
		conns:    conns,
		gateway:  gateway,
		tokens:   tokens,
		workers:  cfg.Workers,
		batch:    cfg.BatchSize,
		retryMax: cfg.TransientRetryMax,
		backoff:  cfg.BackoffBase(),
		now:      time.Now,
	}
}

// SetMatcher attaches the offer chain. Must be set before the scheduler
// starts; the waitlist module is constructed after the slot module.
func (w *Watcher) SetMatcher(m OfferStarter) { w.matcher = m }

func (w *Watcher) Name() string { return "slot-poll" }

func (w *Watcher) Run(ctx context.Context, now time.Time) error {
	expired, err := w.slots.ExpireStale(ctx, now)
	if err != nil {
		logger.Error("Watcher:Run:ExpireStale", "error", err)
	} else if expired > 0 {
		logger.Info("Watcher:Run:ExpiredStale", "count", expired)
	}

	promoted, err := w.slots.PromotePending(ctx, now)
	if err != nil {
		logger.Error("Watcher:Run:PromotePending", "error", err)
	} else if promoted > 0 {
		logger.Info("Watcher:Run:PromotedPending", "count", promoted)
	}

	due, err := w.slots.FetchDue(ctx, now, w.batch)
	if err != nil {
		logger.Error("Watcher:Run:FetchDue", "error", err)
		return err
	}
	if len(due) == 0 {
		return nil
	}
	logger.Debug("Watcher:Run:Batch", "count", len(due))

	sem := make(chan struct{}, w.workers)
	var wg sync.WaitGroup
	for i := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(d repository.DueSlot) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, d)
		}(due[i])
	}
	wg.Wait()
	return nil
}

func (w *Watcher) process(ctx context.Context, d repository.DueSlot) {
	slot := d.Slot
	conn := d.Connection

	token, err := w.tokens.EnsureValid(ctx, &conn)
	if err != nil {
		w.handleProbeFailure(ctx, &slot, &conn, err)
		return
	}
	conn.AccessToken = token

	free, err := w.probe(ctx, &slot, &conn)
	if err != nil {
		w.handleProbeFailure(ctx, &slot, &conn, err)
		return
	}

	if !free {
		now := w.now()
		if err := w.slots.Reschedule(ctx, slot.ID, now, now.Add(slot.CheckInterval())); err != nil {
			logger.Error("Watcher:Process:Reschedule", "slot_id", slot.ID, "error", err)
		}
		return
	}

	ok, err := w.slots.UpdateStatusCAS(ctx, slot.ID, entity.SlotStatusMonitoring, entity.SlotStatusAvailable)
	if err != nil {
		logger.Error("Watcher:Process:MarkAvailable", "slot_id", slot.ID, "error", err)
		return
	}
	if !ok {
		// Cancelled or expired between the fetch and the probe.
		logger.Info("Watcher:Process:StaleSlot", "slot_id", slot.ID)
		return
	}
	slot.Status = entity.SlotStatusAvailable
	logger.Info("Watcher:Process:SlotAvailable", "slot_id", slot.ID, "slot_start", slot.SlotStart)

	if err := w.matcher.OfferNext(ctx, &slot); err != nil {
		logger.Error("Watcher:Process:OfferNext", "slot_id", slot.ID, "error", err)
	}
}

// probe checks the calendar, retrying transient failures inside the tick and
// forcing a single refresh on a rejected token.
func (w *Watcher) probe(ctx context.Context, slot *entity.Slot, conn *calentity.CalendarConnection) (bool, error) {
	refreshed := false
	var lastErr error
	for attempt := 0; attempt <= w.retryMax; attempt++ {
		free, err := w.gateway.CheckFree(ctx, conn, slot.SlotStart, slot.SlotEnd)
		if err == nil {
			return free, nil
		}
		lastErr = err

		if errors.CodeOf(err) == errors.ErrUnauthorized && !refreshed {
			refreshed = true
			token, rErr := w.tokens.Refresh(ctx, conn)
			if rErr != nil {
				return false, rErr
			}
			conn.AccessToken = token
			continue
		}
		if !errors.IsTransient(err) {
			return false, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(jitter(time.Second)):
		}
	}
	return false, lastErr
}

func (w *Watcher) handleProbeFailure(ctx context.Context, slot *entity.Slot, conn *calentity.CalendarConnection, err error) {
	switch {
	case errors.IsAuthRevoked(err):
		logger.Warn("Watcher:Process:AuthRevoked", "slot_id", slot.ID, "connection_id", conn.ID, "error", err)
		if dbErr := w.conns.DisableConnection(ctx, conn.ID, err.Error()); dbErr != nil {
			logger.Error("Watcher:Process:DisableConnection", "connection_id", conn.ID, "error", dbErr)
		}
	case errors.IsTransient(err):
		next := w.now().Add(jitter(w.backoff))
		logger.Warn("Watcher:Process:TransientBackoff", "slot_id", slot.ID, "next_check_at", next, "error", err)
		if dbErr := w.slots.Backoff(ctx, slot.ID, next); dbErr != nil {
			logger.Error("Watcher:Process:Backoff", "slot_id", slot.ID, "error", dbErr)
		}
	default:
		next := w.now().Add(jitter(w.backoff))
		logger.Error("Watcher:Process:ProbeFailed", "slot_id", slot.ID, "error", err)
		if dbErr := w.slots.Backoff(ctx, slot.ID, next); dbErr != nil {
			logger.Error("Watcher:Process:Backoff", "slot_id", slot.ID, "error", dbErr)
		}
	}
}

// jitter spreads retries so a flapping provider does not see the whole batch
// again at the same instant.
func jitter(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(base)/2+1))
}

package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"waitlist-engine/core/config"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/params"
	calentity "waitlist-engine/modules/calendar/entity"
	"waitlist-engine/modules/slot/entity"
	"waitlist-engine/modules/slot/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlotRepo keeps slots in memory with compare-and-set semantics matching
// the SQL implementation.
type fakeSlotRepo struct {
	mu            sync.Mutex
	slots         map[uuid.UUID]*entity.Slot
	due           []repository.DueSlot
	rescheduled   map[uuid.UUID]time.Time
	backedOff     map[uuid.UUID]time.Time
	enabledOwners map[uuid.UUID]bool
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{
		slots:         make(map[uuid.UUID]*entity.Slot),
		rescheduled:   make(map[uuid.UUID]time.Time),
		backedOff:     make(map[uuid.UUID]time.Time),
		enabledOwners: make(map[uuid.UUID]bool),
	}
}

func (f *fakeSlotRepo) put(slot *entity.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *slot
	f.slots[slot.ID] = &cp
}

func (f *fakeSlotRepo) Create(ctx context.Context, slot *entity.Slot) (*entity.Slot, error) {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	f.put(slot)
	return slot, nil
}

func (f *fakeSlotRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok {
		return nil, nil
	}
	cp := *slot
	return &cp, nil
}

func (f *fakeSlotRepo) List(ctx context.Context, ownerID uuid.UUID, p params.QueryParams) (*entity.PaginatedSlots, error) {
	return &entity.PaginatedSlots{}, nil
}

func (f *fakeSlotRepo) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok || slot.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	delete(f.slots, id)
	return nil
}

func (f *fakeSlotRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to entity.SlotStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot, ok := f.slots[id]
	if !ok || slot.Status != from {
		return false, nil
	}
	slot.Status = to
	return true, nil
}

func (f *fakeSlotRepo) UpdateStatusCASTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to entity.SlotStatus) (bool, error) {
	return f.UpdateStatusCAS(ctx, id, from, to)
}

func (f *fakeSlotRepo) FetchDue(ctx context.Context, now time.Time, limit int) ([]repository.DueSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakeSlotRepo) Reschedule(ctx context.Context, id uuid.UUID, lastCheckAt, nextCheckAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = nextCheckAt
	return nil
}

func (f *fakeSlotRepo) Backoff(ctx context.Context, id uuid.UUID, nextCheckAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backedOff[id] = nextCheckAt
	return nil
}

func (f *fakeSlotRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, slot := range f.slots {
		if (slot.Status == entity.SlotStatusMonitoring || slot.Status == entity.SlotStatusAvailable) && !slot.SlotStart.After(now) {
			slot.Status = entity.SlotStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeSlotRepo) PromotePending(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, slot := range f.slots {
		if slot.Status == entity.SlotStatusPending && slot.SlotStart.After(now) && f.enabledOwners[slot.OwnerID] {
			slot.Status = entity.SlotStatusMonitoring
			next := now
			slot.NextCheckAt = &next
			n++
		}
	}
	return n, nil
}

func (f *fakeSlotRepo) CountByStatus(ctx context.Context, ownerID uuid.UUID) (entity.StatusCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := entity.StatusCounts{}
	for _, slot := range f.slots {
		if slot.OwnerID == ownerID {
			counts[slot.Status]++
		}
	}
	return counts, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	results []gatewayResult
	calls   int
}

type gatewayResult struct {
	free bool
	err  error
}

func (f *fakeGateway) CheckFree(ctx context.Context, conn *calentity.CalendarConnection, windowStart, windowEnd time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	r := f.results[idx]
	return r.free, r.err
}

type fakeEnsurer struct {
	token      string
	ensureErr  error
	refreshErr error
	refreshed  int
}

func (f *fakeEnsurer) EnsureValid(ctx context.Context, conn *calentity.CalendarConnection) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return f.token, nil
}

func (f *fakeEnsurer) Refresh(ctx context.Context, conn *calentity.CalendarConnection) (string, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.token + "-refreshed", nil
}

type fakeMatcher struct {
	mu      sync.Mutex
	offered []uuid.UUID
}

func (f *fakeMatcher) OfferNext(ctx context.Context, slot *entity.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offered = append(f.offered, slot.ID)
	return nil
}

// fakeConnRegistry implements the calendar repository surface the watcher
// touches; only DisableConnection matters here.
type fakeConnRegistry struct {
	mu       sync.Mutex
	disabled map[uuid.UUID]string
}

func newFakeConnRegistry() *fakeConnRegistry {
	return &fakeConnRegistry{disabled: make(map[uuid.UUID]string)}
}

func (f *fakeConnRegistry) CreateConnection(ctx context.Context, conn *calentity.CalendarConnection) (*calentity.CalendarConnection, error) {
	return conn, nil
}

func (f *fakeConnRegistry) GetConnectionByID(ctx context.Context, id uuid.UUID) (*calentity.CalendarConnection, error) {
	return nil, nil
}

func (f *fakeConnRegistry) GetConnectionByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*calentity.CalendarConnection, error) {
	return nil, nil
}

func (f *fakeConnRegistry) GetConnectionsByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]calentity.CalendarConnection, error) {
	return nil, nil
}

func (f *fakeConnRegistry) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error {
	return nil
}

func (f *fakeConnRegistry) DisableConnection(ctx context.Context, id uuid.UUID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[id] = lastError
	return nil
}

func (f *fakeConnRegistry) EnableConnection(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeConnRegistry) SaveOAuthState(ctx context.Context, state string, ownerID uuid.UUID, expiresAt time.Time) error {
	return nil
}

func (f *fakeConnRegistry) ConsumeOAuthState(ctx context.Context, state string) (*calentity.OAuthState, error) {
	return nil, nil
}

func (f *fakeConnRegistry) CleanupExpiredOAuthStates(ctx context.Context) error {
	return nil
}

func engineConfig() config.EngineConfig {
	return config.EngineConfig{
		TickSeconds:        1,
		Workers:            4,
		BatchSize:          10,
		OfferWindowMinutes: 30,
		TransientRetryMax:  1,
		BackoffBaseSeconds: 1,
	}
}

func dueSlotAt(start time.Time) (repository.DueSlot, *entity.Slot) {
	slot := &entity.Slot{
		OwnerID:              uuid.New(),
		SlotStart:            start,
		SlotEnd:              start.Add(time.Hour),
		Status:               entity.SlotStatusMonitoring,
		CheckIntervalMinutes: 10,
	}
	slot.ID = uuid.New()

	conn := calentity.CalendarConnection{
		OwnerID:     slot.OwnerID,
		Provider:    "google",
		AccessToken: "stored-token",
		CalendarID:  "primary",
		IsEnabled:   true,
	}
	conn.ID = uuid.New()

	return repository.DueSlot{Slot: *slot, Connection: conn}, slot
}

func watcherUnderTest(repo *fakeSlotRepo, conns *fakeConnRegistry, gw *fakeGateway, ens *fakeEnsurer, matcher *fakeMatcher) *Watcher {
	w := NewWatcher(repo, conns, gw, ens, engineConfig())
	w.SetMatcher(matcher)
	return w
}

func TestWatcherFreeSlotBecomesAvailableAndOffers(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	gw := &fakeGateway{results: []gatewayResult{{free: true}}}
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, newFakeConnRegistry(), gw, &fakeEnsurer{token: "t"}, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusAvailable, stored.Status)
	assert.Equal(t, []uuid.UUID{slot.ID}, matcher.offered)
}

func TestWatcherPromotesPendingSlotsOnceConnected(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	slot := &entity.Slot{
		OwnerID:              uuid.New(),
		SlotStart:            start,
		SlotEnd:              start.Add(time.Hour),
		Status:               entity.SlotStatusPending,
		CheckIntervalMinutes: 10,
	}
	slot.ID = uuid.New()

	repo := newFakeSlotRepo()
	repo.put(slot)
	w := watcherUnderTest(repo, newFakeConnRegistry(), &fakeGateway{}, &fakeEnsurer{token: "t"}, &fakeMatcher{})

	// No enabled connection yet: the slot stays out of the pool.
	require.NoError(t, w.Run(context.Background(), time.Now()))
	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusPending, stored.Status)

	repo.mu.Lock()
	repo.enabledOwners[slot.OwnerID] = true
	repo.mu.Unlock()

	now := time.Now()
	require.NoError(t, w.Run(context.Background(), now))
	stored, _ = repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusMonitoring, stored.Status)
	require.NotNil(t, stored.NextCheckAt)
	assert.Equal(t, now, *stored.NextCheckAt)
}

func TestWatcherBusySlotIsRescheduled(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	gw := &fakeGateway{results: []gatewayResult{{free: false}}}
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, newFakeConnRegistry(), gw, &fakeEnsurer{token: "t"}, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusMonitoring, stored.Status)
	assert.Empty(t, matcher.offered)
	assert.Contains(t, repo.rescheduled, slot.ID)
}

func TestWatcherTransientFailureBacksOff(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	transient := errors.NewAppError(errors.ErrTransient, "upstream 502", nil)
	gw := &fakeGateway{results: []gatewayResult{{err: transient}}}
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, newFakeConnRegistry(), gw, &fakeEnsurer{token: "t"}, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusMonitoring, stored.Status)
	assert.Empty(t, matcher.offered)
	assert.Contains(t, repo.backedOff, slot.ID)
	// retry inside the tick: initial attempt plus TransientRetryMax
	assert.Equal(t, 2, gw.calls)
}

func TestWatcherAuthRevokedDisablesConnection(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	conns := newFakeConnRegistry()
	revoked := errors.NewAppError(errors.ErrAuthRevoked, "grant revoked", nil)
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, conns, &fakeGateway{results: []gatewayResult{{}}}, &fakeEnsurer{ensureErr: revoked}, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	assert.Contains(t, conns.disabled, due.Connection.ID)
	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusMonitoring, stored.Status)
}

func TestWatcherRejectedTokenForcesOneRefresh(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	unauthorized := errors.NewAppError(errors.ErrUnauthorized, "token rejected", nil)
	gw := &fakeGateway{results: []gatewayResult{{err: unauthorized}, {free: true}}}
	ens := &fakeEnsurer{token: "t"}
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, newFakeConnRegistry(), gw, ens, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	assert.Equal(t, 1, ens.refreshed)
	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusAvailable, stored.Status)
}

func TestWatcherStaleSlotIsNotOffered(t *testing.T) {
	start := time.Now().Add(24 * time.Hour)
	due, slot := dueSlotAt(start)

	// Cancelled between the fetch and the probe.
	slot.Status = entity.SlotStatusCancelled
	repo := newFakeSlotRepo()
	repo.put(slot)
	repo.due = []repository.DueSlot{due}

	gw := &fakeGateway{results: []gatewayResult{{free: true}}}
	matcher := &fakeMatcher{}
	w := watcherUnderTest(repo, newFakeConnRegistry(), gw, &fakeEnsurer{token: "t"}, matcher)

	require.NoError(t, w.Run(context.Background(), time.Now()))

	assert.Empty(t, matcher.offered)
	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusCancelled, stored.Status)
}

func TestWatcherExpiresStaleSlots(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	_, slot := dueSlotAt(past)

	repo := newFakeSlotRepo()
	repo.put(slot)

	w := watcherUnderTest(repo, newFakeConnRegistry(), &fakeGateway{results: []gatewayResult{{}}}, &fakeEnsurer{token: "t"}, &fakeMatcher{})

	require.NoError(t, w.Run(context.Background(), time.Now()))

	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusExpired, stored.Status)
}

package service

import (
	"context"
	"testing"
	"time"

	"waitlist-engine/core/errors"
	calentity "waitlist-engine/modules/calendar/entity"
	"waitlist-engine/modules/slot/dto"
	"waitlist-engine/modules/slot/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connRegistryWithConn returns a registry whose owner lookup yields one
// enabled connection.
type connRegistryWithConn struct {
	fakeConnRegistry
	conn *calentity.CalendarConnection
}

func (f *connRegistryWithConn) GetConnectionByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*calentity.CalendarConnection, error) {
	if f.conn != nil && f.conn.OwnerID == ownerID {
		return f.conn, nil
	}
	return nil, nil
}

func TestCreateSlotStartsMonitoringWithConnection(t *testing.T) {
	ownerID := uuid.New()
	conn := &calentity.CalendarConnection{OwnerID: ownerID, Provider: "google", IsEnabled: true}
	conn.ID = uuid.New()

	repo := newFakeSlotRepo()
	svc := NewSlotService(repo, &connRegistryWithConn{conn: conn})

	start := time.Now().Add(48 * time.Hour)
	slot, err := svc.Create(context.Background(), ownerID, &dto.CreateSlotRequest{
		SlotStart: start,
		SlotEnd:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.SlotStatusMonitoring, slot.Status)
	assert.Equal(t, 10, slot.CheckIntervalMinutes)
	require.NotNil(t, slot.NextCheckAt)
}

func TestCreateSlotWithoutConnectionStaysPending(t *testing.T) {
	repo := newFakeSlotRepo()
	svc := NewSlotService(repo, newFakeConnRegistry())

	start := time.Now().Add(48 * time.Hour)
	slot, err := svc.Create(context.Background(), uuid.New(), &dto.CreateSlotRequest{
		SlotStart: start,
		SlotEnd:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.SlotStatusPending, slot.Status)
}

func TestCreateSlotRejectsInvalidWindow(t *testing.T) {
	svc := NewSlotService(newFakeSlotRepo(), newFakeConnRegistry())

	start := time.Now().Add(48 * time.Hour)
	_, err := svc.Create(context.Background(), uuid.New(), &dto.CreateSlotRequest{
		SlotStart: start,
		SlotEnd:   start.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInput, errors.CodeOf(err))
}

func TestCancelMonitoringSlot(t *testing.T) {
	start := time.Now().Add(48 * time.Hour)
	_, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	svc := NewSlotService(repo, newFakeConnRegistry())

	require.NoError(t, svc.Cancel(context.Background(), slot.ID, slot.OwnerID))

	stored, _ := repo.GetByID(context.Background(), slot.ID)
	assert.Equal(t, entity.SlotStatusCancelled, stored.Status)
}

func TestCancelFilledSlotIsStale(t *testing.T) {
	start := time.Now().Add(48 * time.Hour)
	_, slot := dueSlotAt(start)
	slot.Status = entity.SlotStatusFilled

	repo := newFakeSlotRepo()
	repo.put(slot)
	svc := NewSlotService(repo, newFakeConnRegistry())

	err := svc.Cancel(context.Background(), slot.ID, slot.OwnerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrStaleState, errors.CodeOf(err))
}

func TestDeleteRejectsActiveSlot(t *testing.T) {
	start := time.Now().Add(48 * time.Hour)
	_, slot := dueSlotAt(start)

	repo := newFakeSlotRepo()
	repo.put(slot)
	svc := NewSlotService(repo, newFakeConnRegistry())

	err := svc.Delete(context.Background(), slot.ID, slot.OwnerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInput, errors.CodeOf(err))
}

func TestDeleteTerminalSlotThenMissing(t *testing.T) {
	start := time.Now().Add(48 * time.Hour)
	_, slot := dueSlotAt(start)
	slot.Status = entity.SlotStatusCancelled

	repo := newFakeSlotRepo()
	repo.put(slot)
	svc := NewSlotService(repo, newFakeConnRegistry())

	require.NoError(t, svc.Delete(context.Background(), slot.ID, slot.OwnerID))

	err := svc.Delete(context.Background(), slot.ID, slot.OwnerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestStatsFillRate(t *testing.T) {
	ownerID := uuid.New()
	repo := newFakeSlotRepo()

	add := func(status entity.SlotStatus) {
		slot := &entity.Slot{OwnerID: ownerID, Status: status}
		slot.ID = uuid.New()
		repo.put(slot)
	}
	add(entity.SlotStatusFilled)
	add(entity.SlotStatusFilled)
	add(entity.SlotStatusFilled)
	add(entity.SlotStatusExpired)
	add(entity.SlotStatusMonitoring)

	svc := NewSlotService(repo, newFakeConnRegistry())
	stats, err := svc.Stats(context.Background(), ownerID)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalSlots)
	assert.InDelta(t, 0.75, stats.FillRate, 1e-9)
	assert.Equal(t, 3, stats.Counts["filled"])
}

package service

import (
	"context"
	"testing"
	"time"

	"waitlist-engine/core/errors"
	slotentity "waitlist-engine/modules/slot/entity"
	"waitlist-engine/modules/waitlist/dto"
	"waitlist-engine/modules/waitlist/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryServiceFixture(t *testing.T) (*matcherFixture, EntryService) {
	t.Helper()
	fx := newMatcherFixture(t, false)
	svc := NewEntryService(fx.entries, fx.matcher).(*entryService)
	svc.now = func() time.Time { return fx.now }
	return fx, svc
}

func TestCreateEntryDefaults(t *testing.T) {
	fx, svc := entryServiceFixture(t)

	entry, err := svc.Create(context.Background(), fx.ownerID, &dto.CreateEntryRequest{
		CustomerName:  "Customer",
		CustomerEmail: "customer@example.com",
		RequestedSlot: fx.now.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, entity.EntryStatusPending, entry.Status)
	assert.Equal(t, 1, entry.NbPersons)
	assert.Equal(t, "manual", entry.Source)
	assert.NotEmpty(t, entry.ConfirmToken)
	assert.Positive(t, entry.Priority)
}

func TestCreateEntryRejectsPastSlot(t *testing.T) {
	fx, svc := entryServiceFixture(t)

	_, err := svc.Create(context.Background(), fx.ownerID, &dto.CreateEntryRequest{
		CustomerName:  "Customer",
		CustomerEmail: "customer@example.com",
		RequestedSlot: fx.now.Add(-time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInput, errors.CodeOf(err))
}

func TestCancelPendingEntry(t *testing.T) {
	fx, svc := entryServiceFixture(t)
	entry := fx.addEntry(fx.now.Add(24 * time.Hour))

	require.NoError(t, svc.Cancel(context.Background(), entry.ID, fx.ownerID))
	assert.Equal(t, entity.EntryStatusCancelled, fx.entryState(t, entry.ID).Status)
}

func TestCancelNotifiedEntryAdvancesChain(t *testing.T) {
	fx, svc := entryServiceFixture(t)
	start := fx.now.Add(24 * time.Hour)
	slot := fx.addSlot(start)
	first := fx.addEntry(start)
	second := fx.addEntry(start)

	require.NoError(t, fx.matcher.OfferNext(context.Background(), slot))
	require.Equal(t, entity.EntryStatusNotified, fx.entryState(t, first.ID).Status)

	require.NoError(t, svc.Cancel(context.Background(), first.ID, fx.ownerID))

	assert.Equal(t, entity.EntryStatusCancelled, fx.entryState(t, first.ID).Status)
	assert.Equal(t, entity.EntryStatusNotified, fx.entryState(t, second.ID).Status)
	assert.Equal(t, slotentity.SlotStatusAvailable, fx.slotState(t, slot.ID).Status)
}

func TestCancelResolvedEntryIsStale(t *testing.T) {
	fx, svc := entryServiceFixture(t)
	start := fx.now.Add(24 * time.Hour)
	slot := fx.addSlot(start)
	entry := fx.addEntry(start)

	require.NoError(t, fx.matcher.OfferNext(context.Background(), slot))
	_, _, err := fx.matcher.Confirm(context.Background(), fx.entryState(t, entry.ID).ConfirmToken)
	require.NoError(t, err)

	err = svc.Cancel(context.Background(), entry.ID, fx.ownerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrStaleState, errors.CodeOf(err))
}

func TestDeleteEntryOnlyWhenResolved(t *testing.T) {
	fx, svc := entryServiceFixture(t)
	entry := fx.addEntry(fx.now.Add(24 * time.Hour))

	err := svc.Delete(context.Background(), entry.ID, fx.ownerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInput, errors.CodeOf(err))

	require.NoError(t, svc.Cancel(context.Background(), entry.ID, fx.ownerID))
	require.NoError(t, svc.Delete(context.Background(), entry.ID, fx.ownerID))

	_, err = svc.Get(context.Background(), entry.ID, fx.ownerID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

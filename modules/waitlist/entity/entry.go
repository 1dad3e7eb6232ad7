package entity

import (
	"time"

	"waitlist-engine/core/entity"

	"github.com/google/uuid"
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusNotified  EntryStatus = "notified"
	EntryStatusConfirmed EntryStatus = "confirmed"
	EntryStatusDeclined  EntryStatus = "declined"
	EntryStatusExpired   EntryStatus = "expired"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryStatusConfirmed, EntryStatusDeclined, EntryStatusExpired, EntryStatusCancelled:
		return true
	}
	return false
}

// Entry is one customer position in an owner's waitlist. Priority is a
// bigserial so insertion order is the tiebreaker inside a matching window.
// At most one entry per slot holds status notified at any time.
type Entry struct {
	entity.BaseEntity
	OwnerID          uuid.UUID       `db:"owner_id" json:"owner_id"`
	CustomerName     string          `db:"customer_name" json:"customer_name"`
	CustomerEmail    string          `db:"customer_email" json:"customer_email"`
	CustomerPhone    *string         `db:"customer_phone" json:"customer_phone,omitempty"`
	RequestedSlot    time.Time       `db:"requested_slot" json:"requested_slot"`
	AlternativeSlots entity.TimeList `db:"alternative_slots" json:"alternative_slots,omitempty"`
	NbPersons        int             `db:"nb_persons" json:"nb_persons"`
	Priority         int64           `db:"priority" json:"priority"`
	Status           EntryStatus     `db:"status" json:"status"`
	Source           string          `db:"source" json:"source"`
	ConfirmToken     string          `db:"confirm_token" json:"-"`
	OfferedSlotID    *uuid.UUID      `db:"offered_slot_id" json:"offered_slot_id,omitempty"`
	NotifiedAt       *time.Time      `db:"notified_at" json:"notified_at,omitempty"`
	OfferExpiresAt   *time.Time      `db:"offer_expires_at" json:"offer_expires_at,omitempty"`
	ConfirmedAt      *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

func (Entry) TableName() string {
	return "entries"
}

// Matches reports whether the entry asked for a time inside the given
// window, either as the requested slot or one of the alternatives.
func (e *Entry) Matches(windowStart, windowEnd time.Time) bool {
	in := func(ts time.Time) bool {
		return !ts.Before(windowStart) && ts.Before(windowEnd)
	}
	if in(e.RequestedSlot) {
		return true
	}
	for _, alt := range e.AlternativeSlots {
		if in(alt) {
			return true
		}
	}
	return false
}

type PaginatedEntries = entity.Pagination[Entry]

type StatusCounts map[EntryStatus]int

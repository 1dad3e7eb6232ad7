package entity

import (
	"time"

	"waitlist-engine/core/entity"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusPending    SlotStatus = "pending"
	SlotStatusMonitoring SlotStatus = "monitoring"
	SlotStatusAvailable  SlotStatus = "available"
	SlotStatusFilled     SlotStatus = "filled"
	SlotStatusExpired    SlotStatus = "expired"
	SlotStatusCancelled  SlotStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s SlotStatus) Terminal() bool {
	switch s {
	case SlotStatusFilled, SlotStatusExpired, SlotStatusCancelled:
		return true
	}
	return false
}

// Slot is a monitored appointment time window. All status transitions go
// through the repository's compare-and-set update; whichever transition wins
// is final and the loser observes stale state.
type Slot struct {
	entity.BaseEntity
	OwnerID              uuid.UUID  `db:"owner_id" json:"owner_id"`
	SlotStart            time.Time  `db:"slot_start" json:"slot_start"`
	SlotEnd              time.Time  `db:"slot_end" json:"slot_end"`
	Status               SlotStatus `db:"status" json:"status"`
	CheckIntervalMinutes int        `db:"check_interval_minutes" json:"check_interval_minutes"`
	LastCheckAt          *time.Time `db:"last_check_at" json:"last_check_at,omitempty"`
	NextCheckAt          *time.Time `db:"next_check_at" json:"next_check_at,omitempty"`
	CalendarEventRef     *string    `db:"calendar_event_ref" json:"calendar_event_ref,omitempty"`
}

func (Slot) TableName() string {
	return "slots"
}

func (s *Slot) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMinutes) * time.Minute
}

// Window reports whether ts falls inside the slot's time window.
func (s *Slot) Window(ts time.Time) bool {
	return !ts.Before(s.SlotStart) && ts.Before(s.SlotEnd)
}

type PaginatedSlots = entity.Pagination[Slot]

// StatusCounts is the admin stats projection.
type StatusCounts map[SlotStatus]int

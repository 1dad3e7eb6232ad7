package dto

import "time"

// CreateSlotRequest registers a time window for monitoring. Created when a
// customer asks for a time that is currently taken.
type CreateSlotRequest struct {
	SlotStart            time.Time `json:"slot_start" validate:"required"`
	SlotEnd              time.Time `json:"slot_end" validate:"required"`
	CheckIntervalMinutes int       `json:"check_interval_minutes"`
	CalendarEventRef     *string   `json:"calendar_event_ref,omitempty"`
}

// SlotStatsResponse is the read-only dashboard projection.
type SlotStatsResponse struct {
	Counts     map[string]int `json:"counts"`
	FillRate   float64        `json:"fill_rate"`
	TotalSlots int            `json:"total_slots"`
}

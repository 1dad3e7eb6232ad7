package dto

import (
	"time"

	"waitlist-engine/modules/waitlist/entity"
)

// CreateEntryRequest adds a customer to the waitlist.
type CreateEntryRequest struct {
	CustomerName     string      `json:"customer_name" validate:"required"`
	CustomerEmail    string      `json:"customer_email" validate:"required,email"`
	CustomerPhone    *string     `json:"customer_phone,omitempty"`
	RequestedSlot    time.Time   `json:"requested_slot" validate:"required"`
	AlternativeSlots []time.Time `json:"alternative_slots,omitempty"`
	NbPersons        int         `json:"nb_persons"`
	Source           string      `json:"source"`
}

// OfferResponse is the public view behind a confirmation link. It exposes
// only what the customer needs to act on the offer.
type OfferResponse struct {
	CustomerName   string             `json:"customer_name"`
	Status         entity.EntryStatus `json:"status"`
	SlotStart      *time.Time         `json:"slot_start,omitempty"`
	SlotEnd        *time.Time         `json:"slot_end,omitempty"`
	OfferExpiresAt *time.Time         `json:"offer_expires_at,omitempty"`
}

// EntryStatsResponse is the owner dashboard projection.
type EntryStatsResponse struct {
	Counts       map[string]int `json:"counts"`
	TotalEntries int            `json:"total_entries"`
}

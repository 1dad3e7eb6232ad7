package entity

import (
	"time"

	"waitlist-engine/core/entity"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type DeliveryStatus string

const (
	DeliveryStatusQueued DeliveryStatus = "queued"
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Notification is a delivery log row. One row per channel attempt group; the
// queue handles retries and the row records the final outcome.
type Notification struct {
	entity.BaseEntity
	OwnerID   uuid.UUID      `db:"owner_id" json:"owner_id"`
	EntryID   uuid.UUID      `db:"entry_id" json:"entry_id"`
	Channel   Channel        `db:"channel" json:"channel"`
	Recipient string         `db:"recipient" json:"recipient"`
	Subject   string         `db:"subject" json:"subject"`
	Payload   entity.JSONB   `db:"payload" json:"payload"`
	Status    DeliveryStatus `db:"status" json:"status"`
	Attempts  int            `db:"attempts" json:"attempts"`
	LastError *string        `db:"last_error" json:"last_error,omitempty"`
	SentAt    *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

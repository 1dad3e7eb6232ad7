package entity

import (
	"time"

	"waitlist-engine/core/entity"

	"github.com/google/uuid"
)

// CalendarConnection stores a business's calendar provider credentials.
// Slots owned by a disabled connection are suspended until reconnection.
type CalendarConnection struct {
	entity.BaseEntity
	OwnerID      uuid.UUID `db:"owner_id" json:"owner_id"`
	Provider     string    `db:"provider" json:"provider"` // "google"
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	TokenExpiry  time.Time `db:"token_expiry" json:"token_expiry"`
	CalendarID   string    `db:"calendar_id" json:"calendar_id"`
	IsEnabled    bool      `db:"is_enabled" json:"is_enabled"`
	LastError    *string   `db:"last_error" json:"last_error,omitempty"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

// OAuthState is a short-lived anti-forgery token for the connect flow.
// The state string itself is the primary key.
type OAuthState struct {
	State     string    `db:"state"`
	OwnerID   uuid.UUID `db:"owner_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

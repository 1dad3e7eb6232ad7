package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type BaseEntity struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Pagination[T any] struct {
	Items      []T `json:"items"`
	TotalItems int `json:"total_items"`
	PageNumber int `json:"page_number"`
	PageSize   int `json:"page_size"`
}

// TimeList is an ordered list of timestamps stored as a JSONB column of
// RFC3339 strings.
type TimeList []time.Time

func (t TimeList) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal([]string{})
	}
	out := make([]string, len(t))
	for i, ts := range t {
		out[i] = ts.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

func (t *TimeList) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := make(TimeList, 0, len(raw))
	for _, s := range raw {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		parsed = append(parsed, ts)
	}
	*t = parsed
	return nil
}

// JSONB maps a postgres jsonb column onto a generic object.
type JSONB map[string]interface{}

func (a JSONB) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *JSONB) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &a)
}

package dto

// CalendarConnectionResponse represents a calendar connection
type CalendarConnectionResponse struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	CalendarID  string  `json:"calendar_id"`
	IsEnabled   bool    `json:"is_enabled"`
	LastError   *string `json:"last_error,omitempty"`
	ConnectedAt string  `json:"connected_at"`
}

// OAuthURLResponse response with OAuth URL
type OAuthURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

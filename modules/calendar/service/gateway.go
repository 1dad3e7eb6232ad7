package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"waitlist-engine/core/constants"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/modules/calendar/entity"
)

const googleFreeBusyAPI = "https://www.googleapis.com/calendar/v3/freeBusy"

// Gateway is the thin client over the calendar provider's free/busy query.
// Error mapping: network/5xx -> ErrTransient, 401 -> ErrUnauthorized (caller
// refreshes and retries), 403 or revoked grant -> ErrAuthRevoked.
type Gateway interface {
	CheckFree(ctx context.Context, conn *entity.CalendarConnection, windowStart, windowEnd time.Time) (bool, error)
}

type googleGateway struct {
	client      *http.Client
	freeBusyURL string
}

func NewGateway() Gateway {
	return &googleGateway{
		client:      &http.Client{Timeout: constants.CalendarHTTPTimeout},
		freeBusyURL: googleFreeBusyAPI,
	}
}

func (g *googleGateway) CheckFree(ctx context.Context, conn *entity.CalendarConnection, windowStart, windowEnd time.Time) (bool, error) {
	payload := map[string]interface{}{
		"timeMin": windowStart.Format(time.RFC3339),
		"timeMax": windowEnd.Format(time.RFC3339),
		"items": []map[string]string{
			{"id": conn.CalendarID},
		},
	}
	payloadJSON, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.freeBusyURL, strings.NewReader(string(payloadJSON)))
	if err != nil {
		return false, errors.NewAppError(errors.ErrInternalServer, "failed to build freeBusy request", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return false, errors.NewAppError(errors.ErrTransient, "freeBusy call failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, errors.NewAppError(errors.ErrUnauthorized, "access token rejected", nil)
	case resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		return false, errors.NewAppError(errors.ErrAuthRevoked, fmt.Sprintf("calendar access revoked: %s", string(body)), nil)
	case resp.StatusCode >= 500:
		return false, errors.NewAppError(errors.ErrTransient, fmt.Sprintf("freeBusy API returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return false, errors.NewAppError(errors.ErrInternalServer, fmt.Sprintf("freeBusy API error: %s", string(body)), nil)
	}

	var result struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"calendars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, errors.NewAppError(errors.ErrTransient, "failed to parse freeBusy response", err)
	}

	cal, ok := result.Calendars[conn.CalendarID]
	if !ok {
		return false, errors.NewAppError(errors.ErrInternalServer, "calendar missing from freeBusy response", nil)
	}
	for _, calErr := range cal.Errors {
		if calErr.Reason == "notFound" {
			return false, errors.NewAppError(errors.ErrAuthRevoked, "calendar not found for connection", nil)
		}
		logger.Warn("Gateway:CheckFree:CalendarError", "reason", calErr.Reason, "connection_id", conn.ID)
	}

	for _, busy := range cal.Busy {
		busyStart, err1 := time.Parse(time.RFC3339, busy.Start)
		busyEnd, err2 := time.Parse(time.RFC3339, busy.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if busyStart.Before(windowEnd) && busyEnd.After(windowStart) {
			return false, nil
		}
	}
	return true, nil
}

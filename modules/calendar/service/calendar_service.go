package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"waitlist-engine/core/config"
	"waitlist-engine/core/constants"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/core/utils"
	"waitlist-engine/modules/calendar/dto"
	"waitlist-engine/modules/calendar/entity"
	"waitlist-engine/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoAPI = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// CalendarService drives the OAuth connect flow and connection management.
type CalendarService interface {
	AuthorizeURL(ctx context.Context, ownerID uuid.UUID) (*dto.OAuthURLResponse, error)
	HandleCallback(ctx context.Context, state, code string) (*entity.CalendarConnection, error)
	GetConnections(ctx context.Context, ownerID uuid.UUID) ([]dto.CalendarConnectionResponse, error)
	Disconnect(ctx context.Context, ownerID uuid.UUID, provider string) error
	Reconnect(ctx context.Context, ownerID uuid.UUID, provider string) error
}

type calendarService struct {
	repo     repository.CalendarRepository
	endpoint oauth2.Endpoint
}

func NewCalendarService(repo repository.CalendarRepository) CalendarService {
	return &calendarService{repo: repo, endpoint: google.Endpoint}
}

func (s *calendarService) oauthConfig() *oauth2.Config {
	cfg, _ := config.GetSafe()
	conf := &oauth2.Config{
		Endpoint: s.endpoint,
		Scopes:   googleScopes,
	}
	if cfg != nil {
		conf.ClientID = cfg.GoogleAPI.ClientID
		conf.ClientSecret = cfg.GoogleAPI.ClientSecret
		conf.RedirectURL = cfg.GoogleAPI.RedirectURL
	}
	return conf
}

func (s *calendarService) AuthorizeURL(ctx context.Context, ownerID uuid.UUID) (*dto.OAuthURLResponse, error) {
	state := utils.GenerateRandomString(24)
	if err := s.repo.SaveOAuthState(ctx, state, ownerID, time.Now().Add(constants.OAuthStateTTL)); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to persist oauth state", err)
	}

	url := s.oauthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	return &dto.OAuthURLResponse{URL: url, State: state}, nil
}

func (s *calendarService) HandleCallback(ctx context.Context, state, code string) (*entity.CalendarConnection, error) {
	stateRow, err := s.repo.ConsumeOAuthState(ctx, state)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to look up oauth state", err)
	}
	if stateRow == nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown or expired oauth state", nil)
	}

	conf := s.oauthConfig()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		logger.Error("CalendarService:HandleCallback:Exchange:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrUnauthorized, "code exchange failed", err)
	}

	calendarID := s.fetchCalendarEmail(ctx, tok.AccessToken)

	conn := &entity.CalendarConnection{
		OwnerID:      stateRow.OwnerID,
		Provider:     constants.ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
		CalendarID:   calendarID,
		IsEnabled:    true,
	}
	created, err := s.repo.CreateConnection(ctx, conn)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save connection", err)
	}

	logger.Info("CalendarService:HandleCallback:Connected",
		"owner_id", stateRow.OwnerID, "calendar_id", calendarID)
	return created, nil
}

// fetchCalendarEmail resolves the account email used as the free/busy
// calendar id. Falls back to "primary" when userinfo is unreachable.
func (s *calendarService) fetchCalendarEmail(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoAPI, nil)
	if err != nil {
		return "primary"
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: constants.DefaultTimeout}
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("CalendarService:fetchCalendarEmail:Error", "error", err)
		return "primary"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "primary"
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil || info.Email == "" {
		return "primary"
	}
	return info.Email
}

func (s *calendarService) GetConnections(ctx context.Context, ownerID uuid.UUID) ([]dto.CalendarConnectionResponse, error) {
	connections, err := s.repo.GetConnectionsByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list connections", err)
	}

	result := make([]dto.CalendarConnectionResponse, 0, len(connections))
	for _, conn := range connections {
		result = append(result, dto.CalendarConnectionResponse{
			ID:          conn.ID.String(),
			Provider:    conn.Provider,
			CalendarID:  conn.CalendarID,
			IsEnabled:   conn.IsEnabled,
			LastError:   conn.LastError,
			ConnectedAt: conn.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, nil
}

func (s *calendarService) Disconnect(ctx context.Context, ownerID uuid.UUID, provider string) error {
	conn, err := s.repo.GetConnectionByOwnerAndProvider(ctx, ownerID, provider)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to look up connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrNotFound, "no such connection", nil)
	}
	return s.repo.DisableConnection(ctx, conn.ID, "disconnected by owner")
}

// Reconnect re-enables a connection after the owner has resolved an auth
// failure (or re-ran the consent flow).
func (s *calendarService) Reconnect(ctx context.Context, ownerID uuid.UUID, provider string) error {
	conn, err := s.repo.GetConnectionByOwnerAndProvider(ctx, ownerID, provider)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to look up connection", err)
	}
	if conn == nil {
		return errors.NewAppError(errors.ErrNotFound, "no such connection", nil)
	}
	return s.repo.EnableConnection(ctx, conn.ID)
}

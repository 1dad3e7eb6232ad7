package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"waitlist-engine/core/config"
	"waitlist-engine/core/errors"
	"waitlist-engine/core/logger"
	"waitlist-engine/modules/calendar/entity"
	"waitlist-engine/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenRefresher keeps connection access tokens valid. Refreshes run under a
// per-connection lock so concurrent polls never race a token rotation; a
// non-retryable refresh failure disables the connection.
type TokenRefresher struct {
	repo     repository.CalendarRepository
	margin   time.Duration
	endpoint oauth2.Endpoint
	now      func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewTokenRefresher(repo repository.CalendarRepository, margin time.Duration) *TokenRefresher {
	return &TokenRefresher{
		repo:     repo,
		margin:   margin,
		endpoint: google.Endpoint,
		now:      time.Now,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (t *TokenRefresher) lockFor(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// EnsureValid returns an access token usable for at least the safety margin,
// refreshing and persisting new credentials when needed.
func (t *TokenRefresher) EnsureValid(ctx context.Context, conn *entity.CalendarConnection) (string, error) {
	if t.now().Before(conn.TokenExpiry.Add(-t.margin)) {
		return conn.AccessToken, nil
	}

	lock := t.lockFor(conn.ID)
	lock.Lock()
	defer lock.Unlock()

	// Another poll may have refreshed while we waited for the lock.
	fresh, err := t.repo.GetConnectionByID(ctx, conn.ID)
	if err != nil {
		return "", errors.NewAppError(errors.ErrTransient, "failed to reload connection", err)
	}
	if fresh != nil {
		*conn = *fresh
		if t.now().Before(conn.TokenExpiry.Add(-t.margin)) {
			return conn.AccessToken, nil
		}
	}

	return t.Refresh(ctx, conn)
}

// Refresh exchanges the stored refresh token for a new access token and
// persists it. On a revoked grant the connection is disabled.
func (t *TokenRefresher) Refresh(ctx context.Context, conn *entity.CalendarConnection) (string, error) {
	logger.Info("TokenRefresher:Refresh:Start", "connection_id", conn.ID, "owner_id", conn.OwnerID)

	conf := t.oauthConfig()
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		appErr := classifyRefreshError(err)
		if errors.IsAuthRevoked(appErr) {
			logger.Warn("TokenRefresher:Refresh:Revoked", "connection_id", conn.ID, "error", err)
			if dbErr := t.repo.DisableConnection(ctx, conn.ID, appErr.Error()); dbErr != nil {
				logger.Error("TokenRefresher:Refresh:DisableConnection:Error", "error", dbErr)
			}
			conn.IsEnabled = false
		}
		return "", appErr
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		// Google omits the refresh token on rotation; keep the stored one.
		refreshToken = conn.RefreshToken
	}

	if err := t.repo.UpdateTokens(ctx, conn.ID, tok.AccessToken, refreshToken, tok.Expiry); err != nil {
		logger.Error("TokenRefresher:Refresh:UpdateTokens:Error", "error", err, "connection_id", conn.ID)
	}

	conn.AccessToken = tok.AccessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiry = tok.Expiry

	logger.Info("TokenRefresher:Refresh:Success", "connection_id", conn.ID)
	return tok.AccessToken, nil
}

func (t *TokenRefresher) oauthConfig() *oauth2.Config {
	cfg, _ := config.GetSafe()
	conf := &oauth2.Config{Endpoint: t.endpoint}
	if cfg != nil {
		conf.ClientID = cfg.GoogleAPI.ClientID
		conf.ClientSecret = cfg.GoogleAPI.ClientSecret
	}
	return conf
}

func classifyRefreshError(err error) *errors.AppError {
	var rErr *oauth2.RetrieveError
	if stderrors.As(err, &rErr) {
		if rErr.Response != nil && rErr.Response.StatusCode >= 500 {
			return errors.NewAppError(errors.ErrTransient, "token endpoint unavailable", err)
		}
		// invalid_grant and friends: the refresh token is dead.
		return errors.NewAppError(errors.ErrAuthRevoked, "refresh token rejected", err)
	}
	return errors.NewAppError(errors.ErrTransient, "token refresh failed", err)
}

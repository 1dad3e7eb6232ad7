package repository

import (
	"context"
	"database/sql"
	"time"

	"waitlist-engine/core/database"
	"waitlist-engine/core/logger"
	"waitlist-engine/modules/calendar/entity"

	"github.com/google/uuid"
)

type CalendarRepository interface {
	CreateConnection(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error)
	GetConnectionByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error)
	GetConnectionByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*entity.CalendarConnection, error)
	GetConnectionsByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarConnection, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error
	DisableConnection(ctx context.Context, id uuid.UUID, lastError string) error
	EnableConnection(ctx context.Context, id uuid.UUID) error

	SaveOAuthState(ctx context.Context, state string, ownerID uuid.UUID, expiresAt time.Time) error
	ConsumeOAuthState(ctx context.Context, state string) (*entity.OAuthState, error)
	CleanupExpiredOAuthStates(ctx context.Context) error
}

type calendarRepository struct {
	db database.IDatabase
}

func NewCalendarRepository(db database.IDatabase) CalendarRepository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) CreateConnection(ctx context.Context, conn *entity.CalendarConnection) (*entity.CalendarConnection, error) {
	query := `
		INSERT INTO calendar_connections (owner_id, provider, access_token, refresh_token, token_expiry, calendar_id, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, provider)
		DO UPDATE SET access_token = $3, refresh_token = $4, token_expiry = $5, calendar_id = $6,
		              is_enabled = $7, last_error = NULL, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		conn.OwnerID, conn.Provider, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiry, conn.CalendarID, conn.IsEnabled,
	).Scan(&conn.ID, &conn.CreatedAt, &conn.UpdatedAt)

	if err != nil {
		logger.Error("CalendarRepository:CreateConnection:Error", "error", err, "owner_id", conn.OwnerID)
		return nil, err
	}
	return conn, nil
}

func (r *calendarRepository) GetConnectionByID(ctx context.Context, id uuid.UUID) (*entity.CalendarConnection, error) {
	var conn entity.CalendarConnection
	query := `SELECT * FROM calendar_connections WHERE id = $1`
	if err := r.db.GetContext(ctx, &conn, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *calendarRepository) GetConnectionByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*entity.CalendarConnection, error) {
	var conn entity.CalendarConnection
	query := `SELECT * FROM calendar_connections WHERE owner_id = $1 AND provider = $2`
	if err := r.db.GetContext(ctx, &conn, query, ownerID, provider); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *calendarRepository) GetConnectionsByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarConnection, error) {
	var connections []entity.CalendarConnection
	query := `SELECT * FROM calendar_connections WHERE owner_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &connections, query, ownerID); err != nil {
		return nil, err
	}
	return connections, nil
}

func (r *calendarRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error {
	query := `
		UPDATE calendar_connections
		SET access_token = $1, refresh_token = $2, token_expiry = $3, last_error = NULL, updated_at = NOW()
		WHERE id = $4
	`
	return r.db.ExecContext(ctx, query, accessToken, refreshToken, expiry, id)
}

// DisableConnection pauses polling for every slot under this connection.
func (r *calendarRepository) DisableConnection(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE calendar_connections
		SET is_enabled = false, last_error = $1, updated_at = NOW()
		WHERE id = $2
	`
	err := r.db.ExecContext(ctx, query, lastError, id)
	if err != nil {
		logger.Error("CalendarRepository:DisableConnection:Error", "error", err, "connection_id", id)
	}
	return err
}

func (r *calendarRepository) EnableConnection(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE calendar_connections
		SET is_enabled = true, last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.db.ExecContext(ctx, query, id)
}

func (r *calendarRepository) SaveOAuthState(ctx context.Context, state string, ownerID uuid.UUID, expiresAt time.Time) error {
	query := `
		INSERT INTO oauth_states (state, owner_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (state)
		DO UPDATE SET expires_at = $3
	`
	err := r.db.ExecContext(ctx, query, state, ownerID, expiresAt)
	if err != nil {
		logger.Error("CalendarRepository:SaveOAuthState:Error", "error", err)
	}
	return err
}

// ConsumeOAuthState returns and deletes a non-expired state token.
func (r *calendarRepository) ConsumeOAuthState(ctx context.Context, state string) (*entity.OAuthState, error) {
	var row entity.OAuthState
	query := `
		DELETE FROM oauth_states
		WHERE state = $1 AND expires_at > NOW()
		RETURNING state, owner_id, expires_at, created_at
	`
	err := r.db.QueryRowContext(ctx, query, state).Scan(
		&row.State, &row.OwnerID, &row.ExpiresAt, &row.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		logger.Error("CalendarRepository:ConsumeOAuthState:Error", "error", err)
		return nil, err
	}
	return &row, nil
}

func (r *calendarRepository) CleanupExpiredOAuthStates(ctx context.Context) error {
	return r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
}

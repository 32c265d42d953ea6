package postgres

import (
	"context"
	"fmt"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Insert adds a new session. Returns ErrDuplicateKey if the key exists.
func (s *SessionStore) Insert(ctx context.Context, sess *domain.TradingSession) error {
	if sess == nil || sess.AssetID == "" || sess.SessionID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trading_sessions (
			asset_id, session_id, week_start_dow, week_end_dow, timezone
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		sess.AssetID, sess.SessionID, sess.WeekStartDow, sess.WeekEndDow, sess.Timezone,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trading session: %w", err)
	}
	return nil
}

// GetByAsset retrieves the asset's session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByAsset(ctx context.Context, assetID string) (*domain.TradingSession, error) {
	query := `
		SELECT asset_id, session_id, week_start_dow, week_end_dow, timezone
		FROM trading_sessions
		WHERE asset_id = $1
		LIMIT 1
	`

	var sess domain.TradingSession
	err := s.pool.QueryRow(ctx, query, assetID).Scan(
		&sess.AssetID, &sess.SessionID, &sess.WeekStartDow, &sess.WeekEndDow, &sess.Timezone,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trading session: %w", err)
	}
	return &sess, nil
}

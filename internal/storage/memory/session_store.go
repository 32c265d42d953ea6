package memory

import (
	"context"
	"fmt"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradingSession // keyed by (asset_id, session_id)
}

// NewSessionStore creates a new in-memory trading session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string]*domain.TradingSession),
	}
}

// sessionKey generates a unique key for a session.
func sessionKey(assetID, sessionID string) string {
	return fmt.Sprintf("%s|%s", assetID, sessionID)
}

// Insert adds a new session. Returns ErrDuplicateKey if the key exists.
func (s *SessionStore) Insert(_ context.Context, sess *domain.TradingSession) error {
	if sess == nil || sess.AssetID == "" || sess.SessionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(sess.AssetID, sess.SessionID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	sessCopy := *sess
	s.data[key] = &sessCopy
	return nil
}

// GetByAsset retrieves the asset's session. Returns ErrNotFound if not exists.
func (s *SessionStore) GetByAsset(_ context.Context, assetID string) (*domain.TradingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.data {
		if sess.AssetID == assetID {
			sessCopy := *sess
			return &sessCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

var _ storage.SessionStore = (*SessionStore)(nil)

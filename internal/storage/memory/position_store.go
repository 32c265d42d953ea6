package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SignalPosition // keyed by (asset_id, entry_ts_ms, signal_id)
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.SignalPosition),
	}
}

// positionKey generates a unique key for a position.
func positionKey(assetID string, entryTsMs int64, signalID string) string {
	return fmt.Sprintf("%s|%d|%s", assetID, entryTsMs, signalID)
}

// Insert adds a new open position. Returns ErrDuplicateKey if the key exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.SignalPosition) error {
	if p == nil || p.AssetID == "" || p.SignalID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(p.AssetID, p.EntryTsMs, p.SignalID)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	posCopy := clonePosition(p)
	s.data[key] = posCopy
	return nil
}

// Close marks a position closed with its exit fields. A position is mutated
// exactly once; closing a closed position returns ErrInvalidInput.
func (s *PositionStore) Close(_ context.Context, assetID string, entryTsMs int64, signalID string, exitTsMs int64, exitPrice, pnlPct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey(assetID, entryTsMs, signalID)
	p, exists := s.data[key]
	if !exists {
		return storage.ErrNotFound
	}
	if p.State == domain.PositionClosed {
		return storage.ErrInvalidInput
	}

	p.State = domain.PositionClosed
	p.ExitTsMs = &exitTsMs
	p.ExitPrice = &exitPrice
	p.PnlPct = &pnlPct
	return nil
}

// GetByAsset retrieves all positions for an asset, ordered by entry timestamp ASC.
func (s *PositionStore) GetByAsset(_ context.Context, assetID string) ([]*domain.SignalPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalPosition
	for _, p := range s.data {
		if p.AssetID == assetID {
			result = append(result, clonePosition(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTsMs < result[j].EntryTsMs
	})

	return result, nil
}

// GetOpen retrieves all open positions for an asset.
func (s *PositionStore) GetOpen(_ context.Context, assetID string) ([]*domain.SignalPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalPosition
	for _, p := range s.data {
		if p.AssetID == assetID && p.State == domain.PositionOpen {
			result = append(result, clonePosition(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].EntryTsMs < result[j].EntryTsMs
	})

	return result, nil
}

// clonePosition deep-copies a position including its feature snapshot.
func clonePosition(p *domain.SignalPosition) *domain.SignalPosition {
	posCopy := *p
	if p.FeatureSnapshot != nil {
		posCopy.FeatureSnapshot = make(map[string]float64, len(p.FeatureSnapshot))
		for k, v := range p.FeatureSnapshot {
			posCopy.FeatureSnapshot[k] = v
		}
	}
	return &posCopy
}

var _ storage.PositionStore = (*PositionStore)(nil)

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// FlipStore is an in-memory implementation of storage.FlipStore.
type FlipStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RegimeFlip // keyed by (asset_id, tf, layer, timestamp_ms)
}

// NewFlipStore creates a new in-memory flip store.
func NewFlipStore() *FlipStore {
	return &FlipStore{
		data: make(map[string]*domain.RegimeFlip),
	}
}

// flipKey generates a unique key for a flip.
func flipKey(assetID, tf string, layer domain.RegimeLayer, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%d|%d", assetID, tf, layer, timestampMs)
}

// InsertBulk adds flips, skipping rows whose key already exists.
func (s *FlipStore) InsertBulk(_ context.Context, flips []*domain.RegimeFlip) (int, error) {
	if len(flips) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range flips {
		if f == nil || f.AssetID == "" || f.Tf == "" || f.NewRegime == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, f := range flips {
		key := flipKey(f.AssetID, f.Tf, f.Layer, f.TimestampMs)
		if _, exists := s.data[key]; exists {
			continue
		}
		flipCopy := *f
		s.data[key] = &flipCopy
		inserted++
	}
	return inserted, nil
}

// GetByAsset retrieves all flips for an asset/timeframe, ordered by timestamp ASC.
func (s *FlipStore) GetByAsset(_ context.Context, assetID, tf string) ([]*domain.RegimeFlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RegimeFlip
	for _, f := range s.data {
		if f.AssetID == assetID && f.Tf == tf {
			flipCopy := *f
			result = append(result, &flipCopy)
		}
	}

	sortFlips(result)
	return result, nil
}

// GetByLayer retrieves flips for one layer, ordered by timestamp ASC.
func (s *FlipStore) GetByLayer(_ context.Context, assetID, tf string, layer domain.RegimeLayer) ([]*domain.RegimeFlip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RegimeFlip
	for _, f := range s.data {
		if f.AssetID == assetID && f.Tf == tf && f.Layer == layer {
			flipCopy := *f
			result = append(result, &flipCopy)
		}
	}

	sortFlips(result)
	return result, nil
}

func sortFlips(flips []*domain.RegimeFlip) {
	sort.Slice(flips, func(i, j int) bool {
		if flips[i].TimestampMs != flips[j].TimestampMs {
			return flips[i].TimestampMs < flips[j].TimestampMs
		}
		return flips[i].Layer < flips[j].Layer
	})
}

var _ storage.FlipStore = (*FlipStore)(nil)

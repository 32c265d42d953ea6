package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// RegimeStore is an in-memory implementation of storage.RegimeStore.
type RegimeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RegimeRecord // keyed by (asset_id, tf, feature_tier, timestamp_ms)
}

// NewRegimeStore creates a new in-memory regime store.
func NewRegimeStore() *RegimeStore {
	return &RegimeStore{
		data: make(map[string]*domain.RegimeRecord),
	}
}

// regimeKey generates a unique key for a regime record.
func regimeKey(assetID, tf string, tier domain.FeatureTier, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", assetID, tf, tier, timestampMs)
}

// InsertBulk adds records, skipping rows whose key already exists.
func (s *RegimeStore) InsertBulk(_ context.Context, recs []*domain.RegimeRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		if r == nil || r.AssetID == "" || r.Tf == "" || r.RegimeKey == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, r := range recs {
		key := regimeKey(r.AssetID, r.Tf, r.FeatureTier, r.TimestampMs)
		if _, exists := s.data[key]; exists {
			continue
		}
		recCopy := *r
		s.data[key] = &recCopy
		inserted++
	}
	return inserted, nil
}

// GetByAsset retrieves all records for an asset/timeframe/tier, ordered by timestamp ASC.
func (s *RegimeStore) GetByAsset(_ context.Context, assetID, tf string, tier domain.FeatureTier) ([]*domain.RegimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RegimeRecord
	for _, r := range s.data {
		if r.AssetID == assetID && r.Tf == tf && r.FeatureTier == tier {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetAt retrieves the record in force at a timestamp.
func (s *RegimeStore) GetAt(_ context.Context, assetID, tf string, tier domain.FeatureTier, ts int64) (*domain.RegimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.RegimeRecord
	for _, r := range s.data {
		if r.AssetID != assetID || r.Tf != tf || r.FeatureTier != tier || r.TimestampMs > ts {
			continue
		}
		if best == nil || r.TimestampMs > best.TimestampMs {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	recCopy := *best
	return &recCopy, nil
}

var _ storage.RegimeStore = (*RegimeStore)(nil)

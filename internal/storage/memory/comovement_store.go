package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// ComovementStore is an in-memory implementation of storage.ComovementStore.
type ComovementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ComovementStat // keyed by (asset_id, tf, series_a, series_b, timestamp_ms)
}

// NewComovementStore creates a new in-memory comovement store.
func NewComovementStore() *ComovementStore {
	return &ComovementStore{
		data: make(map[string]*domain.ComovementStat),
	}
}

// comovementKey generates a unique key for a stat row.
func comovementKey(assetID, tf, seriesA, seriesB string, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", assetID, tf, seriesA, seriesB, timestampMs)
}

// InsertBulk adds stats, skipping rows whose key already exists.
func (s *ComovementStore) InsertBulk(_ context.Context, stats []*domain.ComovementStat) (int, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stats {
		if st == nil || st.AssetID == "" || st.SeriesA == "" || st.SeriesB == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, st := range stats {
		key := comovementKey(st.AssetID, st.Tf, st.SeriesA, st.SeriesB, st.TimestampMs)
		if _, exists := s.data[key]; exists {
			continue
		}
		statCopy := *st
		s.data[key] = &statCopy
		inserted++
	}
	return inserted, nil
}

// GetByAsset retrieves all stats for an asset/timeframe, ordered by timestamp ASC.
func (s *ComovementStore) GetByAsset(_ context.Context, assetID, tf string) ([]*domain.ComovementStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ComovementStat
	for _, st := range s.data {
		if st.AssetID == assetID && st.Tf == tf {
			statCopy := *st
			result = append(result, &statCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByPair retrieves stats for one series pair, ordered by timestamp ASC.
func (s *ComovementStore) GetByPair(_ context.Context, assetID, tf, seriesA, seriesB string) ([]*domain.ComovementStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ComovementStat
	for _, st := range s.data {
		if st.AssetID == assetID && st.Tf == tf && st.SeriesA == seriesA && st.SeriesB == seriesB {
			statCopy := *st
			result = append(result, &statCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.ComovementStore = (*ComovementStore)(nil)

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"regimelab/internal/domain"
	"regimelab/internal/storage"
)

// EmaStore is an in-memory implementation of storage.EmaStore.
type EmaStore struct {
	mu   sync.RWMutex
	data map[string]*domain.EmaObservation // keyed by (asset_id, tf, period, alignment_source, timestamp_ms)
}

// NewEmaStore creates a new in-memory EMA observation store.
func NewEmaStore() *EmaStore {
	return &EmaStore{
		data: make(map[string]*domain.EmaObservation),
	}
}

// emaKey generates a unique key for an observation.
func emaKey(assetID, tf string, period int, source domain.AlignmentSource, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%d|%s|%d", assetID, tf, period, source, timestampMs)
}

// InsertBulk adds observations, skipping rows whose key already exists.
// Series from different alignment sources union under their own keys.
func (s *EmaStore) InsertBulk(_ context.Context, obs []*domain.EmaObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		if o == nil || o.AssetID == "" || o.Tf == "" || o.Period <= 0 {
			return 0, storage.ErrInvalidInput
		}
	}

	inserted := 0
	for _, o := range obs {
		key := emaKey(o.AssetID, o.Tf, o.Period, o.AlignmentSource, o.TimestampMs)
		if _, exists := s.data[key]; exists {
			continue
		}
		obsCopy := *o
		s.data[key] = &obsCopy
		inserted++
	}
	return inserted, nil
}

// GetSeries retrieves one (asset, tf, period, source) series ordered by timestamp ASC.
func (s *EmaStore) GetSeries(_ context.Context, assetID, tf string, period int, source domain.AlignmentSource) ([]*domain.EmaObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EmaObservation
	for _, o := range s.data {
		if o.AssetID == assetID && o.Tf == tf && o.Period == period && o.AlignmentSource == source {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves one series within [start, end] (inclusive).
func (s *EmaStore) GetByTimeRange(_ context.Context, assetID, tf string, period int, source domain.AlignmentSource, start, end int64) ([]*domain.EmaObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EmaObservation
	for _, o := range s.data {
		if o.AssetID == assetID && o.Tf == tf && o.Period == period && o.AlignmentSource == source &&
			o.TimestampMs >= start && o.TimestampMs <= end {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.EmaStore = (*EmaStore)(nil)

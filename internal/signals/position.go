// Package signals runs trading signal rules over bar and EMA series and
// tracks the resulting positions through their open/closed lifecycle.
package signals

import (
	"errors"
	"fmt"

	"regimelab/internal/domain"
)

// ErrPositionAlreadyOpen is returned when an entry fires while the asset's
// current position is still open.
var ErrPositionAlreadyOpen = errors.New("position already open for asset")

// ErrNoOpenPosition is returned when an exit fires with no open position.
var ErrNoOpenPosition = errors.New("no open position for asset")

// Book tracks at most one open position per asset and accumulates closed
// ones. Re-entry after a close starts a fresh position with a new signal id.
type Book struct {
	open   map[string]*domain.SignalPosition
	closed []*domain.SignalPosition
	seq    map[string]int
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{
		open: make(map[string]*domain.SignalPosition),
		seq:  make(map[string]int),
	}
}

// Open transitions an asset from flat to open. regimeKey may be nil when no
// regime record exists for the entry bar; the entry is never blocked on it.
// The feature snapshot is copied so later mutation cannot leak in.
func (b *Book) Open(assetID string, dir domain.Direction, tsMs int64, price float64, regimeKey *string, features map[string]float64) (*domain.SignalPosition, error) {
	if _, ok := b.open[assetID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionAlreadyOpen, assetID)
	}

	b.seq[assetID]++
	snapshot := make(map[string]float64, len(features))
	for k, v := range features {
		snapshot[k] = v
	}
	var key *string
	if regimeKey != nil {
		v := *regimeKey
		key = &v
	}

	pos := &domain.SignalPosition{
		AssetID:         assetID,
		SignalID:        fmt.Sprintf("%s-%d-%d", assetID, tsMs, b.seq[assetID]),
		Direction:       dir,
		State:           domain.PositionOpen,
		EntryTsMs:       tsMs,
		EntryPrice:      price,
		RegimeKey:       key,
		FeatureSnapshot: snapshot,
	}
	b.open[assetID] = pos
	return pos, nil
}

// Close transitions an asset's open position to closed and computes its
// direction-signed percentage return.
func (b *Book) Close(assetID string, tsMs int64, price float64) (*domain.SignalPosition, error) {
	pos, ok := b.open[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOpenPosition, assetID)
	}
	if pos.EntryPrice == 0 {
		return nil, fmt.Errorf("position %s has zero entry price", pos.SignalID)
	}

	pnl := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Direction == domain.DirectionShort {
		pnl = -pnl
	}

	pos.State = domain.PositionClosed
	pos.ExitTsMs = &tsMs
	pos.ExitPrice = &price
	pos.PnlPct = &pnl

	delete(b.open, assetID)
	b.closed = append(b.closed, pos)
	return pos, nil
}

// OpenPosition returns the asset's open position, or nil when flat.
func (b *Book) OpenPosition(assetID string) *domain.SignalPosition {
	return b.open[assetID]
}

// Closed returns all closed positions in close order.
func (b *Book) Closed() []*domain.SignalPosition {
	return b.closed
}

package regime

import (
	"fmt"

	"regimelab/internal/domain"
)

// Resolver turns per-layer labels into a RegimeRecord with the composite
// key and policy for a fixed feature tier. The enabled layer set is
// computed once at construction.
type Resolver struct {
	table   *PolicyTable
	tier    domain.FeatureTier
	enabled []domain.RegimeLayer
}

// NewResolver creates a resolver for the given tier.
func NewResolver(table *PolicyTable, tier domain.FeatureTier) *Resolver {
	return &Resolver{
		table:   table,
		tier:    tier,
		enabled: EnabledLayers(tier),
	}
}

// Enabled returns the resolver's enabled layer set.
func (r *Resolver) Enabled() []domain.RegimeLayer {
	return r.enabled
}

// Record builds the regime record for one bar from the enabled layers'
// labels. Labels for disabled layers are ignored. A missing enabled label
// is rejected before key derivation: dropping it would alias the key of a
// smaller tier and resolve that tier's policy instead.
func (r *Resolver) Record(assetID string, tsMs int64, tf string, labels map[domain.RegimeLayer]string) (*domain.RegimeRecord, error) {
	for _, layer := range r.enabled {
		if _, ok := labels[layer]; !ok {
			return nil, fmt.Errorf("%w: no label for enabled layer L%d", ErrPolicyUndefined, layer)
		}
	}

	key := RegimeKey(labels, r.enabled)
	policy, err := r.table.Resolve(key)
	if err != nil {
		return nil, err
	}

	rec := &domain.RegimeRecord{
		AssetID:     assetID,
		TimestampMs: tsMs,
		Tf:          tf,
		RegimeKey:   key,
		FeatureTier: r.tier,
		Policy:      policy,
	}
	for _, layer := range r.enabled {
		lbl, ok := labels[layer]
		if !ok {
			continue
		}
		v := lbl
		switch layer {
		case domain.LayerL0:
			rec.L0 = &v
		case domain.LayerL1:
			rec.L1 = &v
		case domain.LayerL2:
			rec.L2 = &v
		case domain.LayerL3:
			rec.L3 = &v
		case domain.LayerL4:
			rec.L4 = &v
		}
	}
	return rec, nil
}

package regime

import "regimelab/internal/domain"

// EnabledLayers returns the layer set a feature tier computes, resolved once
// per (asset, timeframe) configuration and passed explicitly to the
// classifier and resolver. L3/L4 stay disabled until intraday data exists.
func EnabledLayers(tier domain.FeatureTier) []domain.RegimeLayer {
	switch tier {
	case domain.TierLite:
		return []domain.RegimeLayer{domain.LayerL2}
	case domain.TierStandard:
		return []domain.RegimeLayer{domain.LayerL1, domain.LayerL2}
	case domain.TierFull:
		return []domain.RegimeLayer{domain.LayerL0, domain.LayerL1, domain.LayerL2}
	default:
		return []domain.RegimeLayer{domain.LayerL2}
	}
}

// LayerTimeframe maps each classifier layer to the timeframe whose EMA and
// bar series feed it.
func LayerTimeframe(layer domain.RegimeLayer) string {
	switch layer {
	case domain.LayerL0:
		return "1M_CAL"
	case domain.LayerL1:
		return "1W_CAL"
	default:
		return "1D"
	}
}

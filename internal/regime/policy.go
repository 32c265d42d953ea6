package regime

import (
	"errors"
	"fmt"
	"strings"

	"regimelab/internal/domain"
)

// ErrPolicyUndefined is returned when a composite label combination has no
// policy table entry. This must never occur in production: the table is
// built total over every reachable combination, so a miss is a fatal
// configuration error, not a condition to default away.
var ErrPolicyUndefined = errors.New("regime policy undefined for label combination")

// FallbackPolicy is the documented fallback assigned during table
// construction to combinations the rule set does not otherwise cover.
var FallbackPolicy = domain.RegimePolicy{
	SizeMult: 1.0,
	StopMult: 1.0,
	Orders:   domain.OrdersMixed,
	GrossCap: 1.0,
	Pyramids: false,
}

// RegimeKey derives the composite key from the enabled, non-null layer
// labels only. Disabled layers never contribute, so the same labels under
// the same tier always produce the same key.
func RegimeKey(labels map[domain.RegimeLayer]string, enabled []domain.RegimeLayer) string {
	parts := make([]string, 0, len(enabled))
	for _, layer := range enabled {
		if lbl, ok := labels[layer]; ok {
			parts = append(parts, fmt.Sprintf("L%d=%s", layer, lbl))
		}
	}
	return strings.Join(parts, "|")
}

// PolicyTable maps every reachable composite regime key to its policy
// tuple. Built once at process start and passed by reference to workers.
type PolicyTable struct {
	policies map[string]domain.RegimePolicy
}

// NewPolicyTable builds the table total over all reachable label
// combinations for every feature tier.
func NewPolicyTable() *PolicyTable {
	t := &PolicyTable{policies: make(map[string]domain.RegimePolicy)}
	labels := AllLabels()

	for _, tier := range []domain.FeatureTier{domain.TierLite, domain.TierStandard, domain.TierFull} {
		enabled := EnabledLayers(tier)
		combos := enumerate(labels, len(enabled))
		for _, combo := range combos {
			m := make(map[domain.RegimeLayer]string, len(enabled))
			for i, layer := range enabled {
				m[layer] = combo[i]
			}
			key := RegimeKey(m, enabled)
			t.policies[key] = derivePolicy(m, enabled)
		}
	}
	return t
}

// Resolve returns the policy for a composite key or ErrPolicyUndefined.
func (t *PolicyTable) Resolve(key string) (domain.RegimePolicy, error) {
	p, ok := t.policies[key]
	if !ok {
		return domain.RegimePolicy{}, fmt.Errorf("%w: %q", ErrPolicyUndefined, key)
	}
	return p, nil
}

// Size returns the number of table entries; used by startup validation.
func (t *PolicyTable) Size() int {
	return len(t.policies)
}

// derivePolicy maps one label combination to its policy tuple. The
// execution layer (L2) sets direction and baseline risk; higher layers
// scale exposure by agreement or conflict.
func derivePolicy(labels map[domain.RegimeLayer]string, enabled []domain.RegimeLayer) domain.RegimePolicy {
	exec, ok := labels[domain.LayerL2]
	if !ok {
		return FallbackPolicy
	}
	trend, vol, rng := splitLabel(exec)

	p := domain.RegimePolicy{SizeMult: 1.0, StopMult: 1.0, GrossCap: 1.0}

	switch trend {
	case TrendUp:
		p.Orders = domain.OrdersLong
	case TrendDown:
		p.Orders = domain.OrdersShort
	default:
		p.Orders = domain.OrdersMixed
		p.SizeMult = 0.5
	}

	switch vol {
	case VolHigh:
		p.SizeMult *= 0.5
		p.StopMult = 2.0
	case VolLow:
		p.SizeMult *= 1.25
	}

	if rng == RangeWide {
		p.StopMult *= 1.5
		p.GrossCap = 0.75
	}

	// Higher layers: full agreement on a directional trend earns pyramiding
	// and a wider gross cap; an opposing higher-layer trend cuts size and
	// forbids new orders.
	agree, conflict := higherLayerAlignment(labels, enabled, trend)
	if agree && (trend == TrendUp || trend == TrendDown) {
		p.Pyramids = true
		p.GrossCap *= 1.5
		p.SizeMult *= 1.5
	}
	if conflict {
		p.SizeMult *= 0.25
		p.Orders = domain.OrdersNone
		p.Pyramids = false
	}

	if vol == VolHigh && rng == RangeWide {
		// Stressed regime: flat book only.
		p.Orders = domain.OrdersNone
		p.SizeMult = 0
		p.Pyramids = false
	}

	return p
}

// higherLayerAlignment reports whether all enabled layers above L2 share the
// execution trend (agree) or whether any holds the opposite trend (conflict).
func higherLayerAlignment(labels map[domain.RegimeLayer]string, enabled []domain.RegimeLayer, execTrend string) (agree, conflict bool) {
	agree = true
	sawHigher := false
	for _, layer := range enabled {
		if layer == domain.LayerL2 {
			continue
		}
		sawHigher = true
		t, _, _ := splitLabel(labels[layer])
		if t != execTrend {
			agree = false
		}
		if (execTrend == TrendUp && t == TrendDown) || (execTrend == TrendDown && t == TrendUp) {
			conflict = true
		}
	}
	if !sawHigher {
		agree = false
	}
	return agree, conflict
}

// splitLabel decomposes "{trend}-{vol}-{range}".
func splitLabel(label string) (trend, vol, rng string) {
	parts := strings.SplitN(label, "-", 3)
	if len(parts) != 3 {
		return TrendSideways, VolNormal, RangeNormal
	}
	return parts[0], parts[1], parts[2]
}

// enumerate returns every combination of n labels (cartesian power).
func enumerate(labels []string, n int) [][]string {
	if n == 0 {
		return [][]string{{}}
	}
	rest := enumerate(labels, n-1)
	out := make([][]string, 0, len(labels)*len(rest))
	for _, l := range labels {
		for _, r := range rest {
			combo := append([]string{l}, r...)
			out = append(out, combo)
		}
	}
	return out
}

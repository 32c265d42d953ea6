// Package refresh orchestrates the per-asset feature pipeline:
// bar aggregation -> EMA computation -> regime classification -> flips,
// comovement and signal replay. Assets are independent partitions and run
// concurrently; within a partition every series is processed sequentially
// in timestamp order.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"regimelab/internal/backtest"
	"regimelab/internal/bars"
	"regimelab/internal/comovement"
	"regimelab/internal/domain"
	"regimelab/internal/ema"
	"regimelab/internal/observability"
	"regimelab/internal/regime"
	"regimelab/internal/signals"
	"regimelab/internal/storage"
	"regimelab/internal/timeframe"
)

const msPerDay = int64(24 * 60 * 60 * 1000)

// Options for creating an Orchestrator.
type Options struct {
	// Required stores
	BarStore        storage.BarStore
	EmaStore        storage.EmaStore
	RegimeStore     storage.RegimeStore
	FlipStore       storage.FlipStore
	ComovementStore storage.ComovementStore
	PositionStore   storage.PositionStore
	RunStore        storage.RunStore
	SessionStore    storage.SessionStore

	// Registry defaults to the builtin set when nil.
	Registry *timeframe.Registry

	// Pipeline settings
	FeatureTier domain.FeatureTier
	EmaPeriods  []int
	Timeframes  []string
	Workers     int
	MaxGapDays  int

	// Signal rule settings
	FastPeriod int
	SlowPeriod int
	LongOnly   bool

	// Comovement settings
	ComovementWindow int
	ComovementMaxLag int

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Orchestrator coordinates refresh runs across asset partitions.
type Orchestrator struct {
	opts     Options
	registry *timeframe.Registry
	resolver *regime.Resolver
	analyzer *comovement.Analyzer
	log      zerolog.Logger
}

// New creates a new Orchestrator. The policy table is built once here and
// shared read-only by all partitions.
func New(opts Options) (*Orchestrator, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	registry := opts.Registry
	if registry == nil {
		registry = timeframe.NewDefaultRegistry()
	}
	if len(opts.EmaPeriods) == 0 {
		return nil, fmt.Errorf("no ema periods configured")
	}
	if opts.FastPeriod <= 0 || opts.SlowPeriod <= opts.FastPeriod {
		return nil, fmt.Errorf("invalid crossover periods: fast=%d slow=%d", opts.FastPeriod, opts.SlowPeriod)
	}
	for _, p := range []int{opts.FastPeriod, opts.SlowPeriod} {
		found := false
		for _, q := range opts.EmaPeriods {
			if p == q {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("crossover period %d not in configured ema periods %v", p, opts.EmaPeriods)
		}
	}

	return &Orchestrator{
		opts:     opts,
		registry: registry,
		resolver: regime.NewResolver(regime.NewPolicyTable(), opts.FeatureTier),
		analyzer: comovement.NewAnalyzer(comovement.Config{
			WindowBars: opts.ComovementWindow,
			MaxLag:     opts.ComovementMaxLag,
		}),
		log: opts.Logger,
	}, nil
}

// Result summarizes one refresh run.
type Result struct {
	Succeeded int
	Failed    int
	Errors    map[string]error // per failed asset
	Runs      []*domain.BacktestRun
}

// Run processes every asset as its own partition. Partition failures are
// isolated: one asset's error never stops the others. A policy table miss
// is the exception; it means the table is broken and the whole run fails.
func (o *Orchestrator) Run(ctx context.Context, assets []string) (*Result, error) {
	started := time.Now()
	result := &Result{Errors: make(map[string]error)}

	type outcome struct {
		asset string
		run   *domain.BacktestRun
		err   error
	}

	jobs := make(chan string)
	outcomes := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for asset := range jobs {
				run, err := o.processPartition(ctx, asset)
				outcomes <- outcome{asset: asset, run: run, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, asset := range assets {
			select {
			case jobs <- asset:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var policyErr error
	for out := range outcomes {
		if out.err != nil {
			result.Failed++
			result.Errors[out.asset] = out.err
			if errors.Is(out.err, regime.ErrPolicyUndefined) {
				policyErr = out.err
			}
			o.log.Error().Err(out.err).Str("asset", out.asset).Msg("partition failed")
			if o.opts.Metrics != nil {
				o.opts.Metrics.PartitionsProcessed.WithLabelValues("failed").Inc()
			}
			continue
		}
		result.Succeeded++
		if out.run != nil {
			result.Runs = append(result.Runs, out.run)
		}
		if o.opts.Metrics != nil {
			o.opts.Metrics.PartitionsProcessed.WithLabelValues("succeeded").Inc()
		}
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.RefreshDuration.Observe(time.Since(started).Seconds())
		if policyErr == nil && result.Failed == 0 {
			o.opts.Metrics.LastSuccessfulRefresh.SetToCurrentTime()
		}
	}

	o.log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("refresh run finished")

	if policyErr != nil {
		return result, fmt.Errorf("policy table incomplete, aborting run: %w", policyErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// series is one timeframe's fully built bar sequence, the alignment source
// its primary EMA series was computed under, the EMA series per period, and
// the length of the stable prefix that is safe to persist and classify.
//
// Calendar frames leave their last bar provisional while the period is
// open: the aggregated bar's timestamp and values move with every new
// trading day. Provisional rows must never reach the canonical stores;
// insert-if-absent would keep the stale row forever once the bar moves.
type series struct {
	bars   []domain.Bar
	source domain.AlignmentSource
	emas   map[int][]*domain.EmaObservation
	stable int
}

// stableLen returns the prefix length of a bar series that is final.
func stableLen(def domain.TimeframeDef, bars []domain.Bar) int {
	n := len(bars)
	if def.AlignmentType == domain.AlignmentCalendar && n > 0 && !bars[n-1].Roll {
		return n - 1
	}
	return n
}

// processPartition runs the whole pipeline for one asset. Series building
// runs first for every timeframe; classification then walks the enabled
// layers slowest-first so higher-layer flips exist when the execution
// layer resolves its records against them.
func (o *Orchestrator) processPartition(ctx context.Context, assetID string) (*domain.BacktestRun, error) {
	partStart := time.Now()
	log := o.log.With().Str("asset", assetID).Logger()

	daily, err := o.opts.BarStore.GetByAsset(ctx, assetID, "1D")
	if err != nil {
		return nil, o.storeErr("bars", fmt.Errorf("load daily bars: %w", err))
	}
	if len(daily) == 0 {
		log.Warn().Msg("no daily bars, skipping partition")
		return nil, nil
	}
	dailyBars := deref(daily)

	session, err := o.loadSession(ctx, assetID)
	if err != nil {
		return nil, err
	}

	built := make(map[string]series, len(o.opts.Timeframes))
	for _, tfKey := range o.opts.Timeframes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := o.buildSeries(ctx, assetID, tfKey, dailyBars, session)
		if err != nil {
			return nil, fmt.Errorf("timeframe %s: %w", tfKey, err)
		}
		built[tfKey] = s
	}

	for _, layer := range o.resolver.Enabled() {
		tf := regime.LayerTimeframe(layer)
		s, ok := built[tf]
		if !ok {
			continue
		}
		if err := o.classifyLayer(ctx, assetID, layer, tf, s, log); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", layer, tf, err)
		}
	}

	var run *domain.BacktestRun
	if s, ok := built["1D"]; ok {
		run, err = o.runSignals(ctx, assetID, s, log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn().Msg("daily timeframe not configured, skipping signal replay")
	}

	if o.opts.Metrics != nil {
		o.opts.Metrics.PartitionDuration.WithLabelValues("1D").Observe(time.Since(partStart).Seconds())
	}
	log.Debug().Dur("elapsed", time.Since(partStart)).Msg("partition done")
	return run, nil
}

// buildSeries aggregates one timeframe's bars, persists the completed
// portion, and computes the EMA series for every alignment source the
// frame carries. Derived bars are appended incrementally past the last
// persisted timestamp; EMA observations converge via insert-if-absent.
func (o *Orchestrator) buildSeries(ctx context.Context, assetID, tfKey string, daily []domain.Bar, session *domain.TradingSession) (series, error) {
	def, err := o.registry.Resolve(tfKey)
	if err != nil {
		return series{}, err
	}

	agg, err := bars.NewAggregator(def, session)
	if err != nil {
		return series{}, err
	}

	derived, err := agg.Rebuild(daily)
	if err != nil {
		return series{}, err
	}

	if tfKey != "1D" {
		if err := o.persistDerivedBars(ctx, assetID, def, agg, daily); err != nil {
			return series{}, err
		}
	}

	source := domain.SourceTfDay
	if def.AlignmentType == domain.AlignmentCalendar {
		source = domain.SourceCalendar
	}
	emas, err := o.computeEmas(ctx, def, derived, source)
	if err != nil {
		return series{}, err
	}

	// Calendar timeframes additionally carry a daily pass-through series
	// with the roll flagged on each completed period's last trading day.
	if def.AlignmentType == domain.AlignmentCalendar {
		anchored, err := agg.AnchorFlagged(daily)
		if err != nil {
			return series{}, err
		}
		if _, err := o.computeEmas(ctx, def, anchored, domain.SourceCalendarAnchor); err != nil {
			return series{}, err
		}
	}

	return series{
		bars:   derived,
		source: source,
		emas:   emas,
		stable: stableLen(def, derived),
	}, nil
}

// persistDerivedBars stores only the derived bars past the last persisted
// timestamp, and only for completed periods. The open calendar period's
// partial bar stays in memory; its timestamp moves with each new trading
// day and would otherwise leave a stale row behind on the next refresh.
func (o *Orchestrator) persistDerivedBars(ctx context.Context, assetID string, def domain.TimeframeDef, agg *bars.Aggregator, daily []domain.Bar) error {
	last, err := o.opts.BarStore.LastTimestamp(ctx, assetID, def.Tf)
	if errors.Is(err, storage.ErrNotFound) {
		last, err = 0, nil
	}
	if err != nil {
		return o.storeErr("bars", fmt.Errorf("last derived bar: %w", err))
	}

	fresh, err := agg.Append(daily, last)
	if err != nil {
		return err
	}
	fresh = fresh[:stableLen(def, fresh)]
	if len(fresh) == 0 {
		return nil
	}

	stored := make([]*domain.Bar, len(fresh))
	for i := range fresh {
		b := fresh[i]
		stored[i] = &b
	}
	n, err := o.opts.BarStore.InsertBulk(ctx, stored)
	if err != nil {
		return o.storeErr("bars", fmt.Errorf("store derived bars: %w", err))
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.BarsAggregated.Add(float64(n))
	}
	return nil
}

// computeEmas runs the recursion for every configured period over one bar
// series, persists the stable prefix of each observation series, and
// returns the full in-memory series per period. Insert-if-absent makes
// re-runs and multi-source refreshes converge to the union of all series.
func (o *Orchestrator) computeEmas(ctx context.Context, def domain.TimeframeDef, bars []domain.Bar, source domain.AlignmentSource) (map[int][]*domain.EmaObservation, error) {
	// The gap check only applies to evenly spaced daily sequences;
	// aggregated calendar bars are irregular by construction.
	var maxGapMs int64
	if source != domain.SourceCalendar {
		maxGapMs = int64(o.opts.MaxGapDays) * msPerDay
	}
	engine := ema.NewEngine(maxGapMs)
	stable := stableLen(def, bars)

	out := make(map[int][]*domain.EmaObservation, len(o.opts.EmaPeriods))
	for _, period := range o.opts.EmaPeriods {
		alpha, err := o.registry.Alpha(def.Tf, period)
		if err != nil {
			return nil, err
		}
		obs, err := engine.ComputeSeries(bars, alpha, period, source)
		if err != nil {
			return nil, fmt.Errorf("ema period %d source %s: %w", period, source, err)
		}
		n, err := o.opts.EmaStore.InsertBulk(ctx, obs[:stable])
		if err != nil {
			return nil, o.storeErr("emas", fmt.Errorf("store ema period %d: %w", period, err))
		}
		if o.opts.Metrics != nil {
			o.opts.Metrics.EmaPointsComputed.WithLabelValues(string(source)).Add(float64(n))
		}
		out[period] = obs
	}
	return out, nil
}

// classifyLayer labels one layer's bar series, records its flips, and on
// the execution layer resolves full regime records through the policy
// table using the higher layers' flip history. Only the stable prefix is
// classified; the open calendar period's label is provisional and would
// leave stale record and flip rows behind once its bar moves. Comovement
// stats for the timeframe's EMA pair ride along on the same prefix.
func (o *Orchestrator) classifyLayer(ctx context.Context, assetID string, layer domain.RegimeLayer, tf string, s series, log zerolog.Logger) error {
	barSeq := s.bars[:s.stable]
	fast := s.emas[o.opts.FastPeriod][:s.stable]
	slow := s.emas[o.opts.SlowPeriod][:s.stable]

	classifier := regime.NewClassifier(regime.DefaultClassifierConfig())
	labels, err := classifier.LabelSeries(barSeq, fast)
	if err != nil {
		return err
	}

	tracker := regime.NewTracker()
	var records []*domain.RegimeRecord
	var flips []*domain.RegimeFlip

	for i, bar := range barSeq {
		if layer != domain.LayerL2 {
			// Higher layers track flips on their own cadence; full records
			// with policies are only resolved on the execution layer.
			lbl := labels[i]
			rec := &domain.RegimeRecord{AssetID: assetID, TimestampMs: bar.TimestampMs, Tf: bar.Tf}
			switch layer {
			case domain.LayerL0:
				rec.L0 = &lbl
			case domain.LayerL1:
				rec.L1 = &lbl
			}
			flips = append(flips, tracker.Observe(rec)...)
			continue
		}

		layerLabels := map[domain.RegimeLayer]string{layer: labels[i]}
		for _, other := range o.resolver.Enabled() {
			if other == domain.LayerL2 {
				continue
			}
			lbl, err := o.layerLabelAt(ctx, assetID, other, bar.TimestampMs)
			if err != nil {
				return err
			}
			layerLabels[other] = lbl
		}
		rec, err := o.resolver.Record(assetID, bar.TimestampMs, bar.Tf, layerLabels)
		if err != nil {
			return err
		}
		records = append(records, rec)
		flips = append(flips, tracker.Observe(rec)...)
	}

	if len(records) > 0 {
		n, err := o.opts.RegimeStore.InsertBulk(ctx, records)
		if err != nil {
			return o.storeErr("regimes", fmt.Errorf("store regime records: %w", err))
		}
		if o.opts.Metrics != nil {
			o.opts.Metrics.RegimeRecordsStored.Add(float64(n))
		}
	}
	if len(flips) > 0 {
		n, err := o.opts.FlipStore.InsertBulk(ctx, flips)
		if err != nil {
			return o.storeErr("flips", fmt.Errorf("store regime flips: %w", err))
		}
		if o.opts.Metrics != nil {
			o.opts.Metrics.RegimeFlipsDetected.Add(float64(n))
		}
		log.Debug().Str("tf", tf).Int("flips", len(flips)).Msg("regime flips recorded")
	}

	return o.recordComovement(ctx, assetID, tf, barSeq, fast, slow)
}

// recordComovement compares the fast and slow EMA series of one timeframe
// at the stable prefix's latest timestamp.
func (o *Orchestrator) recordComovement(ctx context.Context, assetID, tf string, bars []domain.Bar, fast, slow []*domain.EmaObservation) error {
	if len(bars) < 3 {
		return nil
	}

	a := make([]float64, len(fast))
	b := make([]float64, len(slow))
	for i := range fast {
		a[i] = fast[i].Ema
		b[i] = slow[i].Ema
	}

	nameA := fmt.Sprintf("ema_%d", o.opts.FastPeriod)
	nameB := fmt.Sprintf("ema_%d", o.opts.SlowPeriod)
	stat, err := o.analyzer.Compare(assetID, tf, bars[len(bars)-1].TimestampMs, nameA, a, nameB, b)
	if err != nil {
		return fmt.Errorf("comovement: %w", err)
	}

	n, err := o.opts.ComovementStore.InsertBulk(ctx, []*domain.ComovementStat{stat})
	if err != nil {
		return o.storeErr("comovement", fmt.Errorf("store comovement: %w", err))
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.ComovementStats.Add(float64(n))
	}
	return nil
}

// runSignals replays the crossover rule over the daily series, persists
// the produced positions and summarizes them into a backtest run.
func (o *Orchestrator) runSignals(ctx context.Context, assetID string, s series, log zerolog.Logger) (*domain.BacktestRun, error) {
	started := time.Now().UnixMilli()

	fast := s.emas[o.opts.FastPeriod]
	slow := s.emas[o.opts.SlowPeriod]

	rule := &signals.CrossoverRule{
		FastPeriod: o.opts.FastPeriod,
		SlowPeriod: o.opts.SlowPeriod,
		LongOnly:   o.opts.LongOnly,
	}
	book := signals.NewBook()

	// Only a missing regime row maps to a nil key; a failing store must
	// fail the partition, not silently degrade every entry.
	var lookupErr error
	lookup := func(asset string, tsMs int64) *string {
		rec, err := o.opts.RegimeStore.GetAt(ctx, asset, "1D", o.opts.FeatureTier, tsMs)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			if lookupErr == nil {
				lookupErr = err
			}
			return nil
		}
		return &rec.RegimeKey
	}

	if _, err := rule.Run(book, assetID, s.bars, fast, slow, lookup); err != nil {
		return nil, fmt.Errorf("signal replay: %w", err)
	}
	if lookupErr != nil {
		return nil, o.storeErr("regimes", fmt.Errorf("regime lookup: %w", lookupErr))
	}

	all := append([]*domain.SignalPosition{}, book.Closed()...)
	if open := book.OpenPosition(assetID); open != nil {
		all = append(all, open)
	}

	var opened, closed int
	for _, p := range all {
		ins, cls, err := o.persistPosition(ctx, p)
		if err != nil {
			return nil, err
		}
		if ins {
			opened++
		}
		if cls {
			closed++
		}
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.PositionsOpened.Add(float64(opened))
		o.opts.Metrics.PositionsClosed.Add(float64(closed))
	}

	run := backtest.Summarize(assetID, "1D", o.opts.FeatureTier, started, all)
	if err := o.opts.RunStore.Insert(ctx, run); err != nil {
		return nil, o.storeErr("runs", fmt.Errorf("store backtest run: %w", err))
	}

	log.Info().
		Int("positions", run.TotalPositions).
		Float64("win_rate", run.WinRate).
		Float64("sharpe", run.Sharpe).
		Msg("signal replay summarized")
	return run, nil
}

// persistPosition writes one position, tolerating rows from earlier runs.
// It reports whether a row was newly inserted and whether a close was
// newly recorded, so reruns do not recount already-persisted positions.
func (o *Orchestrator) persistPosition(ctx context.Context, p *domain.SignalPosition) (opened, closed bool, err error) {
	err = o.opts.PositionStore.Insert(ctx, p)
	if err == nil {
		return true, p.State == domain.PositionClosed, nil
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		if p.State != domain.PositionClosed || p.ExitTsMs == nil {
			return false, false, nil
		}
		// The stored row may still be open from an earlier run; close it.
		err = o.opts.PositionStore.Close(ctx, p.AssetID, p.EntryTsMs, p.SignalID, *p.ExitTsMs, *p.ExitPrice, *p.PnlPct)
		if err == nil {
			return false, true, nil
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			return false, false, nil
		}
	}
	return false, false, o.storeErr("positions", fmt.Errorf("persist position %s: %w", p.SignalID, err))
}

// loadSession fetches the asset's trading session; WEEK_END anchors need
// it, plain timeframes run without one.
func (o *Orchestrator) loadSession(ctx context.Context, assetID string) (*domain.TradingSession, error) {
	session, err := o.opts.SessionStore.GetByAsset(ctx, assetID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, o.storeErr("sessions", fmt.Errorf("load trading session: %w", err))
	}
	return session, nil
}

// layerLabelAt reads a higher layer's label in force at a timestamp from
// its own flip history. Before the layer's first flip the label defaults
// to the neutral Sideways-Normal-Normal.
func (o *Orchestrator) layerLabelAt(ctx context.Context, assetID string, layer domain.RegimeLayer, tsMs int64) (string, error) {
	tf := regime.LayerTimeframe(layer)
	flips, err := o.opts.FlipStore.GetByLayer(ctx, assetID, tf, layer)
	if err != nil {
		return "", o.storeErr("flips", fmt.Errorf("load layer %d flips: %w", layer, err))
	}

	label := regime.TrendSideways + "-" + regime.VolNormal + "-" + regime.RangeNormal
	for _, f := range flips {
		if f.TimestampMs > tsMs {
			break
		}
		label = f.NewRegime
	}
	return label, nil
}

// storeErr counts a database error against its store before returning it.
func (o *Orchestrator) storeErr(store string, err error) error {
	if err != nil && o.opts.Metrics != nil {
		o.opts.Metrics.DBQueryErrors.WithLabelValues(store).Inc()
	}
	return err
}

// deref flattens the store's pointer slice into the value slice the
// engines consume.
func deref(in []*domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(in))
	for i, b := range in {
		out[i] = *b
	}
	return out
}

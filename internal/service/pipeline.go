package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"profit_go/internal/domain"
	"profit_go/internal/engine"
	"profit_go/internal/infra"
	"profit_go/internal/infra/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunParams are the run-wide cost baselines and tuning knobs. They come
// from config and are identical for every machine in one run.
type RunParams struct {
	ElectricityUSDPerKWh float64
	PoolFeePct           float64
	HostingUSDPerDay     float64
	MaxConcurrentFetches int
	CandidateCoinCap     int
	BatchSize            int
}

// RunOptions narrow one run. Zero value means "everything, now".
type RunOptions struct {
	// MachineIDs restricts the run to a subset of the catalog. Empty
	// means all machines.
	MachineIDs []uint
	// ComputedAt overrides the snapshot bucket timestamp, mainly for
	// backfills. It is truncated to the hour like everything else.
	ComputedAt *time.Time
}

// ProgressEvent is a coarse-grained progress notification emitted while a
// run is executing. Consumers must not block.
type ProgressEvent struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"` // "prefetch", "machine", "flush", "done"
	MachineID uint   `json:"machine_id,omitempty"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// RunSummary is the durable record of what one run did.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	ComputedAt time.Time     `json:"computed_at"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`

	MachinesConsidered int `json:"machines_considered"`
	SnapshotsWritten   int `json:"snapshots_written"`
	MachinesSkipped    int `json:"machines_skipped"`
	CoinsPrefetched    int `json:"coins_prefetched"`

	ReferencePriceUSD    decimal.Decimal `json:"reference_price_usd"`
	ReferencePriceSource string          `json:"reference_price_source"`

	ElectricityUSDPerKWh float64 `json:"electricity_usd_per_kwh"`
	PoolFeePct           float64 `json:"pool_fee_pct"`
	HostingUSDPerDay     float64 `json:"hosting_usd_per_day"`

	// FatalPhase names the phase that aborted the run, empty on success.
	FatalPhase string `json:"fatal_phase,omitempty"`
}

// Pipeline computes one profitability snapshot per machine per run and
// persists them as an idempotent hourly batch.
type Pipeline struct {
	store      *storage.Storage
	oracle     domain.PriceSource
	estimator  domain.CoinEstimator
	aggregator domain.PayoutSource
	params     RunParams
	logger     *slog.Logger

	mu          sync.Mutex
	running     bool
	lastSummary *RunSummary
	onProgress  func(ProgressEvent)

	now func() time.Time
}

// NewPipeline wires a Pipeline from its collaborators. logger may be nil.
func NewPipeline(store *storage.Storage, oracle domain.PriceSource, estimator domain.CoinEstimator, aggregator domain.PayoutSource, params RunParams, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		oracle:     oracle,
		estimator:  estimator,
		aggregator: aggregator,
		params:     params,
		logger:     logger,
		now:        time.Now,
	}
}

// SetProgressFunc registers a progress callback. Must be called before Run.
func (p *Pipeline) SetProgressFunc(fn func(ProgressEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProgress = fn
}

// LastSummary returns the most recent run's summary, nil before any run.
func (p *Pipeline) LastSummary() *RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSummary
}

// Running reports whether a run is currently in flight.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run executes one full snapshot run. Only one run may be in flight at a
// time; a concurrent call returns ErrRunInProgress immediately.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	p.running = true
	progress := p.onProgress
	p.mu.Unlock()

	summary, err := p.run(ctx, opts, progress)

	p.mu.Lock()
	p.running = false
	p.lastSummary = summary
	p.mu.Unlock()

	return summary, err
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, progress func(ProgressEvent)) (*RunSummary, error) {
	started := p.now()
	bucket := started
	if opts.ComputedAt != nil {
		bucket = *opts.ComputedAt
	}
	bucket = bucket.UTC().Truncate(time.Hour)

	summary := &RunSummary{
		RunID:                uuid.New().String(),
		ComputedAt:           bucket,
		StartedAt:            started,
		ElectricityUSDPerKWh: p.params.ElectricityUSDPerKWh,
		PoolFeePct:           p.params.PoolFeePct,
		HostingUSDPerDay:     p.params.HostingUSDPerDay,
	}
	emit := func(ev ProgressEvent) {
		if progress != nil {
			ev.RunID = summary.RunID
			progress(ev)
		}
	}
	fatal := func(phase string, err error) (*RunSummary, error) {
		summary.FatalPhase = phase
		summary.Duration = p.now().Sub(started)
		p.logger.Error("run aborted", "run_id", summary.RunID, "phase", phase, "error", err)
		return summary, fmt.Errorf("%s: %w", phase, err)
	}

	p.logger.Info("run started", "run_id", summary.RunID, "bucket", bucket.Format(time.RFC3339))

	machines, err := p.store.Machines(opts.MachineIDs)
	if err != nil {
		return fatal("catalog", err)
	}
	algorithms, err := p.store.Algorithms()
	if err != nil {
		return fatal("catalog", err)
	}
	coinsByAlgo, err := p.store.CoinsByAlgorithm()
	if err != nil {
		return fatal("catalog", err)
	}
	fxRates, err := p.store.FxRates()
	if err != nil {
		return fatal("catalog", err)
	}

	refPrice, err := p.oracle.ReferencePriceUSD(ctx, "BTC")
	if err != nil {
		return fatal("reference-price", err)
	}
	summary.ReferencePriceUSD = refPrice.Value
	summary.ReferencePriceSource = refPrice.Source

	resolver := &engine.Resolver{
		Payout:       memoizePayout(p.aggregator.AlgorithmPayout),
		BTCPriceUSD:  refPrice.Value,
		CandidateCap: p.params.CandidateCoinCap,
	}

	estimates, prefetched, err := p.prefetch(ctx, machines, coinsByAlgo, resolver, emit)
	if err != nil {
		return fatal("prefetch", err)
	}
	summary.CoinsPrefetched = prefetched
	resolver.Estimates = func(coinKey string) (float64, bool) {
		v, ok := estimates[coinKey]
		return v, ok
	}

	snapshots := make([]domain.ProfitabilitySnapshot, 0, len(machines))
	for i := range machines {
		if err := ctx.Err(); err != nil {
			return fatal("machines", err)
		}
		machine := &machines[i]
		summary.MachinesConsidered++
		infra.GlobalMetrics.RecordMachine()

		snap, err := p.computeSnapshot(ctx, machine, algorithms, coinsByAlgo, fxRates, resolver, bucket)
		if err != nil {
			summary.MachinesSkipped++
			infra.GlobalMetrics.RecordSkip()
			p.logger.Warn("machine skipped", "run_id", summary.RunID, "machine_id", machine.ID, "error", err)
			continue
		}
		snapshots = append(snapshots, *snap)
		emit(ProgressEvent{Stage: "machine", MachineID: machine.ID, Processed: i + 1, Total: len(machines)})
	}

	emit(ProgressEvent{Stage: "flush", Processed: len(machines), Total: len(machines)})
	written, err := p.store.InsertSnapshots(snapshots, p.params.BatchSize)
	if err != nil {
		return fatal("persist", err)
	}
	summary.SnapshotsWritten = int(written)
	for i := int64(0); i < written; i++ {
		infra.GlobalMetrics.RecordSnapshot()
	}

	summary.Duration = p.now().Sub(started)
	p.logger.Info("run finished",
		"run_id", summary.RunID,
		"duration", summary.Duration.String(),
		"considered", summary.MachinesConsidered,
		"written", summary.SnapshotsWritten,
		"skipped", summary.MachinesSkipped,
		"coins_prefetched", summary.CoinsPrefetched,
		"reference_price", refPrice.Value.String(),
		"reference_source", refPrice.Source)
	emit(ProgressEvent{Stage: "done", Processed: len(machines), Total: len(machines)})

	return summary, nil
}

type payoutResult struct {
	value float64
	err   error
}

// memoizePayout wraps an aggregator lookup so each algorithm is queried at
// most once per run, success or failure. Machines sharing an algorithm
// share the result; the per-machine loop is sequential so no lock is
// needed.
func memoizePayout(lookup engine.PayoutLookup) engine.PayoutLookup {
	memo := make(map[string]payoutResult)
	return func(ctx context.Context, algoKey string) (float64, error) {
		if res, ok := memo[algoKey]; ok {
			return res.value, res.err
		}
		value, err := lookup(ctx, algoKey)
		memo[algoKey] = payoutResult{value: value, err: err}
		return value, err
	}
}

// prefetch resolves the union of every machine's candidate coin keys and
// fetches their per-coin estimates concurrently under the fetch gate. A
// coin that fails to fetch is simply absent from the returned map; the
// fallback chain handles the rest per machine.
func (p *Pipeline) prefetch(ctx context.Context, machines []domain.Machine, coinsByAlgo map[uint][]domain.Coin, resolver *engine.Resolver, emit func(ProgressEvent)) (map[string]float64, int, error) {
	keys := make(map[string]struct{})
	for i := range machines {
		for _, coin := range resolver.Candidates(&machines[i], coinsByAlgo[machines[i].AlgorithmID]) {
			keys[strings.ToLower(coin.Key)] = struct{}{}
		}
	}
	emit(ProgressEvent{Stage: "prefetch", Total: len(keys)})

	gate := infra.NewGate(p.params.MaxConcurrentFetches)
	estimates := make(map[string]float64, len(keys))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for key := range keys {
		if err := gate.Acquire(ctx); err != nil {
			wg.Wait()
			return nil, 0, err
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer gate.Release()

			est, err := p.estimator.RevenuePerBaseUnitPerDay(ctx, key)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					p.logger.Debug("coin estimate unavailable", "coin", key, "error", err)
				}
				return
			}
			if est == nil || est.PerBaseUnitPerDay <= 0 {
				return
			}
			mu.Lock()
			estimates[key] = est.PerBaseUnitPerDay
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return estimates, len(keys), nil
}

func (p *Pipeline) computeSnapshot(ctx context.Context, machine *domain.Machine, algorithms map[uint]domain.Algorithm, coinsByAlgo map[uint][]domain.Coin, fxRates map[string]domain.FxRate, resolver *engine.Resolver, bucket time.Time) (*domain.ProfitabilitySnapshot, error) {
	algo, ok := algorithms[machine.AlgorithmID]
	if !ok {
		return nil, fmt.Errorf("machine %d references unknown algorithm %d", machine.ID, machine.AlgorithmID)
	}

	base, err := domain.ParseSpeedToBase(machine.Hashrate, machine.HashrateUnit)
	if err != nil {
		return nil, fmt.Errorf("machine %d hashrate: %w", machine.ID, err)
	}

	res, err := resolver.Resolve(ctx, machine, &algo, coinsByAlgo[machine.AlgorithmID], base)
	if err != nil {
		return nil, err
	}

	price, shipping := lowestOfferUSD(machine.Offers, fxRates)

	breakdown := engine.ComputeCostBreakdown(engine.CostInputs{
		PowerWatts:           machine.PowerWatts,
		ElectricityUSDPerKWh: p.params.ElectricityUSDPerKWh,
		RevenueUSDPerDay:     res.RevenueUSDPerDay,
		PoolFeePct:           p.params.PoolFeePct,
		HostingUSDPerDay:     decimal.NewFromFloat(p.params.HostingUSDPerDay),
		Capex: domain.CapexInputs{
			HardwareUSD: price,
			ShippingUSD: shipping,
		},
		ComputedAt: bucket,
	})

	snap := &domain.ProfitabilitySnapshot{
		MachineID:            machine.ID,
		ComputedAt:           bucket,
		RevenueUSDPerDay:     res.RevenueUSDPerDay,
		ElectricityUSDPerDay: breakdown.DailyElectricityUSD,
		NetProfitUSDPerDay:   breakdown.NetProfitUSDPerDay,
		LowestPriceUSD:       price,
		ROIDays:              breakdown.ROIDays,
	}
	var bestCoinKey string
	if res.BestCoin != nil {
		id := res.BestCoin.ID
		snap.BestCoinID = &id
		bestCoinKey = res.BestCoin.Key
	}

	rec := domain.NewBreakdownRecord(res.RevenueUSDPerDay, breakdown, res.Source, res.Confidence, res.Reason, bestCoinKey)
	if err := snap.EncodeBreakdown(rec); err != nil {
		return nil, fmt.Errorf("machine %d breakdown: %w", machine.ID, err)
	}
	return snap, nil
}

// lowestOfferUSD finds the cheapest in-stock vendor offer converted to
// USD, with the shipping price from that same offer. Offers in currencies
// without an FX rate are ignored. Both results are nil when no in-stock
// offer can be priced.
func lowestOfferUSD(offers []domain.VendorOffer, fxRates map[string]domain.FxRate) (price, shipping *decimal.Decimal) {
	for i := range offers {
		offer := &offers[i]
		if !offer.InStock {
			continue
		}

		usd, ok := toUSD(offer.Price, offer.Currency, fxRates)
		if !ok {
			continue
		}

		if price == nil || usd.LessThan(*price) {
			price = &usd
			shipping = nil
			if offer.ShippingPrice != nil {
				if s, ok := toUSD(*offer.ShippingPrice, offer.Currency, fxRates); ok {
					shipping = &s
				}
			}
		}
	}
	return price, shipping
}

func toUSD(amount decimal.Decimal, currency string, fxRates map[string]domain.FxRate) (decimal.Decimal, bool) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return amount, true
	}
	fx, ok := fxRates[currency]
	if !ok || !fx.Rate.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount.Div(fx.Rate), true
}

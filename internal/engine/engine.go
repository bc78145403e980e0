// Package engine orchestrates one trading run: per-symbol bar fetch,
// trigger detection, contract selection, sizing and entry, followed by the
// unconditional end-of-day cleanup. Per-symbol failures are isolated into
// outcome records; only a missing broker connection is fatal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/config"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
	"github.com/eddiefleurent/stamford_scalper/internal/orders"
	"github.com/eddiefleurent/stamford_scalper/internal/storage"
	"github.com/eddiefleurent/stamford_scalper/internal/strategy"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// callTimeout bounds each market-data call made directly by the engine.
const callTimeout = 15 * time.Second

// Engine wires the strategy components together for a run.
type Engine struct {
	cfg     *config.Config
	broker  broker.Broker
	orders  *orders.Manager
	journal storage.Interface
	logger  *log.Logger
	clock   func() time.Time

	// orderMu serializes order placement across symbol goroutines so the
	// gateway sees one entry/bracket sequence at a time.
	orderMu sync.Mutex
}

// New creates an engine. clock is optional and defaults to time.Now;
// tests inject a fixed clock to pin the cutoff comparison.
func New(cfg *config.Config, b broker.Broker, om *orders.Manager,
	journal storage.Interface, logger *log.Logger, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:     cfg,
		broker:  b,
		orders:  om,
		journal: journal,
		logger:  logger,
		clock:   clock,
	}
}

// RunCycle executes one full invocation: every configured symbol is
// evaluated independently, then EOD cleanup runs exactly once regardless
// of what the symbol loop produced. The returned report is also journaled.
func (e *Engine) RunCycle(ctx context.Context) models.RunReport {
	report := models.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: e.clock().UTC(),
	}

	now := e.clock()
	cutoff, err := e.cfg.CutoffFor(now)
	if err != nil {
		// Validated at startup; reaching here means the tz database went
		// away mid-run. Entries are unsafe without a cutoff.
		e.logger.Printf("Run %s: cannot resolve EOD cutoff: %v", report.RunID, err)
		cutoff = now
	}

	symbols := e.cfg.Strategy.Symbols
	outcomes := make([]models.SymbolOutcome, len(symbols))

	if !now.Before(cutoff) {
		e.logger.Printf("Run %s: %s is past EOD cutoff %s, skipping entries",
			report.RunID, now.Format("15:04:05"), cutoff.Format("15:04:05"))
		for i, symbol := range symbols {
			outcomes[i] = models.SymbolOutcome{
				Symbol: symbol,
				Kind:   models.OutcomeNoTrigger,
				Reason: "past EOD cutoff, entries disabled",
			}
		}
	} else {
		g, groupCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Strategy.MaxConcurrency)
		for i, symbol := range symbols {
			i, symbol := i, symbol
			g.Go(func() error {
				outcomes[i] = e.processSymbol(groupCtx, symbol, now, report.RunID)
				// Symbol failures become outcomes, never group errors, so a
				// bad symbol cannot cancel its siblings.
				return nil
			})
		}
		// Join barrier: EOD cleanup must not start while entries are in flight.
		_ = g.Wait()
	}

	report.Outcomes = outcomes
	for _, o := range outcomes {
		e.logger.Printf("Run %s: %s -> %s %s", report.RunID, o.Symbol, o.Kind, o.Reason)
	}

	report.EOD = e.orders.RunEODCleanup(ctx, e.clock(), cutoff)
	report.FinishedAt = e.clock().UTC()

	if err := e.journal.AppendReport(report); err != nil {
		e.logger.Printf("Run %s: failed to journal report: %v", report.RunID, err)
	}
	return report
}

// processSymbol evaluates one symbol end to end. Every error path returns
// a failed outcome; nothing escapes as an error.
func (e *Engine) processSymbol(ctx context.Context, symbol string, now time.Time,
	runID string) models.SymbolOutcome {

	lifecycle := models.NewLifecycle(symbol)
	fail := func(reason string) models.SymbolOutcome {
		if err := lifecycle.Transition(models.StateFailed, models.ConditionFailure); err != nil {
			e.logger.Printf("%s: %v", symbol, err)
		}
		return models.SymbolOutcome{Symbol: symbol, Kind: models.OutcomeFailed, Reason: reason}
	}

	barsCtx, cancelBars := context.WithTimeout(ctx, callTimeout)
	series, err := e.broker.GetIntradayBars(barsCtx, symbol,
		e.cfg.Strategy.BarInterval, e.cfg.Strategy.BarDuration, true)
	cancelBars()
	if err != nil {
		return fail(fmt.Sprintf("fetching bars: %v", err))
	}

	ignoreWindow := time.Duration(e.cfg.Strategy.IgnoreMinutes) * time.Minute
	trigger, found := strategy.Detect(series, ignoreWindow)
	if !found {
		return models.SymbolOutcome{Symbol: symbol, Kind: models.OutcomeNoTrigger}
	}
	e.logger.Printf("%s: wick-break trigger at %s, direction %s",
		symbol, trigger.Time.Format(time.RFC3339), trigger.Direction)

	refPrice, err := e.lastPriceWithFallback(ctx, symbol, series)
	if err != nil {
		return fail(fmt.Sprintf("reference price: %v", err))
	}

	contract, err := strategy.SelectContract(symbol, trigger.Direction, refPrice, now, strategy.SelectorConfig{
		ExpiryDaysAhead: e.cfg.Strategy.ExpiryDaysAhead,
		OTMThreshold:    e.cfg.Strategy.OTMThreshold,
		Venue:           e.cfg.Broker.OrderVenue,
	})
	if err != nil {
		return fail(fmt.Sprintf("selecting contract: %v", err))
	}
	e.logger.Printf("%s: selected %s", symbol, contract)

	premCtx, cancelPrem := context.WithTimeout(ctx, callTimeout)
	premium, err := e.broker.GetLastPrice(premCtx, contract.OCCSymbol())
	cancelPrem()
	if err != nil {
		return fail(fmt.Sprintf("option premium for %s: %v", contract.OCCSymbol(), err))
	}

	quantity := strategy.ContractsForBudget(premium, e.cfg.Strategy.PositionBudgetUSD,
		e.cfg.Strategy.ContractMultiplier)
	if quantity < 1 {
		if err := lifecycle.Transition(models.StateSkipped, models.ConditionZeroQuantity); err != nil {
			e.logger.Printf("%s: %v", symbol, err)
		}
		e.logger.Printf("%s: premium $%.2f sizes to zero contracts under $%.0f budget, skipping",
			symbol, premium, e.cfg.Strategy.PositionBudgetUSD)
		return models.SymbolOutcome{
			Symbol: symbol,
			Kind:   models.OutcomeSkippedZeroQty,
			Reason: fmt.Sprintf("premium $%.2f exceeds budget per contract", premium),
		}
	}

	// Entry and bracket are one serialized critical section per run.
	e.orderMu.Lock()
	fill, bracket, err := e.enterAndBracket(ctx, contract, quantity)
	e.orderMu.Unlock()
	if err != nil {
		if errors.Is(err, orders.ErrZeroQuantity) {
			return models.SymbolOutcome{Symbol: symbol, Kind: models.OutcomeSkippedZeroQty, Reason: err.Error()}
		}
		return fail(err.Error())
	}

	if err := lifecycle.Transition(models.StateEntered, models.ConditionEntryFilled); err != nil {
		e.logger.Printf("%s: %v", symbol, err)
	}
	if err := lifecycle.Transition(models.StateBracketPlaced, models.ConditionBracketPlaced); err != nil {
		e.logger.Printf("%s: %v", symbol, err)
	}

	record := models.TradeRecord{
		RunID:           runID,
		Symbol:          symbol,
		Contract:        contract,
		Quantity:        quantity,
		FillPrice:       fill.AvgPrice,
		TakeProfitPrice: bracket.TakeProfitPrice,
		TakeProfitQty:   bracket.TakeProfitQty,
		StopLossPrice:   bracket.StopLossPrice,
		OCAGroup:        bracket.OCAGroup,
		EnteredAt:       e.clock().UTC(),
	}
	if err := e.journal.AppendTrade(record); err != nil {
		e.logger.Printf("%s: failed to journal trade: %v", symbol, err)
	}

	tr := trigger
	return models.SymbolOutcome{
		Symbol:   symbol,
		Kind:     models.OutcomeEntered,
		Trigger:  &tr,
		Quantity: quantity,
	}
}

func (e *Engine) enterAndBracket(ctx context.Context, contract models.ContractSpec,
	quantity int) (*models.FillResult, *orders.Bracket, error) {
	fill, err := e.orders.EnterPosition(ctx, contract, quantity)
	if err != nil {
		return nil, nil, err
	}
	bracket, err := e.orders.PlaceBracket(ctx, contract, fill, quantity)
	if err != nil {
		return nil, nil, err
	}
	return fill, bracket, nil
}

// lastPriceWithFallback fetches the underlying's last price. A stale feed
// falls back to the last bar close — an explicit, logged decision made
// here rather than hidden inside the selector (which stays pure).
func (e *Engine) lastPriceWithFallback(ctx context.Context, symbol string,
	series *models.BarSeries) (float64, error) {

	priceCtx, cancel := context.WithTimeout(ctx, callTimeout)
	price, err := e.broker.GetLastPrice(priceCtx, symbol)
	cancel()
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, broker.ErrStalePrice) {
		return 0, err
	}

	last, ok := series.Last()
	if !ok || last.Close <= 0 {
		return 0, fmt.Errorf("stale feed and no usable bar close: %w", err)
	}
	e.logger.Printf("%s: live price stale, falling back to last bar close $%.2f", symbol, last.Close)
	return last.Close, nil
}

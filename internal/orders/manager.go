// Package orders drives the order lifecycle for one symbol per run: market
// entry, linked take-profit/stop-loss bracket, and the unconditional
// end-of-day cleanup.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
	"github.com/eddiefleurent/stamford_scalper/internal/retry"
	"github.com/eddiefleurent/stamford_scalper/internal/util"
	"github.com/google/uuid"
)

// ErrZeroQuantity reports a sub-minimum sizing result. It is a deliberate
// skip, not a failure; the engine records it as skipped_zero_qty.
var ErrZeroQuantity = errors.New("sized to zero contracts")

// Config contains timing bounds and bracket parameters for the manager.
type Config struct {
	FillTimeout    time.Duration // bounded wait for an entry fill
	CallTimeout    time.Duration // bound on any single broker call
	TickSize       float64       // price increment for bracket limits
	TakeProfitPct  float64       // e.g. 0.10 for +10%
	StopLossPct    float64       // e.g. 0.10 for -10%
	PartialSellPct float64       // fraction of quantity on the profit leg
}

// DefaultConfig is the default manager configuration.
var DefaultConfig = Config{
	FillTimeout: 2 * time.Minute,
	CallTimeout: 10 * time.Second,
	TickSize:    0.01,
}

// Bracket describes the two linked exit legs placed after an entry fill.
type Bracket struct {
	OCAGroup        string
	TakeProfitPrice float64
	TakeProfitQty   int
	StopLossPrice   float64
	TakeProfitLeg   broker.OrderHandle
	StopLossLeg     broker.OrderHandle
}

// Manager executes entries, brackets and EOD cleanup against a Broker.
type Manager struct {
	broker      broker.Broker
	retryClient *retry.Client
	logger      *log.Logger
	config      Config
}

// NewManager creates an order manager. Config is optional.
func NewManager(b broker.Broker, retryClient *retry.Client, logger *log.Logger, config ...Config) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = DefaultConfig.FillTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = DefaultConfig.TickSize
	}
	if b == nil {
		panic("orders.NewManager: broker must not be nil")
	}
	return &Manager{
		broker:      b,
		retryClient: retryClient,
		logger:      logger,
		config:      cfg,
	}
}

// EnterPosition submits a market buy for the contract and waits for its
// fill. A quantity below one contract is a no-op skip (ErrZeroQuantity). A
// missing fill price is fatal for this symbol's lifecycle: without an
// anchor there is no bracket, so the error surfaces instead of defaulting.
func (m *Manager) EnterPosition(ctx context.Context, contract models.ContractSpec,
	quantity int) (*models.FillResult, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("entry for %s: %w", contract.Symbol, ErrZeroQuantity)
	}

	submitCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()

	intent := models.OrderIntent{Side: models.SideBuy, Quantity: quantity}
	handle, err := m.broker.SubmitOrder(submitCtx, contract, intent)
	if err != nil {
		return nil, fmt.Errorf("entry for %s: %w", contract.Symbol, err)
	}
	m.logger.Printf("Entry order %s submitted: BUY %d x %s", handle, quantity, contract)

	fillCtx, cancelFill := context.WithTimeout(ctx, m.config.FillTimeout)
	defer cancelFill()

	fill, err := m.broker.AwaitFill(fillCtx, handle)
	if err != nil {
		return nil, fmt.Errorf("awaiting entry fill for %s: %w", contract.Symbol, err)
	}
	if fill == nil || fill.AvgPrice <= 0 {
		return nil, fmt.Errorf("entry for %s: fill reported without a usable price", contract.Symbol)
	}

	m.logger.Printf("Entry filled for %s: %d @ $%.2f", contract.Symbol, quantity, fill.AvgPrice)
	return fill, nil
}

// PlaceBracket submits the linked exit pair anchored on the entry fill:
// a limit sell of floor(quantity*PartialSellPct) at fill*(1+TakeProfitPct)
// and a limit sell of the full quantity at fill*(1-StopLossPct). Both legs
// share one OCA group; the broker cancels the survivor when either
// executes.
func (m *Manager) PlaceBracket(ctx context.Context, contract models.ContractSpec,
	fill *models.FillResult, quantity int) (*Bracket, error) {
	if fill == nil || fill.AvgPrice <= 0 {
		return nil, fmt.Errorf("bracket for %s: no fill price to anchor on", contract.Symbol)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("bracket for %s: quantity %d", contract.Symbol, quantity)
	}

	tick := m.config.TickSize
	tpPrice := util.CeilToTick(fill.AvgPrice*(1+m.config.TakeProfitPct), tick)
	slPrice := util.FloorToTick(fill.AvgPrice*(1-m.config.StopLossPct), tick)
	slPrice = math.Max(slPrice, tick)

	tpQty := int(math.Floor(float64(quantity) * m.config.PartialSellPct))
	if tpQty > quantity {
		tpQty = quantity
	}
	if tpQty < 1 {
		tpQty = 1
	}

	ocaGroup := "oca-" + uuid.New().String()

	tpLeg, err := m.submitLeg(ctx, contract, models.OrderIntent{
		Side:     models.SideSell,
		Quantity: tpQty,
		Limit:    &tpPrice,
		OCAGroup: ocaGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("take-profit leg for %s: %w", contract.Symbol, err)
	}

	slLeg, err := m.submitLeg(ctx, contract, models.OrderIntent{
		Side:     models.SideSell,
		Quantity: quantity,
		Limit:    &slPrice,
		OCAGroup: ocaGroup,
	})
	if err != nil {
		// Leave the filled position to EOD cleanup rather than guessing at
		// a one-legged exit; surface the failure.
		return nil, fmt.Errorf("stop-loss leg for %s (take-profit %s already live): %w",
			contract.Symbol, tpLeg, err)
	}

	m.logger.Printf("Bracket placed for %s: TP sell %d @ $%.2f, SL sell %d @ $%.2f, oca=%s",
		contract.Symbol, tpQty, tpPrice, quantity, slPrice, ocaGroup)

	return &Bracket{
		OCAGroup:        ocaGroup,
		TakeProfitPrice: tpPrice,
		TakeProfitQty:   tpQty,
		StopLossPrice:   slPrice,
		TakeProfitLeg:   tpLeg,
		StopLossLeg:     slLeg,
	}, nil
}

func (m *Manager) submitLeg(ctx context.Context, contract models.ContractSpec,
	intent models.OrderIntent) (broker.OrderHandle, error) {
	legCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()
	return m.broker.SubmitOrder(legCtx, contract, intent)
}

// RunEODCleanup performs the forced end-of-session liquidation: before the
// cutoff it is a no-op (the scheduler re-invokes until the cutoff passes);
// at or after it, every open order is cancelled and every nonzero position
// flattened with an offsetting market order. Runs inside its own failure
// boundary and never panics the run.
func (m *Manager) RunEODCleanup(ctx context.Context, now, cutoff time.Time) models.EODOutcome {
	if now.Before(cutoff) {
		m.logger.Printf("EOD cleanup: %s before cutoff %s, nothing to do",
			now.Format("15:04:05"), cutoff.Format("15:04:05"))
		return models.EODOutcome{Ran: false}
	}

	outcome := models.EODOutcome{Ran: true}

	// Cancel first so a resting bracket leg cannot fire against a position
	// that is about to be flattened.
	listCtx, cancelList := context.WithTimeout(ctx, m.config.CallTimeout)
	openOrders, err := m.broker.ListOpenOrders(listCtx)
	cancelList()
	if err != nil {
		outcome.Error = fmt.Sprintf("listing open orders: %v", err)
		m.logger.Printf("EOD cleanup: %s", outcome.Error)
		return outcome
	}
	for _, o := range openOrders {
		cancelCtx, cancelCancel := context.WithTimeout(ctx, m.config.CallTimeout)
		err := m.broker.CancelOrder(cancelCtx, o.Handle)
		cancelCancel()
		if err != nil {
			m.logger.Printf("EOD cleanup: failed to cancel order %s: %v", o.Handle, err)
			continue
		}
		outcome.OrdersCancelled++
	}

	posCtx, cancelPos := context.WithTimeout(ctx, m.config.CallTimeout)
	positions, err := m.broker.ListOpenPositions(posCtx)
	cancelPos()
	if err != nil {
		outcome.Error = fmt.Sprintf("listing positions: %v", err)
		m.logger.Printf("EOD cleanup: %s", outcome.Error)
		return outcome
	}

	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}
		if _, err := m.retryClient.FlattenPositionWithRetry(ctx, pos); err != nil {
			m.logger.Printf("EOD cleanup: failed to flatten %s (qty %d): %v",
				pos.Contract, pos.Quantity, err)
			if outcome.Error == "" {
				outcome.Error = fmt.Sprintf("flattening %s: %v", pos.Contract, err)
			}
			continue
		}
		outcome.PositionsClosed++
	}

	m.logger.Printf("EOD cleanup complete: %d orders cancelled, %d positions flattened",
		outcome.OrdersCancelled, outcome.PositionsClosed)
	return outcome
}

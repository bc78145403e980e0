package broker

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// PaperBroker is an in-memory Broker for paper mode and tests. It fabricates
// a plausible session of intraday bars, fills market orders instantly at a
// synthetic premium, and keeps open orders and positions in memory. No real
// money at risk.
type PaperBroker struct {
	mu        sync.Mutex
	connected bool
	spot      map[string]float64
	orders    map[OrderHandle]*paperOrder
	positions map[string]int // OCC symbol -> signed quantity
	nextID    int
	barAnchor time.Time
}

type paperOrder struct {
	handle   OrderHandle
	symbol   string // OCC
	side     models.OrderSide
	quantity int
	limit    *float64
	ocaGroup string
	status   string
	avgFill  float64
}

// Ensure PaperBroker implements Broker at compile time.
var _ Broker = (*PaperBroker)(nil)

// secureFloat64 generates a cryptographically secure random float64 in [0,1).
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewPaperBroker creates a paper broker seeded with random spot prices.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		spot:      make(map[string]float64),
		orders:    make(map[OrderHandle]*paperOrder),
		positions: make(map[string]int),
	}
}

// Connect marks the session live.
func (p *PaperBroker) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	p.barAnchor = time.Now().UTC().Truncate(5 * time.Minute).Add(-3 * time.Hour)
	return nil
}

// Disconnect marks the session closed.
func (p *PaperBroker) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *PaperBroker) spotFor(symbol string) float64 {
	if s, ok := p.spot[symbol]; ok {
		return s
	}
	s := 80 + secureFloat64()*120
	p.spot[symbol] = s
	return s
}

// GetIntradayBars fabricates a drifting random walk of 5-minute bars for
// the session so far.
func (p *PaperBroker) GetIntradayBars(ctx context.Context, symbol, interval, duration string,
	regularHoursOnly bool) (*models.BarSeries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}

	price := p.spotFor(symbol)
	drift := (secureFloat64() - 0.45) * 0.4 // slight upward bias
	n := 36                                 // three hours of 5-minute bars
	bars := make([]models.Bar, 0, n)
	t := p.barAnchor
	for i := 0; i < n; i++ {
		open := price
		move := drift + (secureFloat64()-0.5)*0.6
		closePx := open + move
		high := math.Max(open, closePx) + secureFloat64()*0.3
		low := math.Min(open, closePx) - secureFloat64()*0.3
		bars = append(bars, models.Bar{Time: t, Open: open, High: high, Low: low, Close: closePx})
		price = closePx
		t = t.Add(5 * time.Minute)
	}
	p.spot[symbol] = price
	return models.NewBarSeries(symbol, bars)
}

// GetLastPrice returns the simulated last price. Option symbols price off a
// crude intrinsic-plus-premium model so sizing stays realistic.
func (p *PaperBroker) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return 0, ErrNotConnected
	}

	if contract, err := models.ParseOCCSymbol(symbol); err == nil {
		return p.optionPremium(contract), nil
	}
	return p.spotFor(symbol), nil
}

func (p *PaperBroker) optionPremium(c models.ContractSpec) float64 {
	spot := p.spotFor(c.Symbol)
	intrinsic := 0.0
	if c.Right == models.RightCall {
		intrinsic = math.Max(0, spot-c.Strike)
	} else {
		intrinsic = math.Max(0, c.Strike-spot)
	}
	return intrinsic + 0.5 + secureFloat64()*2.0
}

// SubmitOrder accepts an order. Market orders fill immediately and adjust
// the simulated position; limit orders rest open until cancelled.
func (p *PaperBroker) SubmitOrder(ctx context.Context, contract models.ContractSpec,
	intent models.OrderIntent) (OrderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return "", ErrNotConnected
	}
	if intent.Quantity <= 0 {
		return "", fmt.Errorf("paper order for %s: quantity must be positive, got %d",
			contract.Symbol, intent.Quantity)
	}

	p.nextID++
	handle := OrderHandle(fmt.Sprintf("paper-%d", p.nextID))
	order := &paperOrder{
		handle:   handle,
		symbol:   contract.OCCSymbol(),
		side:     intent.Side,
		quantity: intent.Quantity,
		limit:    intent.Limit,
		ocaGroup: intent.OCAGroup,
		status:   "submitted",
	}
	p.orders[handle] = order

	if intent.IsMarket() {
		order.status = "filled"
		order.avgFill = p.optionPremium(contract)
		delta := intent.Quantity
		if intent.Side == models.SideSell {
			delta = -delta
		}
		p.positions[order.symbol] += delta
		p.cancelOCASiblingsLocked(order)
	}
	return handle, nil
}

// cancelOCASiblingsLocked cancels every open order sharing a filled order's
// OCA group. Mirrors the broker-side one-cancels-all guarantee.
func (p *PaperBroker) cancelOCASiblingsLocked(filled *paperOrder) {
	if filled.ocaGroup == "" {
		return
	}
	for _, o := range p.orders {
		if o.handle != filled.handle && o.ocaGroup == filled.ocaGroup && o.status == "submitted" {
			o.status = "cancelled"
		}
	}
}

// AwaitFill reports the fill of a previously submitted order.
func (p *PaperBroker) AwaitFill(ctx context.Context, handle OrderHandle) (*models.FillResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[handle]
	if !ok {
		return nil, fmt.Errorf("paper order %s not found", handle)
	}
	switch order.status {
	case "filled":
		return &models.FillResult{AvgPrice: order.avgFill}, nil
	case "cancelled", "rejected":
		return nil, fmt.Errorf("paper order %s: status %s: %w", handle, order.status, ErrOrderRejected)
	default:
		// Resting limit orders never fill in paper mode.
		return nil, fmt.Errorf("paper order %s: %w", handle, ErrFillTimeout)
	}
}

// CancelOrder cancels a resting order.
func (p *PaperBroker) CancelOrder(ctx context.Context, handle OrderHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[handle]
	if !ok {
		return fmt.Errorf("paper order %s not found", handle)
	}
	if order.status == "submitted" {
		order.status = "cancelled"
	}
	return nil
}

// ListOpenOrders returns every resting order.
func (p *PaperBroker) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	var orders []OpenOrder
	for _, o := range p.orders {
		if o.status != "submitted" {
			continue
		}
		orders = append(orders, OpenOrder{
			Handle:   o.handle,
			Symbol:   o.symbol,
			Side:     o.side,
			Quantity: o.quantity,
			Status:   o.status,
		})
	}
	return orders, nil
}

// ListOpenPositions returns the nonzero simulated positions.
func (p *PaperBroker) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	var positions []models.Position
	for symbol, qty := range p.positions {
		if qty == 0 {
			continue
		}
		contract, err := models.ParseOCCSymbol(symbol)
		if err != nil {
			continue
		}
		positions = append(positions, models.Position{Contract: contract, Quantity: qty})
	}
	return positions, nil
}

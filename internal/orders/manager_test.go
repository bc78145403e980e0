package orders

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/broker"
	"github.com/eddiefleurent/stamford_scalper/internal/models"
	"github.com/eddiefleurent/stamford_scalper/internal/retry"
)

// mockBrokerForOrders implements broker.Broker and records every order call.
type mockBrokerForOrders struct {
	submitted     []submittedOrder
	cancelled     []broker.OrderHandle
	callSequence  []string
	openOrders    []broker.OpenOrder
	openPositions []models.Position
	fill          *models.FillResult
	fillErr       error
	submitErr     error
	nextID        int
}

type submittedOrder struct {
	contract models.ContractSpec
	intent   models.OrderIntent
}

// Compile-time interface compliance check
var _ broker.Broker = (*mockBrokerForOrders)(nil)

func (m *mockBrokerForOrders) Connect(ctx context.Context) error { return nil }
func (m *mockBrokerForOrders) Disconnect() error                 { return nil }

func (m *mockBrokerForOrders) GetIntradayBars(ctx context.Context, symbol, interval, duration string,
	regularHoursOnly bool) (*models.BarSeries, error) {
	return models.NewBarSeries(symbol, nil)
}

func (m *mockBrokerForOrders) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return 5.0, nil
}

func (m *mockBrokerForOrders) SubmitOrder(ctx context.Context, contract models.ContractSpec,
	intent models.OrderIntent) (broker.OrderHandle, error) {
	m.callSequence = append(m.callSequence, "submit")
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.submitted = append(m.submitted, submittedOrder{contract: contract, intent: intent})
	m.nextID++
	return broker.OrderHandle(string(rune('a' + m.nextID - 1))), nil
}

func (m *mockBrokerForOrders) AwaitFill(ctx context.Context, handle broker.OrderHandle) (*models.FillResult, error) {
	m.callSequence = append(m.callSequence, "await")
	return m.fill, m.fillErr
}

func (m *mockBrokerForOrders) CancelOrder(ctx context.Context, handle broker.OrderHandle) error {
	m.callSequence = append(m.callSequence, "cancel")
	m.cancelled = append(m.cancelled, handle)
	return nil
}

func (m *mockBrokerForOrders) ListOpenOrders(ctx context.Context) ([]broker.OpenOrder, error) {
	m.callSequence = append(m.callSequence, "list_orders")
	return m.openOrders, nil
}

func (m *mockBrokerForOrders) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	m.callSequence = append(m.callSequence, "list_positions")
	return m.openPositions, nil
}

func testContract() models.ContractSpec {
	return models.ContractSpec{
		Symbol: "SPY",
		Expiry: time.Date(2026, 4, 22, 0, 0, 0, 0, time.UTC),
		Strike: 3,
		Right:  models.RightCall,
	}
}

func newTestManager(mock *mockBrokerForOrders) *Manager {
	logger := log.New(io.Discard, "", 0)
	retryClient := retry.NewClient(mock, logger, retry.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Timeout:        time.Second,
	})
	return NewManager(mock, retryClient, logger, Config{
		FillTimeout:    time.Second,
		CallTimeout:    time.Second,
		TickSize:       0.01,
		TakeProfitPct:  0.10,
		StopLossPct:    0.10,
		PartialSellPct: 0.90,
	})
}

func TestEnterPositionZeroQuantity(t *testing.T) {
	mock := &mockBrokerForOrders{}
	manager := newTestManager(mock)

	_, err := manager.EnterPosition(context.Background(), testContract(), 0)
	if !errors.Is(err, ErrZeroQuantity) {
		t.Fatalf("error = %v, want ErrZeroQuantity", err)
	}
	if len(mock.callSequence) != 0 {
		t.Errorf("no broker calls expected, got %v", mock.callSequence)
	}
}

func TestEnterPositionHappyPath(t *testing.T) {
	mock := &mockBrokerForOrders{fill: &models.FillResult{AvgPrice: 5.0}}
	manager := newTestManager(mock)

	fill, err := manager.EnterPosition(context.Background(), testContract(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill.AvgPrice != 5.0 {
		t.Errorf("fill price = %v, want 5.0", fill.AvgPrice)
	}

	if len(mock.submitted) != 1 {
		t.Fatalf("expected 1 order, got %d", len(mock.submitted))
	}
	entry := mock.submitted[0].intent
	if entry.Side != models.SideBuy || entry.Quantity != 10 || !entry.IsMarket() {
		t.Errorf("entry intent = %+v, want market buy 10", entry)
	}
}

func TestEnterPositionMissingFillPrice(t *testing.T) {
	mock := &mockBrokerForOrders{fill: &models.FillResult{AvgPrice: 0}}
	manager := newTestManager(mock)

	if _, err := manager.EnterPosition(context.Background(), testContract(), 10); err == nil {
		t.Fatal("expected error for fill without a price")
	}
}

func TestPlaceBracket(t *testing.T) {
	mock := &mockBrokerForOrders{}
	manager := newTestManager(mock)

	fill := &models.FillResult{AvgPrice: 5.00}
	bracket, err := manager.PlaceBracket(context.Background(), testContract(), fill, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(bracket.TakeProfitPrice-5.50) > 1e-9 {
		t.Errorf("take-profit price = %v, want 5.50", bracket.TakeProfitPrice)
	}
	if math.Abs(bracket.StopLossPrice-4.50) > 1e-9 {
		t.Errorf("stop-loss price = %v, want 4.50", bracket.StopLossPrice)
	}
	if bracket.TakeProfitQty != 9 {
		t.Errorf("take-profit quantity = %d, want 9", bracket.TakeProfitQty)
	}
	if !(bracket.TakeProfitPrice > fill.AvgPrice && fill.AvgPrice > bracket.StopLossPrice) {
		t.Error("expected tp > fill > sl ordering")
	}
	if bracket.OCAGroup == "" {
		t.Error("expected a nonempty OCA group")
	}

	if len(mock.submitted) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(mock.submitted))
	}
	tp, sl := mock.submitted[0].intent, mock.submitted[1].intent
	if tp.Side != models.SideSell || tp.Quantity != 9 || tp.Limit == nil {
		t.Errorf("tp leg = %+v, want limit sell 9", tp)
	}
	if sl.Side != models.SideSell || sl.Quantity != 10 || sl.Limit == nil {
		t.Errorf("sl leg = %+v, want limit sell 10", sl)
	}
	if tp.OCAGroup != sl.OCAGroup || tp.OCAGroup != bracket.OCAGroup {
		t.Errorf("legs must share the bracket OCA group: %q vs %q", tp.OCAGroup, sl.OCAGroup)
	}
}

func TestPlaceBracketClampsPartialQuantity(t *testing.T) {
	mock := &mockBrokerForOrders{}
	manager := newTestManager(mock)

	// floor(1 * 0.9) = 0 rounds up to the minimum sellable single contract.
	bracket, err := manager.PlaceBracket(context.Background(), testContract(),
		&models.FillResult{AvgPrice: 5.00}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bracket.TakeProfitQty != 1 {
		t.Errorf("take-profit quantity = %d, want 1", bracket.TakeProfitQty)
	}
}

func TestPlaceBracketRequiresFill(t *testing.T) {
	manager := newTestManager(&mockBrokerForOrders{})

	if _, err := manager.PlaceBracket(context.Background(), testContract(), nil, 10); err == nil {
		t.Error("expected error for nil fill")
	}
	if _, err := manager.PlaceBracket(context.Background(), testContract(),
		&models.FillResult{AvgPrice: 0}, 10); err == nil {
		t.Error("expected error for zero fill price")
	}
}

func TestRunEODCleanupBeforeCutoff(t *testing.T) {
	mock := &mockBrokerForOrders{
		openOrders:    []broker.OpenOrder{{Handle: "x"}},
		openPositions: []models.Position{{Contract: testContract(), Quantity: 5}},
	}
	manager := newTestManager(mock)

	cutoff := time.Date(2026, 4, 22, 19, 50, 0, 0, time.UTC)
	now := cutoff.Add(-time.Hour)

	outcome := manager.RunEODCleanup(context.Background(), now, cutoff)
	if outcome.Ran {
		t.Error("cleanup must not run before the cutoff")
	}
	if len(mock.callSequence) != 0 {
		t.Errorf("no broker calls expected before cutoff, got %v", mock.callSequence)
	}
}

func TestRunEODCleanupAfterCutoff(t *testing.T) {
	mock := &mockBrokerForOrders{
		openOrders: []broker.OpenOrder{
			{Handle: "tp-leg", Symbol: "SPY260422C00003000"},
			{Handle: "sl-leg", Symbol: "SPY260422C00003000"},
		},
		openPositions: []models.Position{{Contract: testContract(), Quantity: 5}},
	}
	manager := newTestManager(mock)

	cutoff := time.Date(2026, 4, 22, 19, 50, 0, 0, time.UTC)
	outcome := manager.RunEODCleanup(context.Background(), cutoff.Add(time.Minute), cutoff)

	if !outcome.Ran {
		t.Fatal("cleanup should run after the cutoff")
	}
	if outcome.OrdersCancelled != 2 {
		t.Errorf("orders cancelled = %d, want 2", outcome.OrdersCancelled)
	}
	if outcome.PositionsClosed != 1 {
		t.Errorf("positions closed = %d, want 1", outcome.PositionsClosed)
	}
	if outcome.Error != "" {
		t.Errorf("unexpected outcome error: %s", outcome.Error)
	}

	// Cancels must complete before any flatten submit.
	sawSubmit := false
	for _, call := range mock.callSequence {
		if call == "submit" {
			sawSubmit = true
		}
		if call == "cancel" && sawSubmit {
			t.Fatalf("cancel after submit in sequence %v", mock.callSequence)
		}
	}

	if len(mock.submitted) != 1 {
		t.Fatalf("expected 1 flatten order, got %d", len(mock.submitted))
	}
	flatten := mock.submitted[0].intent
	if flatten.Side != models.SideSell || flatten.Quantity != 5 || !flatten.IsMarket() {
		t.Errorf("flatten intent = %+v, want market sell 5", flatten)
	}
}

func TestRunEODCleanupFlattensShortWithBuy(t *testing.T) {
	mock := &mockBrokerForOrders{
		openPositions: []models.Position{{Contract: testContract(), Quantity: -3}},
	}
	manager := newTestManager(mock)

	cutoff := time.Date(2026, 4, 22, 19, 50, 0, 0, time.UTC)
	outcome := manager.RunEODCleanup(context.Background(), cutoff, cutoff)

	if !outcome.Ran || outcome.PositionsClosed != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	flatten := mock.submitted[0].intent
	if flatten.Side != models.SideBuy || flatten.Quantity != 3 {
		t.Errorf("flatten intent = %+v, want market buy 3", flatten)
	}
}

// Package broker defines the brokerage capability set the bot depends on,
// a REST gateway adapter implementing it, a circuit breaker wrapper, and a
// paper broker for simulated runs.
package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/models"
	"github.com/sony/gobreaker"
)

// OrderHandle identifies a submitted order for later status queries and
// cancellation. The bot does not own order identity beyond this handle.
type OrderHandle string

// OpenOrder is a live order as reported by the broker.
type OpenOrder struct {
	Handle   OrderHandle
	Symbol   string
	Side     models.OrderSide
	Quantity int
	Status   string
}

// Broker is the explicit capability set the core consumes. The gateway
// adapter and the paper broker both implement it; tests supply hand mocks.
//
// Connect/Disconnect bracket a run: at most one live session, acquired at
// run start and released on every exit path. All other methods require a
// connected session and honor context deadlines.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// Market data
	GetIntradayBars(ctx context.Context, symbol, interval, duration string,
		regularHoursOnly bool) (*models.BarSeries, error)
	GetLastPrice(ctx context.Context, symbol string) (float64, error)

	// Order lifecycle
	SubmitOrder(ctx context.Context, contract models.ContractSpec,
		intent models.OrderIntent) (OrderHandle, error)
	AwaitFill(ctx context.Context, handle OrderHandle) (*models.FillResult, error)
	CancelOrder(ctx context.Context, handle OrderHandle) error

	// Open state, read during EOD cleanup
	ListOpenOrders(ctx context.Context) ([]OpenOrder, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
}

// CircuitBreakerBroker wraps a Broker so that a failing gateway trips open
// instead of hammering it with doomed requests.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(b Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(b, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with
// custom settings.
func NewCircuitBreakerBrokerWithSettings(b Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  b,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	b Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(b) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Connect wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) Connect(ctx context.Context) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.Connect(ctx)
	})
	return err
}

// Disconnect releases the underlying session. Not routed through the
// breaker: release must succeed even with the circuit open.
func (c *CircuitBreakerBroker) Disconnect() error {
	return c.broker.Disconnect()
}

// GetIntradayBars wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetIntradayBars(ctx context.Context, symbol, interval, duration string,
	regularHoursOnly bool) (*models.BarSeries, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*models.BarSeries, error) {
		return b.GetIntradayBars(ctx, symbol, interval, duration, regularHoursOnly)
	})
}

// GetLastPrice wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.GetLastPrice(ctx, symbol)
	})
}

// SubmitOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) SubmitOrder(ctx context.Context, contract models.ContractSpec,
	intent models.OrderIntent) (OrderHandle, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (OrderHandle, error) {
		return b.SubmitOrder(ctx, contract, intent)
	})
}

// AwaitFill wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) AwaitFill(ctx context.Context, handle OrderHandle) (*models.FillResult, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*models.FillResult, error) {
		return b.AwaitFill(ctx, handle)
	})
}

// CancelOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) CancelOrder(ctx context.Context, handle OrderHandle) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(ctx, handle)
	})
	return err
}

// ListOpenOrders wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]OpenOrder, error) {
		return b.ListOpenOrders(ctx)
	})
}

// ListOpenPositions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]models.Position, error) {
		return b.ListOpenPositions(ctx)
	})
}

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eddiefleurent/stamford_scalper/internal/models"
)

// GatewayClient talks to a locally running brokerage gateway over its REST
// API. One client holds one session: Connect authenticates, Disconnect logs
// out. The gateway owns calendar/holiday handling, order routing and the
// wire protocol; this adapter only maps the Broker capability set onto it.
type GatewayClient struct {
	baseURL      string
	accountID    string
	client       *http.Client
	pollInterval time.Duration
	connected    bool
}

// Ensure GatewayClient implements Broker at compile time.
var _ Broker = (*GatewayClient)(nil)

const defaultGatewayTimeout = 10 * time.Second

// NewGatewayClient creates a gateway adapter with a default HTTP timeout.
func NewGatewayClient(baseURL, accountID string) *GatewayClient {
	return NewGatewayClientWithClient(baseURL, accountID, &http.Client{Timeout: defaultGatewayTimeout})
}

// NewGatewayClientWithClient creates a gateway adapter with a caller-supplied
// HTTP client (tests, custom transport).
func NewGatewayClientWithClient(baseURL, accountID string, client *http.Client) *GatewayClient {
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	return &GatewayClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		accountID:    accountID,
		client:       client,
		pollInterval: 1 * time.Second,
	}
}

// WithPollInterval overrides the fill-polling interval (tests).
func (g *GatewayClient) WithPollInterval(d time.Duration) *GatewayClient {
	if d > 0 {
		g.pollInterval = d
	}
	return g
}

// ============ Wire structures ============

type authStatusResponse struct {
	Authenticated bool `json:"authenticated"`
	Connected     bool `json:"connected"`
}

type historyResponse struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		T int64   `json:"t"` // epoch millis
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
	} `json:"data"`
}

type snapshotResponse struct {
	Symbol string   `json:"symbol"`
	Last   *float64 `json:"last"`
	Stale  bool     `json:"stale"`
}

type orderRequest struct {
	Symbol    string  `json:"symbol"` // OCC option symbol
	Side      string  `json:"side"`
	Quantity  int     `json:"quantity"`
	OrderType string  `json:"order_type"` // MKT | LMT
	Price     float64 `json:"price,omitempty"`
	OCAGroup  string  `json:"oca_group,omitempty"`
	TIF       string  `json:"tif"`
}

type orderSubmitResponse struct {
	OrderID string `json:"order_id"`
}

type orderStatusResponse struct {
	OrderID      string  `json:"order_id"`
	Status       string  `json:"status"` // submitted | filled | cancelled | rejected
	AvgFillPrice float64 `json:"avg_fill_price"`
	FilledQty    int     `json:"filled_qty"`
	RemainingQty int     `json:"remaining_qty"`
}

type openOrdersResponse struct {
	Orders []struct {
		OrderID  string `json:"order_id"`
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity int    `json:"quantity"`
		Status   string `json:"status"`
	} `json:"orders"`
}

type positionsResponse struct {
	Positions []struct {
		Symbol   string `json:"symbol"` // OCC option symbol
		Quantity int    `json:"quantity"`
	} `json:"positions"`
}

// ============ Broker implementation ============

// Connect verifies the gateway session is authenticated. The gateway itself
// owns credentials; an unauthenticated session is ErrNotConnected, which is
// fatal to the run.
func (g *GatewayClient) Connect(ctx context.Context) error {
	var status authStatusResponse
	endpoint := g.baseURL + "/v1/api/iserver/auth/status"
	if err := g.makeRequestCtx(ctx, http.MethodPost, endpoint, nil, &status); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if !status.Authenticated || !status.Connected {
		return fmt.Errorf("%w: gateway session not authenticated", ErrNotConnected)
	}
	g.connected = true
	return nil
}

// Disconnect logs the session out. Safe to call when never connected.
func (g *GatewayClient) Disconnect() error {
	if !g.connected {
		return nil
	}
	g.connected = false
	ctx, cancel := context.WithTimeout(context.Background(), defaultGatewayTimeout)
	defer cancel()
	endpoint := g.baseURL + "/v1/api/logout"
	if err := g.makeRequestCtx(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return fmt.Errorf("gateway logout: %w", err)
	}
	return nil
}

// GetIntradayBars fetches OHLC history for a symbol. interval is a bar-size
// label (e.g. "5min") and duration a lookback label (e.g. "1d"), passed
// through to the gateway untouched.
func (g *GatewayClient) GetIntradayBars(ctx context.Context, symbol, interval, duration string,
	regularHoursOnly bool) (*models.BarSeries, error) {
	if err := g.requireSession(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("bar", interval)
	params.Set("period", duration)
	params.Set("outsideRth", fmt.Sprintf("%t", !regularHoursOnly))

	var resp historyResponse
	endpoint := g.baseURL + "/v1/api/iserver/marketdata/history?" + params.Encode()
	if err := g.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching bars for %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(resp.Data))
	for _, d := range resp.Data {
		bars = append(bars, models.Bar{
			Time:  time.UnixMilli(d.T).UTC(),
			Open:  d.O,
			High:  d.H,
			Low:   d.L,
			Close: d.C,
		})
	}
	return models.NewBarSeries(symbol, bars)
}

// GetLastPrice returns the last traded price for a symbol or OCC option
// symbol. A stale or absent tick is ErrStalePrice; the caller decides the
// fallback policy.
func (g *GatewayClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := g.requireSession(); err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var resp snapshotResponse
	endpoint := g.baseURL + "/v1/api/iserver/marketdata/snapshot?" + params.Encode()
	if err := g.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetching snapshot for %s: %w", symbol, err)
	}
	if resp.Stale || resp.Last == nil || *resp.Last <= 0 {
		return 0, fmt.Errorf("snapshot for %s: %w", symbol, ErrStalePrice)
	}
	return *resp.Last, nil
}

// SubmitOrder places an order for the given contract. A gateway rejection
// maps to ErrOrderRejected.
func (g *GatewayClient) SubmitOrder(ctx context.Context, contract models.ContractSpec,
	intent models.OrderIntent) (OrderHandle, error) {
	if err := g.requireSession(); err != nil {
		return "", err
	}
	if intent.Quantity <= 0 {
		return "", fmt.Errorf("submit order for %s: quantity must be positive, got %d",
			contract.Symbol, intent.Quantity)
	}

	req := orderRequest{
		Symbol:    contract.OCCSymbol(),
		Side:      string(intent.Side),
		Quantity:  intent.Quantity,
		OrderType: "MKT",
		OCAGroup:  intent.OCAGroup,
		TIF:       "DAY",
	}
	if intent.Limit != nil {
		req.OrderType = "LMT"
		req.Price = *intent.Limit
	}

	var resp orderSubmitResponse
	endpoint := fmt.Sprintf("%s/v1/api/iserver/account/%s/orders", g.baseURL, g.accountID)
	if err := g.makeRequestCtx(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		if IsPermanentAPIError(err) {
			return "", fmt.Errorf("%w: %v", ErrOrderRejected, err)
		}
		return "", fmt.Errorf("submitting order for %s: %w", contract.Symbol, err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%w: gateway returned no order id for %s", ErrOrderRejected, contract.Symbol)
	}
	return OrderHandle(resp.OrderID), nil
}

// AwaitFill polls order status until the order fills, fails, or the context
// deadline passes. The caller bounds the wait; expiry maps to ErrFillTimeout.
func (g *GatewayClient) AwaitFill(ctx context.Context, handle OrderHandle) (*models.FillResult, error) {
	if err := g.requireSession(); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("order %s: %w", handle, ErrFillTimeout)
		case <-ticker.C:
			status, err := g.getOrderStatus(ctx, handle)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return nil, fmt.Errorf("order %s: %w", handle, ErrFillTimeout)
				}
				// Transient status-poll errors keep the ticker running.
				log.Printf("gateway: order %s status poll failed: %v", handle, err)
				continue
			}

			switch strings.ToLower(status.Status) {
			case "filled":
				if status.AvgFillPrice <= 0 {
					return nil, fmt.Errorf("order %s filled without a fill price", handle)
				}
				return &models.FillResult{AvgPrice: status.AvgFillPrice}, nil
			case "cancelled", "canceled", "rejected", "expired":
				return nil, fmt.Errorf("order %s: status %s: %w", handle, status.Status, ErrOrderRejected)
			}
		}
	}
}

// CancelOrder cancels an open order by handle.
func (g *GatewayClient) CancelOrder(ctx context.Context, handle OrderHandle) error {
	if err := g.requireSession(); err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1/api/iserver/account/%s/order/%s", g.baseURL, g.accountID, handle)
	if err := g.makeRequestCtx(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("cancelling order %s: %w", handle, err)
	}
	return nil
}

// ListOpenOrders returns every live order on the account.
func (g *GatewayClient) ListOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	if err := g.requireSession(); err != nil {
		return nil, err
	}

	var resp openOrdersResponse
	endpoint := fmt.Sprintf("%s/v1/api/iserver/account/%s/orders", g.baseURL, g.accountID)
	if err := g.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing open orders: %w", err)
	}

	orders := make([]OpenOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		switch strings.ToLower(o.Status) {
		case "filled", "cancelled", "canceled", "rejected", "expired":
			continue
		}
		orders = append(orders, OpenOrder{
			Handle:   OrderHandle(o.OrderID),
			Symbol:   o.Symbol,
			Side:     models.OrderSide(o.Side),
			Quantity: o.Quantity,
			Status:   o.Status,
		})
	}
	return orders, nil
}

// ListOpenPositions returns the account's nonzero option positions.
func (g *GatewayClient) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	if err := g.requireSession(); err != nil {
		return nil, err
	}

	var resp positionsResponse
	endpoint := fmt.Sprintf("%s/v1/api/portfolio/%s/positions", g.baseURL, g.accountID)
	if err := g.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}

	positions := make([]models.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		if p.Quantity == 0 {
			continue
		}
		contract, err := models.ParseOCCSymbol(p.Symbol)
		if err != nil {
			// Non-option holdings (cash sweep, equities) are outside this
			// bot's remit; skip rather than fail cleanup.
			log.Printf("gateway: skipping unparseable position symbol %q: %v", p.Symbol, err)
			continue
		}
		positions = append(positions, models.Position{Contract: contract, Quantity: p.Quantity})
	}
	return positions, nil
}

func (g *GatewayClient) getOrderStatus(ctx context.Context, handle OrderHandle) (*orderStatusResponse, error) {
	var resp orderStatusResponse
	endpoint := fmt.Sprintf("%s/v1/api/iserver/account/order/status/%s", g.baseURL, handle)
	if err := g.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("order status payload missing for %s", handle)
	}
	return &resp, nil
}

func (g *GatewayClient) requireSession() error {
	if !g.connected {
		return ErrNotConnected
	}
	return nil
}

// makeRequestCtx performs one HTTP round trip with context support. body is
// JSON-encoded when non-nil; response is decoded when non-nil.
func (g *GatewayClient) makeRequestCtx(ctx context.Context, method, endpoint string,
	body interface{}, response interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "stamford-scalper/1.0 (+gateway)")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusNoContent:
		return nil
	default:
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(raw))}
	}

	if response == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

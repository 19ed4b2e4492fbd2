// Package paper provides a simulated exchange gateway for paper trading and
// tests.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// Config holds paper gateway configuration.
type Config struct {
	// FillDelay is how long a market order rests before it fills.
	FillDelay time.Duration
	// SlippageTicks is applied to market fills relative to mark price.
	SlippageTicks int
}

// DefaultConfig returns default paper gateway config.
func DefaultConfig() Config {
	return Config{
		FillDelay:     10 * time.Millisecond,
		SlippageTicks: 1,
	}
}

// Gateway implements gateway.Gateway against in-memory state. Market orders
// fill automatically at mark price after FillDelay; limit and stop orders rest
// until a test fills them via FillOrder or the caller cancels them.
type Gateway struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	orders map[string]*types.Order
	prices map[string]decimal.Decimal

	// Injected failures, popped one per call.
	submitFailures []error
	statusFailures []error
	cancelFailures []error

	nextOrderID atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a new paper gateway.
func New(cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		orders: make(map[string]*types.Order),
		prices: make(map[string]decimal.Decimal),
		done:   make(chan struct{}),
	}
	g.nextOrderID.Store(1)
	return g
}

// SubmitOrder accepts an order and schedules market fills.
func (g *Gateway) SubmitOrder(ctx context.Context, order types.Order) (types.Order, error) {
	if err := ctx.Err(); err != nil {
		return types.Order{}, gateway.NewError(gateway.ErrCodeNetwork, "context done", err)
	}

	g.mu.Lock()
	if len(g.submitFailures) > 0 {
		err := g.submitFailures[0]
		g.submitFailures = g.submitFailures[1:]
		g.mu.Unlock()
		return types.Order{}, err
	}

	if _, ok := types.GetInstrumentSpec(order.Symbol); !ok {
		g.mu.Unlock()
		return types.Order{}, gateway.NewError(gateway.ErrCodeRejected,
			fmt.Sprintf("unknown symbol %s", order.Symbol), nil)
	}

	now := time.Now()
	accepted := order
	accepted.OrderID = fmt.Sprintf("PAPER-%d", g.nextOrderID.Add(1))
	accepted.Status = types.OrderStatusNew
	accepted.FilledQuantity = decimal.Zero
	accepted.AvgFillPrice = decimal.Zero
	accepted.CreatedAt = now
	accepted.UpdatedAt = now

	stored := accepted
	g.orders[accepted.OrderID] = &stored
	g.mu.Unlock()

	g.logger.Debug("paper order accepted",
		"order_id", accepted.OrderID,
		"symbol", accepted.Symbol,
		"side", accepted.Side,
		"kind", accepted.Kind,
		"quantity", accepted.Quantity,
	)

	if order.Kind == types.OrderKindMarket {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.fillMarketOrder(accepted.OrderID)
		}()
	}

	return accepted, nil
}

// fillMarketOrder fills a market order at mark price plus slippage.
func (g *Gateway) fillMarketOrder(orderID string) {
	select {
	case <-g.done:
		return
	case <-time.After(g.cfg.FillDelay):
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok || order.IsFinal() {
		return
	}

	price, ok := g.prices[order.Symbol]
	if !ok {
		// No market yet; leave the order resting.
		return
	}

	spec, _ := types.GetInstrumentSpec(order.Symbol)
	slippage := spec.TickSize.Mul(decimal.NewFromInt(int64(g.cfg.SlippageTicks)))
	if order.Side == types.SideBuy {
		price = price.Add(slippage)
	} else {
		price = price.Sub(slippage)
	}

	order.Status = types.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = price
	order.UpdatedAt = time.Now()
}

// CancelOrder cancels a resting order. Terminal or unknown orders report
// ErrCodeNotFound, matching venue behavior for already-resolved orders.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := ctx.Err(); err != nil {
		return gateway.NewError(gateway.ErrCodeNetwork, "context done", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.cancelFailures) > 0 {
		err := g.cancelFailures[0]
		g.cancelFailures = g.cancelFailures[1:]
		return err
	}

	order, ok := g.orders[orderID]
	if !ok || order.IsFinal() {
		return gateway.NewError(gateway.ErrCodeNotFound,
			fmt.Sprintf("order %s not open", orderID), nil)
	}

	order.Status = types.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	return nil
}

// OrderStatus returns the current order snapshot.
func (g *Gateway) OrderStatus(ctx context.Context, symbol, orderID string) (types.Order, error) {
	if err := ctx.Err(); err != nil {
		return types.Order{}, gateway.NewError(gateway.ErrCodeNetwork, "context done", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.statusFailures) > 0 {
		err := g.statusFailures[0]
		g.statusFailures = g.statusFailures[1:]
		return types.Order{}, err
	}

	order, ok := g.orders[orderID]
	if !ok {
		return types.Order{}, gateway.NewError(gateway.ErrCodeNotFound,
			fmt.Sprintf("order %s unknown", orderID), nil)
	}
	return *order, nil
}

// MarkPrice returns the simulated mark price for a symbol.
func (g *Gateway) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, gateway.NewError(gateway.ErrCodeNetwork, "context done", err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	price, ok := g.prices[symbol]
	if !ok {
		return decimal.Zero, gateway.NewError(gateway.ErrCodeNetwork,
			fmt.Sprintf("no mark price for %s", symbol), nil)
	}
	return price, nil
}

// SetMarkPrice sets the simulated mark price for a symbol.
func (g *Gateway) SetMarkPrice(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// FillOrder fully fills a resting order at the given price. Used by tests to
// simulate the venue matching a limit or triggering a stop.
func (g *Gateway) FillOrder(orderID string, price decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok || order.IsFinal() {
		return false
	}

	order.Status = types.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = price
	order.UpdatedAt = time.Now()
	return true
}

// RejectOrder moves a resting order to REJECTED. Used by tests.
func (g *Gateway) RejectOrder(orderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok || order.IsFinal() {
		return false
	}

	order.Status = types.OrderStatusRejected
	order.UpdatedAt = time.Now()
	return true
}

// FailNextSubmit queues an error returned by the next SubmitOrder call.
func (g *Gateway) FailNextSubmit(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitFailures = append(g.submitFailures, err)
}

// FailNextCancel queues an error returned by the next CancelOrder call.
func (g *Gateway) FailNextCancel(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelFailures = append(g.cancelFailures, err)
}

// FailNextStatus queues an error returned by the next OrderStatus call.
func (g *Gateway) FailNextStatus(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusFailures = append(g.statusFailures, err)
}

// OpenOrders returns snapshots of all non-terminal orders.
func (g *Gateway) OpenOrders() []types.Order {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var open []types.Order
	for _, o := range g.orders {
		if !o.IsFinal() {
			open = append(open, *o)
		}
	}
	return open
}

// Order returns the snapshot of any order, open or terminal.
func (g *Gateway) Order(orderID string) (types.Order, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	o, ok := g.orders[orderID]
	if !ok {
		return types.Order{}, false
	}
	return *o, true
}

// Close stops pending fill timers.
func (g *Gateway) Close() {
	close(g.done)
	g.wg.Wait()
}

// Ensure Gateway implements gateway.Gateway
var _ gateway.Gateway = (*Gateway)(nil)

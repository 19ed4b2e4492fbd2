package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(Config{FillDelay: time.Millisecond, SlippageTicks: 1}, nil)
	t.Cleanup(g.Close)
	g.SetMarkPrice("BTCUSDT", decimal.RequireFromString("45000"))
	return g
}

func marketOrder(qty string) types.Order {
	return types.Order{
		ClientID: "test-1",
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Kind:     types.OrderKindMarket,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestSubmitMarketOrder_Fills(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	accepted, err := g.SubmitOrder(ctx, marketOrder("0.01"))
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}
	if accepted.OrderID == "" {
		t.Fatal("expected venue order ID")
	}
	if accepted.Status != types.OrderStatusNew {
		t.Errorf("Status = %v, want NEW", accepted.Status)
	}

	// Wait for the simulated fill.
	deadline := time.Now().Add(time.Second)
	for {
		o, err := g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID)
		if err != nil {
			t.Fatalf("OrderStatus() error: %v", err)
		}
		if o.Status == types.OrderStatusFilled {
			// BUY slips one tick above mark.
			want := decimal.RequireFromString("45000.10")
			if !o.AvgFillPrice.Equal(want) {
				t.Errorf("AvgFillPrice = %s, want %s", o.AvgFillPrice, want)
			}
			if !o.FilledQuantity.Equal(o.Quantity) {
				t.Errorf("FilledQuantity = %s, want %s", o.FilledQuantity, o.Quantity)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("market order never filled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitOrder_UnknownSymbol(t *testing.T) {
	g := newTestGateway(t)

	order := marketOrder("0.01")
	order.Symbol = "DOGEUSDT"
	_, err := g.SubmitOrder(context.Background(), order)
	if gateway.CodeOf(err) != gateway.ErrCodeRejected {
		t.Errorf("error code = %v, want REJECTED", gateway.CodeOf(err))
	}
}

func TestLimitOrder_RestsUntilFilled(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	order := marketOrder("0.01")
	order.Kind = types.OrderKindLimit
	order.Price = decimal.RequireFromString("44000")

	accepted, err := g.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	o, err := g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID)
	if err != nil {
		t.Fatalf("OrderStatus() error: %v", err)
	}
	if o.Status != types.OrderStatusNew {
		t.Errorf("resting limit Status = %v, want NEW", o.Status)
	}

	if !g.FillOrder(accepted.OrderID, order.Price) {
		t.Fatal("FillOrder() = false, want true")
	}
	o, _ = g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID)
	if o.Status != types.OrderStatusFilled {
		t.Errorf("Status = %v, want FILLED", o.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	order := marketOrder("0.01")
	order.Kind = types.OrderKindLimit
	order.Price = decimal.RequireFromString("44000")
	accepted, err := g.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}

	if err := g.CancelOrder(ctx, "BTCUSDT", accepted.OrderID); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}

	o, _ := g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID)
	if o.Status != types.OrderStatusCancelled {
		t.Errorf("Status = %v, want CANCELLED", o.Status)
	}

	// Cancelling a terminal order reports NOT_FOUND, like the venue.
	err = g.CancelOrder(ctx, "BTCUSDT", accepted.OrderID)
	if !gateway.IsNotFound(err) {
		t.Errorf("second cancel error = %v, want NOT_FOUND", err)
	}

	if err := g.CancelOrder(ctx, "BTCUSDT", "PAPER-999"); !gateway.IsNotFound(err) {
		t.Errorf("unknown cancel error = %v, want NOT_FOUND", err)
	}
}

func TestFailureInjection(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	injected := gateway.NewError(gateway.ErrCodeNetwork, "injected", nil)

	g.FailNextSubmit(injected)
	if _, err := g.SubmitOrder(ctx, marketOrder("0.01")); gateway.CodeOf(err) != gateway.ErrCodeNetwork {
		t.Errorf("submit error = %v, want injected network error", err)
	}
	// The failure is consumed; the next submit succeeds.
	accepted, err := g.SubmitOrder(ctx, marketOrder("0.01"))
	if err != nil {
		t.Fatalf("second SubmitOrder() error: %v", err)
	}

	g.FailNextStatus(injected)
	if _, err := g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID); err == nil {
		t.Error("expected injected status error")
	}
	if _, err := g.OrderStatus(ctx, "BTCUSDT", accepted.OrderID); err != nil {
		t.Errorf("second OrderStatus() error: %v", err)
	}

	g.FailNextCancel(injected)
	if err := g.CancelOrder(ctx, "BTCUSDT", accepted.OrderID); err == nil {
		t.Error("expected injected cancel error")
	}
}

func TestMarkPrice(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	price, err := g.MarkPrice(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("MarkPrice() error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("45000")) {
		t.Errorf("MarkPrice = %s, want 45000", price)
	}

	if _, err := g.MarkPrice(ctx, "ETHUSDT"); err == nil {
		t.Error("expected error for symbol without a mark price")
	}
}

func TestOpenOrders(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	order := marketOrder("0.01")
	order.Kind = types.OrderKindLimit
	order.Price = decimal.RequireFromString("44000")
	accepted, err := g.SubmitOrder(ctx, order)
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}

	if open := g.OpenOrders(); len(open) != 1 {
		t.Fatalf("OpenOrders() = %d orders, want 1", len(open))
	}

	g.FillOrder(accepted.OrderID, order.Price)
	if open := g.OpenOrders(); len(open) != 0 {
		t.Errorf("OpenOrders() after fill = %d orders, want 0", len(open))
	}
}

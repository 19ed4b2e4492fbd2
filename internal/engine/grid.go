package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// GridRequest describes a price ladder: Levels evenly spaced limit orders
// between PriceLow and PriceHigh, replenished on fill. A grid plan runs until
// explicitly cancelled.
type GridRequest struct {
	Symbol           string
	PriceLow         decimal.Decimal
	PriceHigh        decimal.Decimal
	Levels           int
	QuantityPerLevel decimal.Decimal
}

// Validate checks the request shape, including venue minimum-notional, before
// any order is placed. A ladder is never partially validated into existence.
func (r GridRequest) Validate() error {
	spec, ok := types.GetInstrumentSpec(r.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrInvalidSymbol, r.Symbol)
	}
	if r.PriceLow.LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidPrice
	}
	if r.PriceLow.GreaterThanOrEqual(r.PriceHigh) {
		return types.ErrPriceRangeInvalid
	}
	if r.Levels < 2 {
		return types.ErrTooFewLevels
	}
	if r.QuantityPerLevel.LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidQuantity
	}
	if r.QuantityPerLevel.LessThan(spec.MinQuantity) {
		return fmt.Errorf("%w: below minimum quantity %s", types.ErrInvalidQuantity, spec.MinQuantity)
	}
	// The lowest level carries the smallest notional; if it clears the venue
	// minimum every level does.
	if r.QuantityPerLevel.Mul(r.PriceLow).LessThan(spec.MinNotional) {
		return fmt.Errorf("%w: %s * %s < %s",
			types.ErrBelowMinNotional, r.QuantityPerLevel, r.PriceLow, spec.MinNotional)
	}
	return nil
}

// LadderPrices returns the evenly spaced level prices:
// price[i] = low + i*(high-low)/(levels-1). The bounds are exact.
func (r GridRequest) LadderPrices() []decimal.Decimal {
	prices := make([]decimal.Decimal, r.Levels)
	diff := r.PriceHigh.Sub(r.PriceLow)
	div := decimal.NewFromInt(int64(r.Levels - 1))
	for i := 0; i < r.Levels; i++ {
		prices[i] = r.PriceLow.Add(diff.Mul(decimal.NewFromInt(int64(i))).Div(div))
	}
	prices[0] = r.PriceLow
	prices[r.Levels-1] = r.PriceHigh
	return prices
}

// StartGrid validates the request and launches a grid plan. The plan rests
// one limit order per level and replenishes filled levels until Cancel.
func (e *Engine) StartGrid(ctx context.Context, req GridRequest) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("grid request: %w", err)
	}

	planCtx, cancel := context.WithCancel(ctx)
	p := newPlan(PlanTypeGrid, req.Symbol, cancel)

	e.logger.Info("starting grid plan",
		"plan_id", p.id,
		"symbol", req.Symbol,
		"price_low", req.PriceLow,
		"price_high", req.PriceHigh,
		"levels", req.Levels,
		"quantity_per_level", req.QuantityPerLevel,
	)

	e.register(p, func() {
		defer cancel()
		e.runGrid(planCtx, p, req)
	})
	return p, nil
}

func (e *Engine) runGrid(ctx context.Context, p *Plan, req GridRequest) {
	spec, _ := types.GetInstrumentSpec(req.Symbol)

	mark, err := e.markPriceWithRetry(ctx, req.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			e.finishPlan(p, PlanStatusCancelled, nil)
			return
		}
		e.finishPlan(p, PlanStatusFailed, fmt.Errorf("read mark price: %w", err))
		return
	}

	// Assign sides against the mark: buys strictly below, sells strictly
	// above. A level within one tick of the mark is ambiguous and skipped to
	// avoid self-crossing.
	ladder := make([]GridLevel, req.Levels)
	for i, price := range req.LadderPrices() {
		lvl := GridLevel{Index: i, Price: price}
		switch {
		case price.Sub(mark).Abs().LessThanOrEqual(spec.TickSize):
			lvl.Skipped = true
		case price.LessThan(mark):
			lvl.Side = types.SideBuy
		default:
			lvl.Side = types.SideSell
		}
		ladder[i] = lvl
	}
	p.setLadder(ladder)

	active := 0
	for i := range ladder {
		if ladder[i].Skipped {
			e.report(p, EventLevelSkipped,
				fmt.Sprintf("level %d at %s within one tick of mark %s", i, ladder[i].Price, mark), nil)
			continue
		}

		order := types.Order{
			ClientID: newClientID("grid"),
			Symbol:   req.Symbol,
			Side:     ladder[i].Side,
			Kind:     types.OrderKindLimit,
			Quantity: req.QuantityPerLevel,
			Price:    ladder[i].Price,
		}
		accepted, err := e.submitOrder(ctx, p, order)
		if err != nil {
			if ctx.Err() != nil {
				e.teardownGrid(p, req.Symbol)
				e.finishPlan(p, PlanStatusCancelled, nil)
				return
			}
			e.report(p, EventLevelFailed,
				fmt.Sprintf("level %d at %s: %v", i, ladder[i].Price, err), nil)
			continue
		}

		ladder[i].ActiveOrderID = accepted.OrderID
		p.updateLevel(i, func(l *GridLevel) { l.ActiveOrderID = accepted.OrderID })
		active++
	}

	if active == 0 {
		e.finishPlan(p, PlanStatusFailed, fmt.Errorf("no grid level could be placed"))
		return
	}

	// One worker per level: fills at one level must never delay
	// replenishment at another.
	var wg sync.WaitGroup
	for i := range ladder {
		if ladder[i].ActiveOrderID == "" {
			continue
		}
		wg.Add(1)
		go func(lvl GridLevel) {
			defer wg.Done()
			e.runGridLevel(ctx, p, req, lvl)
		}(ladder[i])
	}
	wg.Wait()

	if ctx.Err() != nil {
		e.finishPlan(p, PlanStatusCancelled, nil)
		return
	}
	e.finishPlan(p, PlanStatusFailed, fmt.Errorf("all grid levels stopped"))
}

// runGridLevel owns one ladder rung: it watches the resting order, and on a
// complete fill flips the side and re-places a limit at the same price,
// realizing the spread on the next round trip.
func (e *Engine) runGridLevel(ctx context.Context, p *Plan, req GridRequest, lvl GridLevel) {
	orderID := lvl.ActiveOrderID
	side := lvl.Side

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			e.teardownGridLevel(p, req.Symbol, lvl.Index, orderID)
			return
		case <-ticker.C:
		}

		snap, err := e.gw.OrderStatus(ctx, req.Symbol, orderID)
		if err != nil {
			if ctx.Err() != nil {
				e.teardownGridLevel(p, req.Symbol, lvl.Index, orderID)
				return
			}
			if !gateway.IsRetryable(err) {
				e.report(p, EventLevelFailed,
					fmt.Sprintf("level %d status: %v", lvl.Index, err), nil)
				return
			}
			failures++
			if failures >= e.cfg.RetryBudget {
				e.report(p, EventLevelFailed,
					fmt.Sprintf("level %d poll budget exhausted: %v", lvl.Index, err), nil)
				return
			}
			continue
		}
		failures = 0
		p.trackOrder(snap)

		if !snap.IsFinal() {
			continue
		}

		if snap.Status != types.OrderStatusFilled {
			// Resolved by the venue or an operator without filling; the rung
			// has nothing left to replenish against.
			e.report(p, EventLevelFailed,
				fmt.Sprintf("level %d order %s terminal as %s", lvl.Index, orderID, snap.Status), &snap)
			p.updateLevel(lvl.Index, func(l *GridLevel) { l.ActiveOrderID = "" })
			return
		}

		e.recorder.RecordOrder(snap.Symbol, snap.Side.String(), "filled")
		e.report(p, EventOrderFilled, fmt.Sprintf("level %d", lvl.Index), &snap)

		// Flip the side, same price.
		side = side.Opposite()
		replacement := types.Order{
			ClientID: newClientID("grid"),
			Symbol:   req.Symbol,
			Side:     side,
			Kind:     types.OrderKindLimit,
			Quantity: req.QuantityPerLevel,
			Price:    lvl.Price,
		}
		accepted, err := e.submitOrder(ctx, p, replacement)
		if err != nil {
			if ctx.Err() != nil {
				p.updateLevel(lvl.Index, func(l *GridLevel) {
					l.ActiveOrderID = ""
					l.Fills++
				})
				return
			}
			e.report(p, EventLevelFailed,
				fmt.Sprintf("level %d replenish: %v", lvl.Index, err), nil)
			p.updateLevel(lvl.Index, func(l *GridLevel) { l.ActiveOrderID = "" })
			return
		}

		orderID = accepted.OrderID
		p.updateLevel(lvl.Index, func(l *GridLevel) {
			l.ActiveOrderID = accepted.OrderID
			l.Side = side
			l.Fills++
		})
		e.report(p, EventLevelReplaced,
			fmt.Sprintf("level %d now %s at %s", lvl.Index, side, lvl.Price), &accepted)
	}
}

// teardownGridLevel cancels a level's resting order during plan cancellation.
// A fill racing the cancel is accepted and logged, not treated as an error.
func (e *Engine) teardownGridLevel(p *Plan, symbol string, index int, orderID string) {
	if orderID == "" {
		return
	}
	cctx, cleanup := cleanupContext()
	defer cleanup()
	e.cancelChildOrder(cctx, p, symbol, orderID)
	p.updateLevel(index, func(l *GridLevel) { l.ActiveOrderID = "" })
}

// teardownGrid cancels every resting order the ladder still holds.
func (e *Engine) teardownGrid(p *Plan, symbol string) {
	for _, lvl := range p.Ladder() {
		e.teardownGridLevel(p, symbol, lvl.Index, lvl.ActiveOrderID)
	}
}

// markPriceWithRetry reads the mark price, retrying transient failures up to
// the retry budget.
func (e *Engine) markPriceWithRetry(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(gateway.Backoff(attempt - 1)):
			}
		}
		price, err := e.gw.MarkPrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !gateway.IsRetryable(err) {
			return decimal.Zero, err
		}
	}
	return decimal.Zero, fmt.Errorf("mark price retries exhausted: %w", lastErr)
}

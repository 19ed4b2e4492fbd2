package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// OCORequest describes a one-cancels-other pair: a take-profit limit order
// and a stop order for the same quantity, with opposite trigger directions.
// The venue has no native OCO support; the monitor enforces mutual
// exclusivity itself.
type OCORequest struct {
	Symbol           string
	Side             types.Side
	Quantity         decimal.Decimal
	TakeProfitPrice  decimal.Decimal
	StopTriggerPrice decimal.Decimal
	StopLimitPrice   decimal.Decimal
}

// Validate checks the request shape before any gateway call.
func (r OCORequest) Validate() error {
	if r.Symbol == "" {
		return types.ErrInvalidSymbol
	}
	if r.Quantity.LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidQuantity
	}
	if r.TakeProfitPrice.LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidPrice
	}
	if err := types.ValidateStopLimit(r.Side, r.StopTriggerPrice, r.StopLimitPrice); err != nil {
		return err
	}
	// The take profit and the stop trigger sit on opposite sides of the
	// market: above/below for a SELL pair, below/above for a BUY pair.
	if r.Side == types.SideSell && r.TakeProfitPrice.LessThanOrEqual(r.StopTriggerPrice) {
		return types.ErrOCOPriceRelation
	}
	if r.Side == types.SideBuy && r.TakeProfitPrice.GreaterThanOrEqual(r.StopTriggerPrice) {
		return types.ErrOCOPriceRelation
	}
	return nil
}

type ocoLeg int

const (
	legLimit ocoLeg = iota
	legStop
)

func (l ocoLeg) String() string {
	if l == legLimit {
		return "limit"
	}
	return "stop"
}

type legUpdate struct {
	leg   ocoLeg
	order types.Order
	err   error
}

// sibling-cancel outcomes
type cancelOutcome int

const (
	siblingCancelled cancelOutcome = iota
	siblingFilled
	siblingUnknown
)

// StartOCO validates the request, places both legs, and launches the
// monitor. The plan is terminal once the pair resolves.
func (e *Engine) StartOCO(ctx context.Context, req OCORequest) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("oco request: %w", err)
	}

	planCtx, cancel := context.WithCancel(ctx)
	p := newPlan(PlanTypeOCO, req.Symbol, cancel)

	e.logger.Info("starting OCO plan",
		"plan_id", p.id,
		"symbol", req.Symbol,
		"side", req.Side,
		"quantity", req.Quantity,
		"take_profit", req.TakeProfitPrice,
		"stop_trigger", req.StopTriggerPrice,
		"stop_limit", req.StopLimitPrice,
	)

	e.register(p, func() {
		defer cancel()
		e.runOCO(planCtx, p, req)
	})
	return p, nil
}

func (e *Engine) runOCO(ctx context.Context, p *Plan, req OCORequest) {
	limitOrder := types.Order{
		ClientID: newClientID("oco-tp"),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Kind:     types.OrderKindLimit,
		Quantity: req.Quantity,
		Price:    req.TakeProfitPrice,
	}
	stopOrder := types.Order{
		ClientID:     newClientID("oco-stop"),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Kind:         types.OrderKindStop,
		Quantity:     req.Quantity,
		Price:        req.StopLimitPrice,
		TriggerPrice: req.StopTriggerPrice,
	}

	acceptedLimit, err := e.submitOrder(ctx, p, limitOrder)
	if err != nil {
		if ctx.Err() != nil {
			e.finishPlan(p, PlanStatusCancelled, nil)
			return
		}
		e.finishPlan(p, PlanStatusFailed, fmt.Errorf("limit leg: %w", err))
		return
	}

	acceptedStop, err := e.submitOrder(ctx, p, stopOrder)
	if err != nil {
		// Never leave a single unpaired order resting: unwind the first leg
		// before failing the pair.
		cctx, cleanup := cleanupContext()
		e.cancelChildOrder(cctx, p, req.Symbol, acceptedLimit.OrderID)
		cleanup()
		if ctx.Err() != nil {
			e.finishPlan(p, PlanStatusCancelled, nil)
			return
		}
		e.finishPlan(p, PlanStatusFailed, fmt.Errorf("stop leg: %w", err))
		return
	}

	legCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	updates := make(chan legUpdate, 4)
	go e.pollOCOLeg(legCtx, p, req.Symbol, legLimit, acceptedLimit.OrderID, updates)
	go e.pollOCOLeg(legCtx, p, req.Symbol, legStop, acceptedStop.OrderID, updates)

	orderIDs := map[ocoLeg]string{legLimit: acceptedLimit.OrderID, legStop: acceptedStop.OrderID}

	for {
		select {
		case <-ctx.Done():
			stopPolling()
			res := e.teardownOCO(p, req.Symbol, orderIDs)
			p.setResolution(res)
			e.finishPlan(p, PlanStatusCancelled, nil)
			return

		case u := <-updates:
			if u.err != nil {
				// A leg's poll budget is exhausted; state is ambiguous, so
				// the monitor does not force-cancel. Both legs' last known
				// state stays in the report for manual remediation.
				stopPolling()
				e.finishPlan(p, PlanStatusFailed,
					fmt.Errorf("%s leg monitoring: %w", u.leg, u.err))
				return
			}

			if u.order.Status != types.OrderStatusFilled {
				// Resolved without a fill (operator cancel, venue expiry);
				// the pair is broken, so unwind the sibling and fail.
				stopPolling()
				cctx, cleanup := cleanupContext()
				e.cancelChildOrder(cctx, p, req.Symbol, orderIDs[u.leg.other()])
				cleanup()
				e.finishPlan(p, PlanStatusFailed,
					fmt.Errorf("%s leg terminal as %s without fill", u.leg, u.order.Status))
				return
			}

			// First observed fill wins; the pair is terminal on this side
			// before the sibling cancel is acknowledged.
			res := OCOResolutionLimitFilled
			if u.leg == legStop {
				res = OCOResolutionStopFilled
			}
			p.setResolution(res)
			e.recorder.RecordOrder(u.order.Symbol, u.order.Side.String(), "filled")
			e.report(p, EventOrderFilled, fmt.Sprintf("%s leg filled", u.leg), &u.order)
			stopPolling()

			switch e.cancelOCOSibling(p, req.Symbol, orderIDs[u.leg.other()]) {
			case siblingFilled:
				// Both legs executed before the cancel could land: a genuine
				// race at the venue, disclosed rather than errored.
				p.setResolution(OCOResolutionRace)
				e.report(p, EventRaceDetected, "both legs filled", nil)
				e.finishPlan(p, PlanStatusCompleted, nil)
			case siblingUnknown:
				e.finishPlan(p, PlanStatusFailed,
					fmt.Errorf("sibling cancel unresolved; manual remediation required"))
			default:
				e.finishPlan(p, PlanStatusCompleted, nil)
			}
			return
		}
	}
}

func (l ocoLeg) other() ocoLeg {
	if l == legLimit {
		return legStop
	}
	return legLimit
}

// pollOCOLeg watches one leg until it is terminal, tolerating transient poll
// errors up to the retry budget of consecutive failures.
func (e *Engine) pollOCOLeg(ctx context.Context, p *Plan, symbol string, leg ocoLeg, orderID string, updates chan<- legUpdate) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := e.gw.OrderStatus(ctx, symbol, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if !gateway.IsRetryable(err) || failures >= e.cfg.RetryBudget {
				select {
				case updates <- legUpdate{leg: leg, err: err}:
				case <-ctx.Done():
				}
				return
			}
			continue
		}
		failures = 0
		p.trackOrder(snap)

		if snap.IsFinal() {
			select {
			case updates <- legUpdate{leg: leg, order: snap}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// cancelOCOSibling cancels the surviving leg after a fill, retrying transient
// failures. Observing the sibling already filled is the RACE outcome.
func (e *Engine) cancelOCOSibling(p *Plan, symbol, orderID string) cancelOutcome {
	cctx, cleanup := cleanupContext()
	defer cleanup()

	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-cctx.Done():
				e.logger.Warn("sibling cancel timed out", "plan_id", p.id, "order_id", orderID, "err", lastErr)
				return siblingUnknown
			case <-time.After(gateway.Backoff(attempt - 1)):
			}
		}

		err := e.gw.CancelOrder(cctx, symbol, orderID)
		if err != nil && !gateway.IsNotFound(err) {
			lastErr = err
			if !gateway.IsRetryable(err) {
				break
			}
			continue
		}

		snap, serr := e.gw.OrderStatus(cctx, symbol, orderID)
		if serr != nil {
			// Cancel landed; the snapshot is a nicety, not a requirement.
			e.report(p, EventOrderCancelled, "sibling", nil)
			return siblingCancelled
		}
		if snap.Status == types.OrderStatusFilled {
			e.report(p, EventFillRacedCancel, "sibling", &snap)
			return siblingFilled
		}
		e.report(p, EventOrderCancelled, "sibling", &snap)
		return siblingCancelled
	}

	e.logger.Warn("sibling cancel failed", "plan_id", p.id, "order_id", orderID, "err", lastErr)
	return siblingUnknown
}

// teardownOCO handles caller-initiated cancellation while both legs rest. A
// leg observed filled during teardown is reported and reflected in the
// resolution.
func (e *Engine) teardownOCO(p *Plan, symbol string, orderIDs map[ocoLeg]string) OCOResolution {
	filled := make(map[ocoLeg]bool)
	for leg, orderID := range orderIDs {
		cctx, cleanup := cleanupContext()
		snap, ok := e.cancelChildOrder(cctx, p, symbol, orderID)
		cleanup()
		if ok && snap.Status == types.OrderStatusFilled {
			filled[leg] = true
		}
	}

	switch {
	case filled[legLimit] && filled[legStop]:
		return OCOResolutionRace
	case filled[legLimit]:
		return OCOResolutionLimitFilled
	case filled[legStop]:
		return OCOResolutionStopFilled
	default:
		return OCOResolutionCancelled
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// TWAPRequest describes a time-weighted execution: TotalQuantity is split
// into chunks of ChunkSize submitted at a fixed cadence over Duration.
type TWAPRequest struct {
	Symbol        string
	Side          types.Side
	TotalQuantity decimal.Decimal
	Duration      time.Duration
	ChunkSize     decimal.Decimal
}

// Validate checks the request shape before any gateway call.
func (r TWAPRequest) Validate() error {
	if r.Symbol == "" {
		return types.ErrInvalidSymbol
	}
	if r.TotalQuantity.LessThanOrEqual(decimal.Zero) || r.ChunkSize.LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidQuantity
	}
	if r.Duration <= 0 {
		return types.ErrInvalidDuration
	}
	if r.ChunkSize.GreaterThan(r.TotalQuantity) {
		return types.ErrChunkTooLarge
	}
	if r.lastChunk().LessThanOrEqual(decimal.Zero) {
		return types.ErrInvalidQuantity
	}
	return nil
}

// numChunks returns ceil(total / chunk).
func (r TWAPRequest) numChunks() int {
	return int(r.TotalQuantity.Div(r.ChunkSize).Ceil().IntPart())
}

// lastChunk returns total - chunk*(numChunks-1); the final chunk may be
// smaller than ChunkSize but never zero or negative.
func (r TWAPRequest) lastChunk() decimal.Decimal {
	n := r.numChunks()
	return r.TotalQuantity.Sub(r.ChunkSize.Mul(decimal.NewFromInt(int64(n - 1))))
}

// interval returns Duration / numChunks.
func (r TWAPRequest) interval() time.Duration {
	return r.Duration / time.Duration(r.numChunks())
}

// StartTWAP validates the request and launches a TWAP plan. The plan runs to
// completion or cancellation; progress arrives on the plan's report stream.
func (e *Engine) StartTWAP(ctx context.Context, req TWAPRequest) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("twap request: %w", err)
	}

	planCtx, cancel := context.WithCancel(ctx)
	p := newPlan(PlanTypeTWAP, req.Symbol, cancel)

	e.logger.Info("starting TWAP plan",
		"plan_id", p.id,
		"symbol", req.Symbol,
		"side", req.Side,
		"total_quantity", req.TotalQuantity,
		"chunk_size", req.ChunkSize,
		"num_chunks", req.numChunks(),
		"interval", req.interval(),
	)

	e.register(p, func() {
		defer cancel()
		e.runTWAP(planCtx, p, req)
	})
	return p, nil
}

func (e *Engine) runTWAP(ctx context.Context, p *Plan, req TWAPRequest) {
	numChunks := req.numChunks()
	interval := req.interval()
	start := time.Now()

	failed := 0
	for k := 0; k < numChunks; k++ {
		// Schedule on elapsed time since plan start, not cumulative sleep,
		// so drift does not accumulate across chunks.
		target := start.Add(time.Duration(k) * interval)
		if wait := time.Until(target); wait > 0 {
			select {
			case <-ctx.Done():
				e.finishPlan(p, PlanStatusCancelled, nil)
				return
			case <-time.After(wait):
			}
		}

		qty := req.ChunkSize
		if k == numChunks-1 {
			qty = req.lastChunk()
		}
		e.report(p, EventChunkScheduled, fmt.Sprintf("chunk %d/%d qty %s", k+1, numChunks, qty), nil)

		ok, err := e.executeChunk(ctx, p, req, qty)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.finishPlan(p, PlanStatusCancelled, nil)
			return
		}
		if !ok {
			failed++
			e.report(p, EventChunkFailed, fmt.Sprintf("chunk %d/%d: %v", k+1, numChunks, err), nil)
			e.logger.Warn("TWAP chunk failed, continuing",
				"plan_id", p.id,
				"chunk", k+1,
				"err", err,
			)
		}
	}

	if failed > 0 {
		e.finishPlan(p, PlanStatusFailed,
			fmt.Errorf("%d of %d chunks failed", failed, numChunks))
		return
	}
	e.finishPlan(p, PlanStatusCompleted, nil)
}

// executeChunk submits one market chunk and waits for a terminal state. A
// chunk that times out still open is cancelled and, once confirmed terminal,
// retried once with its unfilled remainder. No resubmit happens while the
// first order's state is unresolved. A failed chunk does not abort the plan.
func (e *Engine) executeChunk(ctx context.Context, p *Plan, req TWAPRequest, qty decimal.Decimal) (bool, error) {
	remaining := qty
	for attempt := 0; attempt < 2; attempt++ {
		order := types.Order{
			ClientID: newClientID("twap"),
			Symbol:   req.Symbol,
			Side:     req.Side,
			Kind:     types.OrderKindMarket,
			Quantity: remaining,
		}

		accepted, err := e.submitOrder(ctx, p, order)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, err
		}

		snap, err := e.awaitTerminal(ctx, req.Symbol, accepted.OrderID, e.cfg.ChunkTimeout)
		switch {
		case err == nil:
			if snap.Status == types.OrderStatusFilled {
				e.recorder.RecordOrder(snap.Symbol, snap.Side.String(), "filled")
				e.report(p, EventOrderFilled, "", &snap)
				return true, nil
			}
			// Rejected or expired by the venue; never retried.
			return false, fmt.Errorf("chunk order %s terminal as %s", snap.OrderID, snap.Status)

		case errors.Is(err, errAwaitTimeout):
			var timedOut *types.Order
			if snap.ClientID != "" {
				timedOut = &snap
			}
			e.report(p, EventChunkTimeout, "", timedOut)

			final, ok := e.cancelChunkOrder(ctx, p, req.Symbol, accepted.OrderID)
			if !ok {
				// The order may still be live at the venue; resubmitting here
				// could execute the chunk twice. The chunk fails and the order
				// is left for operator reconciliation.
				return false, fmt.Errorf("chunk order %s unresolved after cancel", accepted.OrderID)
			}
			if final.Status == types.OrderStatusFilled {
				return true, nil
			}
			remaining = remaining.Sub(final.FilledQuantity)
			if remaining.LessThanOrEqual(decimal.Zero) {
				return true, nil
			}

		case ctx.Err() != nil:
			// Caller cancelled mid-chunk: cancel the outstanding order with a
			// fresh context and stop generating new chunks.
			cctx, cleanup := cleanupContext()
			e.cancelChildOrder(cctx, p, req.Symbol, accepted.OrderID)
			cleanup()
			return false, ctx.Err()

		default:
			cctx, cleanup := cleanupContext()
			e.cancelChildOrder(cctx, p, req.Symbol, accepted.OrderID)
			cleanup()
			return false, err
		}
	}
	return false, fmt.Errorf("chunk unfilled after cancel and retry")
}

// cancelChunkOrder cancels a timed-out chunk order and confirms its terminal
// state, retrying transient failures up to the retry budget. ok is false when
// the order's state at the venue is still unknown after the budget; callers
// must not resubmit in that case.
func (e *Engine) cancelChunkOrder(ctx context.Context, p *Plan, symbol, orderID string) (types.Order, bool) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				e.logger.Warn("chunk cancel interrupted", "plan_id", p.id, "order_id", orderID, "err", lastErr)
				return types.Order{}, false
			case <-time.After(gateway.Backoff(attempt - 1)):
			}
		}

		err := e.gw.CancelOrder(ctx, symbol, orderID)
		if err != nil && !gateway.IsNotFound(err) {
			lastErr = err
			if !gateway.IsRetryable(err) {
				break
			}
			continue
		}

		snap, serr := e.gw.OrderStatus(ctx, symbol, orderID)
		if serr != nil {
			lastErr = serr
			continue
		}
		if !snap.IsFinal() {
			lastErr = fmt.Errorf("order %s still %s after cancel", orderID, snap.Status)
			continue
		}
		if snap.Status == types.OrderStatusFilled {
			e.report(p, EventFillRacedCancel, "", &snap)
		} else {
			e.report(p, EventOrderCancelled, "", &snap)
		}
		return snap, true
	}

	e.logger.Warn("chunk cancel unresolved", "plan_id", p.id, "order_id", orderID, "err", lastErr)
	return types.Order{}, false
}

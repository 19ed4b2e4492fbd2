// Package engine implements the advanced-order orchestration layer: the TWAP
// scheduler, the grid ladder engine, and the OCO monitor, coordinated over an
// abstract exchange gateway.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/alerting"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/gateway"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/metrics"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// Config holds execution engine configuration. These are knobs, not
// constants: tests and operators tune them.
type Config struct {
	// PollInterval is how often child order status is polled.
	PollInterval time.Duration
	// ChunkTimeout is the max wait for a TWAP chunk to reach a terminal
	// state before it is cancelled and retried.
	ChunkTimeout time.Duration
	// RetryBudget is the consecutive transient-failure count before an
	// affected unit escalates to FAILED.
	RetryBudget int
}

// DefaultConfig returns default engine config.
func DefaultConfig() Config {
	return Config{
		PollInterval: 1 * time.Second,
		ChunkTimeout: 5 * time.Second,
		RetryBudget:  3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = d.RetryBudget
	}
	return c
}

// Journal persists execution reports and plan state transitions. A nil
// journal disables persistence; journal failures never fail a plan.
type Journal interface {
	AppendReport(ctx context.Context, r Report) error
	SavePlanStatus(ctx context.Context, planID string, planType PlanType, status PlanStatus) error
}

// Engine owns all running execution plans. Plans run concurrently; the
// gateway is the only shared collaborator and must be concurrency-safe.
type Engine struct {
	cfg      Config
	gw       gateway.Gateway
	journal  Journal
	alerter  alerting.Alerter
	recorder *metrics.Recorder
	logger   *slog.Logger

	mu    sync.RWMutex
	plans map[string]*Plan

	wg sync.WaitGroup
}

// New creates an execution engine. Journal, alerter and logger may be nil.
func New(cfg Config, gw gateway.Gateway, jr Journal, alerter alerting.Alerter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		gw:       gw,
		journal:  jr,
		alerter:  alerter,
		recorder: metrics.NewRecorder(),
		logger:   logger,
		plans:    make(map[string]*Plan),
	}
}

// Plan returns a plan by ID.
func (e *Engine) Plan(planID string) (*Plan, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.plans[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", planID, types.ErrPlanNotFound)
	}
	return p, nil
}

// Plans returns all known plans, running and terminal.
func (e *Engine) Plans() []*Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Plan, 0, len(e.plans))
	for _, p := range e.plans {
		out = append(out, p)
	}
	return out
}

// Cancel requests cancellation of a running plan: all resting child orders
// are cancelled best-effort and no new ones are generated. Cancelling a
// terminal plan returns ErrPlanAlreadyTerminal.
func (e *Engine) Cancel(planID string) error {
	p, err := e.Plan(planID)
	if err != nil {
		return err
	}
	if p.Status().IsFinal() {
		return fmt.Errorf("plan %s: %w", planID, types.ErrPlanAlreadyTerminal)
	}

	e.logger.Info("plan cancellation requested", "plan_id", planID, "type", p.Type())
	p.cancel()
	return nil
}

// Shutdown cancels all running plans and waits for them to wind down or for
// ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	for _, p := range e.plans {
		p.cancel()
	}
	e.mu.RUnlock()

	doneCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// register stores a plan and launches its run function.
func (e *Engine) register(p *Plan, run func()) {
	e.mu.Lock()
	e.plans[p.id] = p
	e.mu.Unlock()

	e.recorder.RecordPlanStarted(p.planType.String())
	e.report(p, EventPlanStarted, "", nil)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		run()
	}()
}

// report emits a plan report and forwards it to the journal.
func (e *Engine) report(p *Plan, event, detail string, order *types.Order) {
	r := p.emit(event, detail, order)
	if e.journal != nil {
		if err := e.journal.AppendReport(context.Background(), r); err != nil {
			e.logger.Warn("journal append failed", "plan_id", p.id, "event", event, "err", err)
		}
	}
}

// finishPlan moves a plan to a terminal state and records the outcome.
func (e *Engine) finishPlan(p *Plan, status PlanStatus, err error) {
	p.finish(status, err)
	e.recorder.RecordPlanFinished(p.planType.String(), status.String())

	if e.journal != nil {
		if jerr := e.journal.SavePlanStatus(context.Background(), p.id, p.planType, status); jerr != nil {
			e.logger.Warn("journal plan status failed", "plan_id", p.id, "err", jerr)
		}
	}

	e.logger.Info("plan finished",
		"plan_id", p.id,
		"type", p.planType,
		"status", status,
		"filled", p.FilledQuantity(),
		"err", err,
	)

	if e.alerter != nil {
		severity := alerting.SeverityInfo
		if status == PlanStatusFailed {
			severity = alerting.SeverityHigh
		}
		if aerr := e.alerter.Alert(context.Background(), severity,
			fmt.Sprintf("%s plan %s", p.planType, status),
			"plan_id", p.id,
			"symbol", p.symbol,
			"filled", p.FilledQuantity().String(),
		); aerr != nil {
			e.logger.Warn("alert failed", "plan_id", p.id, "err", aerr)
		}
	}
}

// submitOrder submits an order, retrying transient gateway failures with
// exponential backoff up to the retry budget. REJECTED and AUTH surface
// immediately.
func (e *Engine) submitOrder(ctx context.Context, p *Plan, order types.Order) (types.Order, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return types.Order{}, ctx.Err()
			case <-time.After(gateway.Backoff(attempt - 1)):
			}
		}

		accepted, err := e.gw.SubmitOrder(ctx, order)
		if err == nil {
			e.recorder.RecordOrder(order.Symbol, order.Side.String(), "submitted")
			e.report(p, EventOrderSubmitted, order.Kind.String(), &accepted)
			return accepted, nil
		}

		lastErr = err
		if !gateway.IsRetryable(err) {
			e.recorder.RecordOrder(order.Symbol, order.Side.String(), "rejected")
			return types.Order{}, err
		}

		e.logger.Warn("order submit failed, retrying",
			"plan_id", p.id,
			"client_id", order.ClientID,
			"attempt", attempt+1,
			"err", err,
		)
	}
	e.recorder.RecordOrder(order.Symbol, order.Side.String(), "failed")
	return types.Order{}, fmt.Errorf("submit retries exhausted: %w", lastErr)
}

// cancelChildOrder cancels a child order, treating NOT_FOUND as success and
// re-querying the final state. The returned snapshot is valid when ok is
// true; a fill observed during cancellation is reported, not errored.
func (e *Engine) cancelChildOrder(ctx context.Context, p *Plan, symbol, orderID string) (types.Order, bool) {
	err := e.gw.CancelOrder(ctx, symbol, orderID)
	if err != nil && !gateway.IsNotFound(err) {
		e.logger.Warn("cancel failed", "plan_id", p.id, "order_id", orderID, "err", err)
		return types.Order{}, false
	}

	snap, serr := e.gw.OrderStatus(ctx, symbol, orderID)
	if serr != nil {
		// Cancel landed (or the order was already gone); without a snapshot
		// the caller keeps its last known state.
		return types.Order{}, false
	}

	if snap.Status == types.OrderStatusFilled {
		e.report(p, EventFillRacedCancel, "", &snap)
	} else {
		e.report(p, EventOrderCancelled, "", &snap)
	}
	return snap, true
}

// awaitTerminal polls an order until it reaches a terminal state, the timeout
// expires, or ctx is cancelled. Transient poll errors are tolerated up to the
// retry budget of consecutive failures.
func (e *Engine) awaitTerminal(ctx context.Context, symbol, orderID string, timeout time.Duration) (types.Order, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var last types.Order
	failures := 0
	for {
		snap, err := e.gw.OrderStatus(ctx, symbol, orderID)
		switch {
		case err == nil:
			failures = 0
			last = snap
			if snap.IsFinal() {
				return snap, nil
			}
		case !gateway.IsRetryable(err):
			return last, err
		default:
			failures++
			if failures >= e.cfg.RetryBudget {
				return last, fmt.Errorf("status poll budget exhausted: %w", err)
			}
		}

		if time.Now().After(deadline) {
			return last, errAwaitTimeout
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// errAwaitTimeout signals that an order did not reach a terminal state within
// its allotted wait.
var errAwaitTimeout = fmt.Errorf("order did not reach terminal state in time")

// cleanupContext returns a short-lived context independent of a cancelled
// plan context, used to cancel resting orders during teardown.
func cleanupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func newPlanID() string {
	return uuid.NewString()
}

func newClientID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

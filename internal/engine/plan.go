package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// PlanType identifies the execution strategy of a plan.
type PlanType int

const (
	PlanTypeTWAP PlanType = iota
	PlanTypeGrid
	PlanTypeOCO
)

func (t PlanType) String() string {
	switch t {
	case PlanTypeTWAP:
		return "TWAP"
	case PlanTypeGrid:
		return "GRID"
	case PlanTypeOCO:
		return "OCO"
	default:
		return "UNKNOWN"
	}
}

// PlanStatus represents the lifecycle state of an execution plan.
type PlanStatus int

const (
	PlanStatusRunning PlanStatus = iota
	PlanStatusCompleted
	PlanStatusCancelled
	PlanStatusFailed
)

func (s PlanStatus) String() string {
	switch s {
	case PlanStatusRunning:
		return "RUNNING"
	case PlanStatusCompleted:
		return "COMPLETED"
	case PlanStatusCancelled:
		return "CANCELLED"
	case PlanStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the plan is in a terminal state.
func (s PlanStatus) IsFinal() bool {
	return s != PlanStatusRunning
}

// OCOResolution is the terminal outcome of an OCO pair.
type OCOResolution int

const (
	OCOResolutionPending OCOResolution = iota
	OCOResolutionLimitFilled
	OCOResolutionStopFilled
	// OCOResolutionRace means both legs filled before either cancel landed.
	// Disclosed outcome of OCO emulated on a venue without native pairing,
	// not an error.
	OCOResolutionRace
	OCOResolutionCancelled
)

func (r OCOResolution) String() string {
	switch r {
	case OCOResolutionPending:
		return "PENDING"
	case OCOResolutionLimitFilled:
		return "LIMIT_FILLED"
	case OCOResolutionStopFilled:
		return "STOP_FILLED"
	case OCOResolutionRace:
		return "RACE"
	case OCOResolutionCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// GridLevel is one rung of a grid ladder.
type GridLevel struct {
	Index         int
	Price         decimal.Decimal
	Side          types.Side
	Skipped       bool   // within one tick of mark price at startup
	ActiveOrderID string // empty when no order is resting at this level
	Fills         int    // completed round-trip fills at this level
}

// Report event names.
const (
	EventPlanStarted     = "plan_started"
	EventPlanCompleted   = "plan_completed"
	EventPlanCancelled   = "plan_cancelled"
	EventPlanFailed      = "plan_failed"
	EventOrderSubmitted  = "order_submitted"
	EventOrderFilled     = "order_filled"
	EventOrderCancelled  = "order_cancelled"
	EventChunkScheduled  = "chunk_scheduled"
	EventChunkTimeout    = "chunk_timeout"
	EventChunkFailed     = "chunk_failed"
	EventLevelSkipped    = "level_skipped"
	EventLevelFailed     = "level_failed"
	EventLevelReplaced   = "level_replenished"
	EventFillRacedCancel = "fill_raced_cancel"
	EventRaceDetected    = "race_detected"
)

// Report is one append-only execution log entry. Reports are produced solely
// by the engine that owns the plan and are read-only to callers.
type Report struct {
	Timestamp time.Time
	PlanID    string
	PlanType  PlanType
	Event     string
	Detail    string
	Order     *types.Order // snapshot at the time of the event, nil for plan-level events
}

// reportBuffer is the capacity of the per-plan report stream. When the caller
// falls behind, stream delivery is dropped; the full log stays available via
// Plan.Log.
const reportBuffer = 256

// Plan is a running or finished execution plan. All accessors are safe for
// concurrent use; mutation happens only inside the owning engine goroutines.
type Plan struct {
	id        string
	planType  PlanType
	symbol    string
	createdAt time.Time

	cancel context.CancelFunc

	mu         sync.RWMutex
	status     PlanStatus
	finishedAt time.Time
	err        error
	orders     []types.Order // latest snapshot per child, in creation order
	log        []Report
	ladder     []GridLevel
	resolution OCOResolution

	reports chan Report
	done    chan struct{}
}

func newPlan(planType PlanType, symbol string, cancel context.CancelFunc) *Plan {
	return &Plan{
		id:        newPlanID(),
		planType:  planType,
		symbol:    symbol,
		createdAt: time.Now(),
		cancel:    cancel,
		status:    PlanStatusRunning,
		reports:   make(chan Report, reportBuffer),
		done:      make(chan struct{}),
	}
}

// ID returns the plan identifier.
func (p *Plan) ID() string { return p.id }

// Type returns the plan type.
func (p *Plan) Type() PlanType { return p.planType }

// Symbol returns the traded symbol.
func (p *Plan) Symbol() string { return p.symbol }

// CreatedAt returns the plan creation time.
func (p *Plan) CreatedAt() time.Time { return p.createdAt }

// Status returns the current plan status.
func (p *Plan) Status() PlanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Err returns the terminal error detail for FAILED plans, nil otherwise.
func (p *Plan) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Reports returns the live report stream. The channel is closed when the plan
// reaches a terminal state.
func (p *Plan) Reports() <-chan Report { return p.reports }

// Done returns a channel closed when the plan reaches a terminal state.
func (p *Plan) Done() <-chan struct{} { return p.done }

// Log returns a copy of the full append-only report log.
func (p *Plan) Log() []Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Report, len(p.log))
	copy(out, p.log)
	return out
}

// ChildOrders returns the latest snapshot of every child order, in creation
// order.
func (p *Plan) ChildOrders() []types.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Order, len(p.orders))
	copy(out, p.orders)
	return out
}

// FilledQuantity returns the total filled quantity across all child orders.
func (p *Plan) FilledQuantity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := decimal.Zero
	for _, o := range p.orders {
		total = total.Add(o.FilledQuantity)
	}
	return total
}

// Ladder returns a copy of the grid ladder. Empty for non-grid plans.
func (p *Plan) Ladder() []GridLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]GridLevel, len(p.ladder))
	copy(out, p.ladder)
	return out
}

// Resolution returns the OCO pair outcome. Pending for non-OCO plans.
func (p *Plan) Resolution() OCOResolution {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.resolution
}

// emit appends a report to the log, updates the child order snapshot, and
// delivers to the stream without blocking the engine.
func (p *Plan) emit(event, detail string, order *types.Order) Report {
	r := Report{
		Timestamp: time.Now(),
		PlanID:    p.id,
		PlanType:  p.planType,
		Event:     event,
		Detail:    detail,
	}
	if order != nil {
		snap := *order
		r.Order = &snap
	}

	p.mu.Lock()
	p.log = append(p.log, r)
	if order != nil {
		p.upsertOrderLocked(*order)
	}
	p.mu.Unlock()

	select {
	case p.reports <- r:
	default:
	}
	return r
}

// trackOrder records the latest child order snapshot without emitting a
// report. Used by poll loops so routine status refreshes don't flood the log.
func (p *Plan) trackOrder(o types.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertOrderLocked(o)
}

// upsertOrderLocked records the latest snapshot of a child order. Terminal
// snapshots are never overwritten.
func (p *Plan) upsertOrderLocked(o types.Order) {
	for i := range p.orders {
		if p.orders[i].ClientID == o.ClientID {
			if p.orders[i].IsFinal() {
				return
			}
			p.orders[i] = o
			return
		}
	}
	p.orders = append(p.orders, o)
}

func (p *Plan) setLadder(ladder []GridLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ladder = ladder
}

func (p *Plan) updateLevel(index int, fn func(*GridLevel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.ladder {
		if p.ladder[i].Index == index {
			fn(&p.ladder[i])
			return
		}
	}
}

func (p *Plan) setResolution(r OCOResolution) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolution = r
}

// finish moves the plan to a terminal state exactly once and closes the
// report stream.
func (p *Plan) finish(status PlanStatus, err error) {
	p.mu.Lock()
	if p.status.IsFinal() {
		p.mu.Unlock()
		return
	}
	p.status = status
	p.err = err
	p.finishedAt = time.Now()
	p.mu.Unlock()

	event := EventPlanCompleted
	switch status {
	case PlanStatusCancelled:
		event = EventPlanCancelled
	case PlanStatusFailed:
		event = EventPlanFailed
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	p.emit(event, detail, nil)

	close(p.reports)
	close(p.done)
}

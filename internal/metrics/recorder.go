package metrics

import "time"

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrder records a child order outcome.
func (r *Recorder) RecordOrder(symbol, side, status string) {
	OrdersTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordPlanStarted records a plan launch.
func (r *Recorder) RecordPlanStarted(planType string) {
	PlansStarted.WithLabelValues(planType).Inc()
	PlansActive.WithLabelValues(planType).Inc()
}

// RecordPlanFinished records a plan reaching a terminal state.
func (r *Recorder) RecordPlanFinished(planType, status string) {
	PlansFinished.WithLabelValues(planType, status).Inc()
	PlansActive.WithLabelValues(planType).Dec()
}

// RecordGatewayError records a gateway failure by error code.
func (r *Recorder) RecordGatewayError(code string) {
	GatewayErrors.WithLabelValues(code).Inc()
}

// Timer is a helper for measuring gateway latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveGateway observes the elapsed time as gateway latency.
func (t *Timer) ObserveGateway(operation string) {
	GatewayLatency.WithLabelValues(operation).Observe(t.Elapsed().Seconds())
}

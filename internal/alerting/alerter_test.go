package alerting

import (
	"context"
	"errors"
	"testing"
)

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityHigh, "HIGH"},
		{Severity(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestConsoleAlerter(t *testing.T) {
	a := NewConsoleAlerter(nil)
	if a.Name() != "console" {
		t.Errorf("Name() = %s, want console", a.Name())
	}
	if err := a.Alert(context.Background(), SeverityHigh, "plan failed", "plan_id", "p1"); err != nil {
		t.Errorf("Alert() error: %v", err)
	}
}

func TestMockAlerter(t *testing.T) {
	m := NewMockAlerter()
	ctx := context.Background()

	_ = m.Alert(ctx, SeverityInfo, "TWAP plan COMPLETED", "plan_id", "p1")
	_ = m.Alert(ctx, SeverityHigh, "OCO plan FAILED", "plan_id", "p2")

	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
	if !m.HasAlertContaining("FAILED") {
		t.Error("HasAlertContaining(FAILED) = false, want true")
	}
	if m.HasAlertContaining("GRID") {
		t.Error("HasAlertContaining(GRID) = true, want false")
	}

	alerts := m.Alerts()
	if alerts[1].Severity != SeverityHigh {
		t.Errorf("second alert severity = %v, want HIGH", alerts[1].Severity)
	}
}

// failingAlerter always errors, for fan-out tests.
type failingAlerter struct{ err error }

func (f *failingAlerter) Name() string { return "failing" }
func (f *failingAlerter) Alert(context.Context, Severity, string, ...any) error {
	return f.err
}

func TestMultiAlerter_FansOut(t *testing.T) {
	a := NewMockAlerter()
	b := NewMockAlerter()
	multi := NewMultiAlerter(nil, a, b)

	if err := multi.Alert(context.Background(), SeverityInfo, "hello"); err != nil {
		t.Fatalf("Alert() error: %v", err)
	}
	if a.Count() != 1 || b.Count() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", a.Count(), b.Count())
	}
}

func TestMultiAlerter_CollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := NewMockAlerter()
	multi := NewMultiAlerter(nil, ok, &failingAlerter{err: boom})

	err := multi.Alert(context.Background(), SeverityWarning, "hello")
	if !errors.Is(err, boom) {
		t.Errorf("Alert() error = %v, want wrapped boom", err)
	}
	// The healthy channel still received the alert.
	if ok.Count() != 1 {
		t.Errorf("healthy channel count = %d, want 1", ok.Count())
	}
}

func TestMultiAlerter_Empty(t *testing.T) {
	multi := NewMultiAlerter(nil)
	if err := multi.Alert(context.Background(), SeverityInfo, "hello"); err != nil {
		t.Errorf("Alert() on empty multi = %v, want nil", err)
	}

	multi.AddAlerter(NewMockAlerter())
	if err := multi.Alert(context.Background(), SeverityInfo, "hello"); err != nil {
		t.Errorf("Alert() error: %v", err)
	}
}

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/engine"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLiteJournal(path)
	if err != nil {
		t.Fatalf("NewSQLiteJournal() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndGetReports(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	order := &types.Order{
		ClientID:       "twap-abc",
		OrderID:        "100",
		Symbol:         "BTCUSDT",
		Side:           types.SideBuy,
		Kind:           types.OrderKindMarket,
		Status:         types.OrderStatusFilled,
		Quantity:       decimal.RequireFromString("0.05"),
		FilledQuantity: decimal.RequireFromString("0.05"),
		AvgFillPrice:   decimal.RequireFromString("45000.10"),
	}

	reports := []engine.Report{
		{Timestamp: time.Now().UTC(), PlanID: "plan-1", PlanType: engine.PlanTypeTWAP, Event: engine.EventPlanStarted},
		{Timestamp: time.Now().UTC(), PlanID: "plan-1", PlanType: engine.PlanTypeTWAP, Event: engine.EventOrderFilled, Detail: "chunk 1 of 10", Order: order},
		{Timestamp: time.Now().UTC(), PlanID: "plan-2", PlanType: engine.PlanTypeGrid, Event: engine.EventPlanStarted},
	}
	for _, r := range reports {
		if err := j.AppendReport(ctx, r); err != nil {
			t.Fatalf("AppendReport() error: %v", err)
		}
	}

	got, err := j.GetReports(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetReports() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetReports() = %d rows, want 2", len(got))
	}

	if got[0].Event != engine.EventPlanStarted {
		t.Errorf("first event = %s, want %s", got[0].Event, engine.EventPlanStarted)
	}
	if got[0].Order != nil {
		t.Error("first report should have no order")
	}

	filled := got[1]
	if filled.Detail != "chunk 1 of 10" {
		t.Errorf("Detail = %s, want 'chunk 1 of 10'", filled.Detail)
	}
	if filled.Order == nil {
		t.Fatal("second report should carry an order")
	}
	if filled.Order.OrderID != "100" {
		t.Errorf("OrderID = %s, want 100", filled.Order.OrderID)
	}
	if !filled.Order.FilledQuantity.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("FilledQuantity = %s, want 0.05", filled.Order.FilledQuantity)
	}
	if !filled.Order.AvgFillPrice.Equal(decimal.RequireFromString("45000.10")) {
		t.Errorf("AvgFillPrice = %s, want 45000.10", filled.Order.AvgFillPrice)
	}
}

func TestSavePlanStatus_Upserts(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if err := j.SavePlanStatus(ctx, "plan-1", engine.PlanTypeOCO, engine.PlanStatusRunning); err != nil {
		t.Fatalf("SavePlanStatus() error: %v", err)
	}
	if err := j.SavePlanStatus(ctx, "plan-1", engine.PlanTypeOCO, engine.PlanStatusCompleted); err != nil {
		t.Fatalf("SavePlanStatus() error: %v", err)
	}

	rec, err := j.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if rec == nil {
		t.Fatal("GetPlan() = nil, want record")
	}
	if rec.Status != engine.PlanStatusCompleted.String() {
		t.Errorf("Status = %s, want %s", rec.Status, engine.PlanStatusCompleted)
	}
	if rec.PlanType != engine.PlanTypeOCO.String() {
		t.Errorf("PlanType = %s, want OCO", rec.PlanType)
	}
}

func TestGetPlan_Unknown(t *testing.T) {
	j := newTestJournal(t)

	rec, err := j.GetPlan(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if rec != nil {
		t.Errorf("GetPlan() = %+v, want nil", rec)
	}
}

func TestGetReports_Empty(t *testing.T) {
	j := newTestJournal(t)

	got, err := j.GetReports(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetReports() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetReports() = %d rows, want 0", len(got))
	}
}

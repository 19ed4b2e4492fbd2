// Package journal persists execution reports to SQLite so an operator can
// reconcile plan history after the process exits.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/engine"
	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements engine.Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			plan_type TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id TEXT NOT NULL,
			plan_type TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			event TEXT NOT NULL,
			detail TEXT,
			client_order_id TEXT,
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			kind TEXT,
			status TEXT,
			quantity TEXT,
			price TEXT,
			filled_quantity TEXT,
			avg_fill_price TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_plan_id ON reports(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := j.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// AppendReport persists one execution report entry.
func (j *SQLiteJournal) AppendReport(ctx context.Context, r engine.Report) error {
	query := `INSERT INTO reports
		(plan_id, plan_type, timestamp, event, detail, client_order_id, order_id, symbol, side, kind, status, quantity, price, filled_quantity, avg_fill_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var clientID, orderID, symbol, side, kind, status, quantity, price, filledQty, avgPrice any
	if r.Order != nil {
		o := r.Order
		clientID = o.ClientID
		orderID = o.OrderID
		symbol = o.Symbol
		side = o.Side.String()
		kind = o.Kind.String()
		status = o.Status.String()
		quantity = o.Quantity.String()
		price = o.Price.String()
		filledQty = o.FilledQuantity.String()
		avgPrice = o.AvgFillPrice.String()
	}

	_, err := j.db.ExecContext(ctx, query,
		r.PlanID, r.PlanType.String(), r.Timestamp, r.Event, r.Detail,
		clientID, orderID, symbol, side, kind, status, quantity, price, filledQty, avgPrice,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// SavePlanStatus upserts a plan's current status.
func (j *SQLiteJournal) SavePlanStatus(ctx context.Context, planID string, planType engine.PlanType, status engine.PlanStatus) error {
	query := `INSERT OR REPLACE INTO plans (id, plan_type, status, updated_at) VALUES (?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query, planID, planType.String(), status.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save plan status: %w", err)
	}
	return nil
}

// ReportRecord is one persisted report row.
type ReportRecord struct {
	ID        int64
	PlanID    string
	PlanType  string
	Timestamp time.Time
	Event     string
	Detail    string
	Order     *types.Order
}

// GetReports returns all persisted reports for a plan, oldest first.
func (j *SQLiteJournal) GetReports(ctx context.Context, planID string) ([]ReportRecord, error) {
	query := `SELECT id, plan_id, plan_type, timestamp, event, detail, client_order_id, order_id, symbol, side, kind, status, quantity, price, filled_quantity, avg_fill_price
		FROM reports WHERE plan_id = ? ORDER BY id`

	rows, err := j.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		var detail sql.NullString
		var clientID, orderID, symbol, side, kind, status sql.NullString
		var quantity, price, filledQty, avgPrice sql.NullString

		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.PlanType, &rec.Timestamp, &rec.Event, &detail,
			&clientID, &orderID, &symbol, &side, &kind, &status,
			&quantity, &price, &filledQty, &avgPrice); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Detail = detail.String

		if clientID.Valid {
			o := &types.Order{
				ClientID: clientID.String,
				OrderID:  orderID.String,
				Symbol:   symbol.String,
			}
			o.Side, _ = types.ParseSide(side.String)
			o.Kind = parseOrderKind(kind.String)
			o.Status = parseOrderStatus(status.String)
			o.Quantity, _ = decimal.NewFromString(quantity.String)
			o.Price, _ = decimal.NewFromString(price.String)
			o.FilledQuantity, _ = decimal.NewFromString(filledQty.String)
			o.AvgFillPrice, _ = decimal.NewFromString(avgPrice.String)
			rec.Order = o
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// PlanRecord is one persisted plan row.
type PlanRecord struct {
	ID        string
	PlanType  string
	Status    string
	UpdatedAt time.Time
}

// GetPlan returns the persisted state of a plan, or nil if unknown.
func (j *SQLiteJournal) GetPlan(ctx context.Context, planID string) (*PlanRecord, error) {
	query := `SELECT id, plan_type, status, updated_at FROM plans WHERE id = ?`

	var rec PlanRecord
	err := j.db.QueryRowContext(ctx, query, planID).Scan(&rec.ID, &rec.PlanType, &rec.Status, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return &rec, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func parseOrderKind(s string) types.OrderKind {
	switch s {
	case "LIMIT":
		return types.OrderKindLimit
	case "STOP":
		return types.OrderKindStop
	default:
		return types.OrderKindMarket
	}
}

func parseOrderStatus(s string) types.OrderStatus {
	switch s {
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELLED":
		return types.OrderStatusCancelled
	case "REJECTED":
		return types.OrderStatusRejected
	case "EXPIRED":
		return types.OrderStatusExpired
	default:
		return types.OrderStatusNew
	}
}

// Ensure SQLiteJournal implements engine.Journal
var _ engine.Journal = (*SQLiteJournal)(nil)

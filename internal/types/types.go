// Package types defines shared types used across the order execution system.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide parses a side string as accepted on the command line.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy":
		return SideBuy, nil
	case "SELL", "sell":
		return SideSell, nil
	default:
		return SideBuy, ErrInvalidSide
	}
}

// OrderKind represents the type of order sent to the venue.
type OrderKind int

const (
	OrderKindMarket OrderKind = iota
	OrderKindLimit
	OrderKindStop
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MARKET"
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus represents the state of an order.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the order is in a terminal state.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Order represents one exchange-facing order. ClientID is the caller-generated
// idempotency token; OrderID is assigned by the venue on acceptance. Once
// Status is terminal the order is never mutated again.
type Order struct {
	ClientID       string
	OrderID        string
	Symbol         string
	Side           Side
	Kind           OrderKind
	Quantity       decimal.Decimal
	Price          decimal.Decimal // zero for market orders
	TriggerPrice   decimal.Decimal // stop orders only
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsFinal reports whether the order has reached a terminal state.
func (o Order) IsFinal() bool {
	return o.Status.IsFinal()
}

// Notional returns the order's notional value at its limit price, or zero for
// market orders.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// ValidateStopLimit checks the stop trigger / limit price relationship: a
// SELL stop's limit rests below its trigger (sell through a falling market),
// a BUY stop's limit rests above its trigger.
func ValidateStopLimit(side Side, triggerPrice, limitPrice decimal.Decimal) error {
	if triggerPrice.LessThanOrEqual(decimal.Zero) || limitPrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	if side == SideBuy && triggerPrice.GreaterThanOrEqual(limitPrice) {
		return ErrStopPriceRelation
	}
	if side == SideSell && triggerPrice.LessThanOrEqual(limitPrice) {
		return ErrStopPriceRelation
	}
	return nil
}

// InstrumentSpec defines the venue filters for a trading symbol.
type InstrumentSpec struct {
	Symbol      string
	TickSize    decimal.Decimal // minimum price movement
	StepSize    decimal.Decimal // minimum quantity increment
	MinQuantity decimal.Decimal
	MinNotional decimal.Decimal // minimum price * quantity per order
}

// Common USD-M futures instrument specifications (testnet filters).
var (
	InstrumentBTCUSDT = InstrumentSpec{
		Symbol:      "BTCUSDT",
		TickSize:    decimal.RequireFromString("0.10"),
		StepSize:    decimal.RequireFromString("0.001"),
		MinQuantity: decimal.RequireFromString("0.001"),
		MinNotional: decimal.RequireFromString("100"),
	}

	InstrumentETHUSDT = InstrumentSpec{
		Symbol:      "ETHUSDT",
		TickSize:    decimal.RequireFromString("0.01"),
		StepSize:    decimal.RequireFromString("0.001"),
		MinQuantity: decimal.RequireFromString("0.001"),
		MinNotional: decimal.RequireFromString("20"),
	}
)

// GetInstrumentSpec returns the specification for a symbol.
func GetInstrumentSpec(symbol string) (InstrumentSpec, bool) {
	switch symbol {
	case "BTCUSDT":
		return InstrumentBTCUSDT, true
	case "ETHUSDT":
		return InstrumentETHUSDT, true
	default:
		return InstrumentSpec{}, false
	}
}

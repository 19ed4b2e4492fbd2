// Package gateway defines the exchange connectivity contract consumed by the
// execution engines.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lakshaydahiya67/Binance-Futures-Orders-Bot/internal/types"
)

// Gateway is the abstract exchange interface the engines drive. All methods
// may block on network I/O and must be safe for concurrent use by multiple
// running plans.
type Gateway interface {
	// SubmitOrder places an order and returns the venue's acknowledgement
	// snapshot, including the assigned order ID.
	SubmitOrder(ctx context.Context, order types.Order) (types.Order, error)

	// CancelOrder requests cancellation of a resting order. Cancelling an
	// order the venue has already resolved returns ErrCodeNotFound, which
	// callers treat as success.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// OrderStatus returns the current snapshot of an order.
	OrderStatus(ctx context.Context, symbol, orderID string) (types.Order, error)

	// MarkPrice returns the venue's current mark price for a symbol.
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

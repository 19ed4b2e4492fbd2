package types

import "errors"

// Sentinel errors for the order execution system. Validation errors are
// surfaced synchronously before any gateway call and are never retried.
var (
	// Input validation errors
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidSide       = errors.New("side must be BUY or SELL")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrChunkTooLarge     = errors.New("chunk size cannot be larger than total quantity")
	ErrPriceRangeInvalid = errors.New("low price must be less than high price")
	ErrTooFewLevels      = errors.New("grid levels must be at least 2")
	ErrBelowMinNotional  = errors.New("order notional below venue minimum")
	ErrStopPriceRelation = errors.New("stop trigger on the wrong side of limit price")
	ErrOCOPriceRelation  = errors.New("take profit and stop trigger must bracket the market")

	// Plan lifecycle errors
	ErrPlanNotFound        = errors.New("plan not found")
	ErrPlanAlreadyTerminal = errors.New("plan already terminal")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

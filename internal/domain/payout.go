package domain

import "context"

// PayoutResult is returned by the external treasury on a successful
// transfer. Reference is the proof of payment stored on the position.
type PayoutResult struct {
	Reference string
}

// PayoutExecutor instructs the external treasury to move value. The engine
// never constructs or signs transfers itself. Failures are surfaced as
// errors wrapping ErrPayoutFailed and the position stays unpaid for retry.
type PayoutExecutor interface {
	PayOut(ctx context.Context, userID string, amount float64, asset, chain string) (PayoutResult, error)
}

// PriceSource supplies the current realizable unit value of a funding asset.
type PriceSource interface {
	Price(ctx context.Context, asset string) (float64, error)
}

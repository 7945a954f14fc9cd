package exchangerate

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateProvider quotes exchange rates.
type RateProvider interface {
	// Rate returns how many units of quote one unit of base buys
	// (Rate(ctx, "USD", "NPR") ≈ 133).
	Rate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

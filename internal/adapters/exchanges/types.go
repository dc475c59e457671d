package exchanges

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenInterest is a normalized open-interest reading from an exchange
type OpenInterest struct {
	Symbol    string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Value returns the open interest as a float for downstream math
func (o *OpenInterest) Value() float64 {
	f, _ := o.Amount.Float64()
	return f
}

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is an order placed by the execution loop.
type TradeEvent struct {
	// ID client order id, also the trade journal key.
	ID string
	// Signal buy or sell.
	Signal Signal
	// Pair trading pair.
	Pair Pair
	// Amount is the quote amount spent for buys and the base quantity sold for sells.
	Amount decimal.Decimal
	// Price last price at submission.
	Price decimal.Decimal
	// Reason why the order was placed.
	Reason string
	Time   time.Time
}

// String returns a human-readable string representation.
func (t *TradeEvent) String() string {
	return fmt.Sprintf("%s %s amount: %s price: %s (%s)",
		t.Pair.String(), t.Signal.String(), t.Amount.String(), t.Price.String(), t.Reason)
}

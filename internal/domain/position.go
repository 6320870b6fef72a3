package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the strategy-level open position. It is not per account.
type PositionState struct {
	InPosition        bool            `json:"in_position"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	TrailingStopPrice decimal.Decimal `json:"trailing_stop_price"`
	EntryTime         time.Time       `json:"entry_time,omitempty"`
}

// Open records a filled entry and sets the initial stop.
func (p *PositionState) Open(price, stopDistance decimal.Decimal, at time.Time) {
	p.InPosition = true
	p.EntryPrice = price
	p.TrailingStopPrice = price.Sub(stopDistance)
	p.EntryTime = at
}

// Ratchet moves the stop to price-stopDistance if that is higher than the current stop.
// It reports whether the stop moved. The stop never moves down.
func (p *PositionState) Ratchet(price, stopDistance decimal.Decimal) bool {
	if !p.InPosition {
		return false
	}
	candidate := price.Sub(stopDistance)
	if candidate.GreaterThan(p.TrailingStopPrice) {
		p.TrailingStopPrice = candidate
		return true
	}
	return false
}

// Close clears the position.
func (p *PositionState) Close() {
	*p = PositionState{TrailingStopPrice: decimal.Zero, EntryPrice: decimal.Zero}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskStatus two-state risk machine status.
type RiskStatus string

const (
	RiskActive RiskStatus = "ACTIVE"
	RiskFrozen RiskStatus = "FROZEN"
)

// RiskState drawdown guard state for the execution loop.
type RiskState struct {
	HighWaterMark   decimal.Decimal `json:"high_water_mark"`
	Frozen          bool            `json:"frozen"`
	FreezeStartedAt time.Time       `json:"freeze_started_at,omitempty"`
	// LiquidationPending is set while a liquidation after a breach has not succeeded yet.
	LiquidationPending bool `json:"liquidation_pending,omitempty"`
}

// Status returns ACTIVE or FROZEN.
func (s RiskState) Status() RiskStatus {
	if s.Frozen {
		return RiskFrozen
	}
	return RiskActive
}

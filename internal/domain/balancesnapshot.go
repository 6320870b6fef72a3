package domain

import "time"

// EquitySnapshot is the per-tick valuation of the pooled account.
type EquitySnapshot struct {
	Timestamp     time.Time `json:"ts"`
	Pair          string    `json:"pair"`
	Base          string    `json:"base"`
	Quote         string    `json:"quote"`
	Price         string    `json:"price"`
	Equity        string    `json:"equity"`
	PooledCapital string    `json:"pooled_capital"`
	RiskStatus    string    `json:"risk_status"`
	HighWaterMark string    `json:"high_water_mark"`
	InPosition    bool      `json:"in_position"`
	TrailingStop  string    `json:"trailing_stop,omitempty"`
}

// EquitySnapshotRecord bundles a snapshot with its WAL index.
type EquitySnapshotRecord struct {
	Index    uint64
	Snapshot EquitySnapshot
}

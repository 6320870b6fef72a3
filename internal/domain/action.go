package domain

// Signal is the strategy verdict for a tick.
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

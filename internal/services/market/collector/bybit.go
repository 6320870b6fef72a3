package collector

import (
	"context"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
)

// BybitKlineProvider implements KlineProvider for Bybit exchange.
type BybitKlineProvider struct {
	client *bybit.Client
}

// NewBybitKlineProvider creates a new Bybit kline provider.
func NewBybitKlineProvider(client *bybit.Client) *BybitKlineProvider {
	return &BybitKlineProvider{client: client}
}

// GetKlines fetches spot kline data from Bybit.
func (p *BybitKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	bybitInterval, err := convertIntervalToBybit(interval)
	if err != nil {
		return nil, err
	}
	span, err := intervalDuration(interval)
	if err != nil {
		return nil, err
	}

	res, err := p.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: "spot",
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		Interval: bybit.Interval(bybitInterval),
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", pair.String())
	}

	// bybit lists the newest kline first
	list := res.Result.List
	result := make([]domain.MarketCandle, len(list))
	for i, k := range list {
		c, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "kline at index %d", i)
		}
		start, err := parseTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "kline at index %d", i)
		}
		c.OpenTime = start
		c.CloseTime = start.Add(span - time.Millisecond)
		result[len(list)-1-i] = c
	}

	return result, nil
}

// convertIntervalToBybit maps "15m", "4h", "1d" to the Bybit interval codes "15", "240", "D".
func convertIntervalToBybit(interval string) (string, error) {
	if len(interval) < 2 {
		return "", errors.Errorf("invalid interval %q", interval)
	}

	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return "", errors.Errorf("invalid interval %q", interval)
	}

	switch interval[len(interval)-1] {
	case 'm':
		return strconv.Itoa(n), nil
	case 'h':
		return strconv.Itoa(n * 60), nil
	case 'd':
		if n == 1 {
			return "D", nil
		}
	case 'w':
		if n == 1 {
			return "W", nil
		}
	case 'M':
		if n == 1 {
			return "M", nil
		}
	}
	return "", errors.Errorf("unsupported interval %q", interval)
}

// intervalDuration returns the bar length of interval. Months are taken as 30 days.
func intervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, errors.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid interval %q", interval)
	}

	unit := map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
	}[interval[len(interval)-1]]
	if unit == 0 {
		return 0, errors.Errorf("unsupported interval %q", interval)
	}
	return time.Duration(n) * unit, nil
}

func parseTimestamp(ms string) (time.Time, error) {
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to parse timestamp %q", ms)
	}
	return time.UnixMilli(v).UTC(), nil
}

package pricer

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gapeva/poolbot/internal/domain"
)

// parsePrice converts a venue quote. Equity and trailing stops are computed
// from it, so a zero or negative quote is an error rather than a price.
func parsePrice(venue string, pair domain.Pair, raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "%s price for %s", venue, pair.String())
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("%s returned non-positive price %s for %s", venue, raw, pair.String())
	}
	return price, nil
}

// Package clients builds authenticated exchange SDK clients.
package clients

import (
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
)

// NewBinanceClient returns an authenticated Binance client. Both credentials are required.
func NewBinanceClient(apiKey, apiSecret string) (*binance.Client, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "binance api key and secret are required")
	}
	return binance.NewClient(apiKey, apiSecret), nil
}

// NewBinancePublicClient returns a client for public market data endpoints only.
func NewBinancePublicClient() *binance.Client {
	return binance.NewClient("", "")
}

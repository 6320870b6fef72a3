package clients

import (
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"

	"github.com/gapeva/poolbot/internal/domain"
)

// NewBybitClient returns an authenticated Bybit client. Both credentials are required.
func NewBybitClient(apiKey, apiSecret string) (*bybit.Client, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "bybit api key and secret are required")
	}
	return bybit.NewClient().WithAuth(apiKey, apiSecret), nil
}

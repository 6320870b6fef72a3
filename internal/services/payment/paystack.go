// Package payment verifies deposits with the Paystack payment gateway.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/pkg/retrier"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultPaystackURL = "https://api.paystack.co"
	defaultTimeout     = 15 * time.Second
	statusSuccess      = "success"
)

// Verification outcome of a gateway lookup.
type Verification struct {
	Reference string
	Verified  bool
	// Status gateway transaction status, e.g. success, abandoned, failed.
	Status string
	// SettledAmount amount actually paid, in major units.
	SettledAmount   decimal.Decimal
	Currency        string
	GatewayResponse string
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// transientError marks failures worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// PaystackClient calls the transaction verification endpoint.
type PaystackClient struct {
	http    *resty.Client
	secret  string
	retrier *retrier.Retrier
	logger  *zap.Logger
}

// Option configures a PaystackClient.
type Option func(*PaystackClient)

func WithLogger(logger *zap.Logger) Option {
	return func(c *PaystackClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRetrier(r *retrier.Retrier) Option {
	return func(c *PaystackClient) { c.retrier = r }
}

func WithTimeout(d time.Duration) Option {
	return func(c *PaystackClient) { c.http.SetTimeout(d) }
}

// NewPaystackClient creates a client. An empty secret is a configuration error.
func NewPaystackClient(baseURL, secretKey string, opts ...Option) (*PaystackClient, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "paystack secret key is required")
	}
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	httpClient.JSONMarshal = json.Marshal
	httpClient.JSONUnmarshal = json.Unmarshal

	c := &PaystackClient{
		http:   httpClient,
		secret: secretKey,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = retrier.New(retrier.WithRetryIf(isTransient))
	}
	return c, nil
}

// Verify looks the reference up. An unknown or unsuccessful transaction is
// reported through Verification.Verified, not as an error. Transport failures
// and gateway 5xx answers are retried and then returned as ErrExternalService.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (Verification, error) {
	v, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) (Verification, error) {
		return c.verifyOnce(ctx, reference)
	})
	if err != nil {
		return Verification{}, fmt.Errorf("paystack verify %s: %w: %w", reference, domain.ErrExternalService, err)
	}
	return v, nil
}

func (c *PaystackClient) verifyOnce(ctx context.Context, reference string) (Verification, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.secret).
		Get("/transaction/verify/" + url.PathEscape(reference))
	if err != nil {
		return Verification{}, &transientError{err: errors.Wrap(err, "request failed")}
	}

	code := resp.StatusCode()
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return Verification{}, &transientError{err: errors.Errorf("gateway answered %d", code)}
	}

	var body verifyResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return Verification{}, retrier.Permanent(errors.Wrapf(err, "decode gateway answer (http %d)", code))
	}

	v := Verification{Reference: reference}
	if !body.Status || body.Data == nil {
		c.logger.Info("deposit not verified",
			zap.String("reference", reference),
			zap.Int("http_status", code),
			zap.String("message", body.Message))
		return v, nil
	}

	v.Status = body.Data.Status
	v.Currency = body.Data.Currency
	v.GatewayResponse = body.Data.GatewayResponse
	// amounts are in minor units
	v.SettledAmount = decimal.New(body.Data.Amount, -2)
	v.Verified = body.Data.Status == statusSuccess

	c.logger.Info("deposit verification",
		zap.String("reference", reference),
		zap.String("status", v.Status),
		zap.String("amount", v.SettledAmount.StringFixed(domain.MoneyPlaces)),
		zap.String("currency", v.Currency))
	return v, nil
}

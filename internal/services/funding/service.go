// Package funding verifies deposits with the payment gateway and credits them to the ledger.
package funding

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/services/payment"
)

// DefaultMinDeposit smallest deposit accepted.
var DefaultMinDeposit = decimal.RequireFromString("3.00")

// Gateway confirms a payment reference.
type Gateway interface {
	Verify(ctx context.Context, reference string) (payment.Verification, error)
}

// Ledger is the part of the ledger the deposit flow writes to.
type Ledger interface {
	Credit(ctx context.Context, accountID, reference string, amount decimal.Decimal) (decimal.Decimal, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// Result outcome of a deposit verification.
type Result struct {
	Verified      bool
	Status        string
	SettledAmount decimal.Decimal
	SafeBalance   decimal.Decimal
}

// Service runs the deposit flow.
type Service struct {
	gateway    Gateway
	ledger     Ledger
	minDeposit decimal.Decimal
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithMinDeposit(min decimal.Decimal) Option {
	return func(s *Service) { s.minDeposit = min }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(gateway Gateway, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		gateway:    gateway,
		ledger:     ledger,
		minDeposit: DefaultMinDeposit,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinDeposit returns the configured minimum.
func (s *Service) MinDeposit() decimal.Decimal {
	return s.minDeposit
}

// ValidateDeposit checks an amount before the user is sent to the gateway.
func (s *Service) ValidateDeposit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidAmount, "amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(domain.MoneyPlaces)) {
		return errors.Wrapf(domain.ErrInvalidAmount, "amount %s has more than %d decimal places", amount.String(), domain.MoneyPlaces)
	}
	if amount.LessThan(s.minDeposit) {
		return errors.Wrapf(domain.ErrInvalidAmount, "minimum deposit is %s", s.minDeposit.StringFixed(domain.MoneyPlaces))
	}
	return nil
}

// VerifyDeposit confirms reference with the gateway and credits the settled
// amount. The claimed amount only gates the minimum; the gateway amount is
// what gets credited. An unconfirmed payment returns Verified=false and
// leaves the ledger untouched.
func (s *Service) VerifyDeposit(ctx context.Context, accountID, reference string, claimed decimal.Decimal) (Result, error) {
	if strings.TrimSpace(accountID) == "" {
		return Result{}, errors.Wrap(domain.ErrInvalidRequest, "account id is required")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Result{}, errors.Wrap(domain.ErrInvalidRequest, "reference is required")
	}
	if err := s.ValidateDeposit(claimed); err != nil {
		return Result{}, err
	}

	exists, err := s.ledger.ReferenceExists(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, errors.Wrapf(domain.ErrDuplicateReference, "reference %s", reference)
	}

	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.logger.Error("deposit verification failed",
			zap.String("account", accountID),
			zap.String("reference", reference),
			zap.Error(err))
		return Result{}, err
	}
	if !v.Verified {
		return Result{Verified: false, Status: v.Status}, nil
	}

	settled := v.SettledAmount.Round(domain.MoneyPlaces)
	if !settled.Equal(claimed) {
		s.logger.Warn("settled amount differs from claimed amount",
			zap.String("account", accountID),
			zap.String("reference", reference),
			zap.String("claimed", claimed.StringFixed(domain.MoneyPlaces)),
			zap.String("settled", settled.StringFixed(domain.MoneyPlaces)))
	}

	safe, err := s.ledger.Credit(ctx, accountID, reference, settled)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Verified:      true,
		Status:        v.Status,
		SettledAmount: settled,
		SafeBalance:   safe,
	}, nil
}

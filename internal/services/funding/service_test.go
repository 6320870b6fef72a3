package funding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/ledger"
	"github.com/gapeva/poolbot/internal/services/payment"
	"github.com/gapeva/poolbot/internal/storage/sqldb"
)

type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) Verify(ctx context.Context, reference string) (payment.Verification, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(payment.Verification), args.Error(1)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSQLiteLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.Options{Dialect: sqldb.SQLite, DSN: filepath.Join(t.TempDir(), "funding.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	return ledger.New(ledger.NewSQLStore(db))
}

func TestValidateDeposit(t *testing.T) {
	s := NewService(&gatewayMock{}, nil)

	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"minimum", "3.00", false},
		{"above minimum", "250.50", false},
		{"below minimum", "2.99", true},
		{"zero", "0", true},
		{"negative", "-10", true},
		{"too many places", "10.001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateDeposit(dec(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("verified deposit is credited once", func(t *testing.T) {
		l := newSQLiteLedger(t)
		gw := &gatewayMock{}
		gw.On("Verify", mock.Anything, "ref-1").
			Return(payment.Verification{Reference: "ref-1", Verified: true, Status: "success", SettledAmount: dec("50")}, nil).
			Once()
		s := NewService(gw, l)

		res, err := s.VerifyDeposit(ctx, "acc-1", "ref-1", dec("50"))
		require.NoError(t, err)
		assert.True(t, res.Verified)
		assert.True(t, res.SafeBalance.Equal(dec("50")))

		_, err = s.VerifyDeposit(ctx, "acc-1", "ref-1", dec("50"))
		require.ErrorIs(t, err, domain.ErrDuplicateReference)

		w, err := l.GetBalances(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, w.SafeBalance.Equal(dec("50")))
		gw.AssertExpectations(t)
	})

	t.Run("settled amount wins over claimed amount", func(t *testing.T) {
		l := newSQLiteLedger(t)
		core, logs := observer.New(zap.WarnLevel)
		gw := &gatewayMock{}
		gw.On("Verify", mock.Anything, "ref-2").
			Return(payment.Verification{Verified: true, Status: "success", SettledAmount: dec("20")}, nil)
		s := NewService(gw, l, WithLogger(zap.New(core)))

		res, err := s.VerifyDeposit(ctx, "acc-2", "ref-2", dec("100"))
		require.NoError(t, err)
		assert.True(t, res.SettledAmount.Equal(dec("20")))
		assert.True(t, res.SafeBalance.Equal(dec("20")))
		assert.Equal(t, 1, logs.FilterMessage("settled amount differs from claimed amount").Len())
	})

	t.Run("unverified payment leaves ledger untouched", func(t *testing.T) {
		l := newSQLiteLedger(t)
		gw := &gatewayMock{}
		gw.On("Verify", mock.Anything, "ref-3").
			Return(payment.Verification{Verified: false, Status: "abandoned"}, nil)
		s := NewService(gw, l)

		res, err := s.VerifyDeposit(ctx, "acc-3", "ref-3", dec("10"))
		require.NoError(t, err)
		assert.False(t, res.Verified)
		assert.Equal(t, "abandoned", res.Status)

		exists, err := l.ReferenceExists(ctx, "ref-3")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("below minimum never reaches the gateway", func(t *testing.T) {
		gw := &gatewayMock{}
		s := NewService(gw, newSQLiteLedger(t))

		_, err := s.VerifyDeposit(ctx, "acc-4", "ref-4", dec("2.50"))
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
		gw.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("missing reference", func(t *testing.T) {
		s := NewService(&gatewayMock{}, newSQLiteLedger(t))

		_, err := s.VerifyDeposit(ctx, "acc-5", "  ", dec("10"))
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("gateway outage surfaces as external service error", func(t *testing.T) {
		gw := &gatewayMock{}
		gw.On("Verify", mock.Anything, "ref-6").
			Return(payment.Verification{}, errors.Wrap(domain.ErrExternalService, "timeout"))
		s := NewService(gw, newSQLiteLedger(t))

		_, err := s.VerifyDeposit(ctx, "acc-6", "ref-6", dec("10"))
		require.ErrorIs(t, err, domain.ErrExternalService)
	})
}

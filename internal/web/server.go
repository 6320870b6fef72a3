// Package web serves the wallet API, the pool figure and the equity stream.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
	"github.com/gapeva/poolbot/internal/ledger"
	"github.com/gapeva/poolbot/internal/services/funding"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccountHeader carries the caller's account id. Authentication happens upstream.
const AccountHeader = "X-Account-ID"

// WalletService ledger operations exposed over HTTP.
type WalletService interface {
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.WithdrawalReceipt, error)
	Allocate(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Wallet, error)
	Deallocate(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Wallet, error)
	GetBalances(ctx context.Context, accountID string) (domain.Wallet, error)
	History(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error)
}

// DepositService gateway-backed deposit flow.
type DepositService interface {
	ValidateDeposit(amount decimal.Decimal) error
	VerifyDeposit(ctx context.Context, accountID, reference string, claimed decimal.Decimal) (funding.Result, error)
}

// PoolReader pooled capital for reporting.
type PoolReader interface {
	TotalPooledCapital(ctx context.Context) decimal.Decimal
}

type snapshotReader interface {
	SnapshotsAfter(index uint64, limit int) ([]domain.EquitySnapshotRecord, error)
	ReplayFrom(backlog int) uint64
	CurrentIndex() uint64
}

// Server exposes the HTTP API.
type Server struct {
	Addr      string
	wallets   WalletService
	deposits  DepositService
	pool      PoolReader
	snapshots snapshotReader
	logger    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSnapshots enables the equity stream.
func WithSnapshots(store snapshotReader) Option {
	return func(s *Server) { s.snapshots = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new web server instance.
func NewServer(addr string, wallets WalletService, deposits DepositService, pool PoolReader, opts ...Option) *Server {
	s := &Server{
		Addr:     addr,
		wallets:  wallets,
		deposits: deposits,
		pool:     pool,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.recovery)
	router.Use(s.instrument)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pool", s.handlePool).Methods(http.MethodGet)
	api.HandleFunc("/bot/stream", s.handleEquityStream).Methods(http.MethodGet)

	wallets := api.PathPrefix("/wallets").Subrouter()
	wallets.HandleFunc("", s.handleGetWallet).Methods(http.MethodGet)
	wallets.HandleFunc("/", s.handleGetWallet).Methods(http.MethodGet)
	wallets.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	wallets.HandleFunc("/validate-deposit", s.handleValidateDeposit).Methods(http.MethodPost)
	wallets.HandleFunc("/verify-deposit", s.handleVerifyDeposit).Methods(http.MethodPost)
	wallets.HandleFunc("/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	wallets.HandleFunc("/allocate", s.handleAllocate).Methods(http.MethodPost)
	wallets.HandleFunc("/deallocate", s.handleDeallocate).Methods(http.MethodPost)

	return router
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	total := s.pool.TotalPooledCapital(r.Context())
	writeJSON(w, http.StatusOK, poolResponse{TotalPooledCapital: money(total)})
}

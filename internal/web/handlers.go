package web

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gapeva/poolbot/internal/domain"
)

const maxBodyBytes = 1 << 16

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type depositRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

type walletResponse struct {
	SafeBalance    string `json:"safe_balance"`
	TradingBalance string `json:"trading_balance"`
}

type validateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type depositResponse struct {
	Verified      bool   `json:"verified"`
	Status        string `json:"status,omitempty"`
	SettledAmount string `json:"settled_amount"`
	SafeBalance   string `json:"safe_balance,omitempty"`
}

type withdrawResponse struct {
	Reference    string `json:"reference"`
	Requested    string `json:"requested"`
	FeeDeducted  string `json:"fee_deducted"`
	PayoutAmount string `json:"payout_amount"`
	SafeBalance  string `json:"safe_balance"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

type transactionResponse struct {
	Reference string    `json:"reference"`
	Kind      string    `json:"type"`
	Amount    string    `json:"amount"`
	Fee       string    `json:"fee,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type poolResponse struct {
	TotalPooledCapital string `json:"total_pooled_capital"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	wallet, err := s.wallets.GetBalances(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletBody(wallet))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, errors.Wrapf(domain.ErrInvalidRequest, "invalid limit %q", raw))
			return
		}
		limit = n
	}

	txs, err := s.wallets.History(r.Context(), account, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		item := transactionResponse{
			Reference: tx.Reference,
			Kind:      string(tx.Kind),
			Amount:    money(tx.Amount),
			Status:    string(tx.Status),
			CreatedAt: tx.CreatedAt,
		}
		if tx.Kind == domain.TransactionWithdrawal {
			item.Fee = money(tx.Fee)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValidateDeposit(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.account(w, r); !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deposits.ValidateDeposit(req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Status: "valid", Message: "Deposit amount authorized."})
}

func (s *Server) handleVerifyDeposit(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deposits.VerifyDeposit(r.Context(), account, req.Reference, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := depositResponse{
		Verified:      res.Verified,
		Status:        res.Status,
		SettledAmount: money(res.SettledAmount),
	}
	if res.Verified {
		body.SafeBalance = money(res.SafeBalance)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.wallets.Withdraw(r.Context(), account, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		Reference:    receipt.Reference,
		Requested:    money(receipt.Requested),
		FeeDeducted:  money(receipt.FeeDeducted),
		PayoutAmount: money(receipt.PayoutAmount),
		SafeBalance:  money(receipt.SafeBalance),
		Status:       string(receipt.Status),
		Message: "Withdrawal of " + money(receipt.Requested) + " is processing, payout " +
			money(receipt.PayoutAmount) + " after a fee of " + money(receipt.FeeDeducted) + ".",
	})
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.wallets.Allocate)
}

func (s *Server) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.wallets.Deallocate)
}

type transferFunc func(ctx context.Context, accountID string, amount decimal.Decimal) (domain.Wallet, error)

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, move transferFunc) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	wallet, err := move(r.Context(), account, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletBody(wallet))
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := strings.TrimSpace(r.Header.Get(AccountHeader))
	if account == "" {
		s.writeError(w, r, errors.Wrapf(domain.ErrInvalidRequest, "%s header is required", AccountHeader))
		return "", false
	}
	return account, true
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(domain.ErrInvalidRequest, "read body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrapf(domain.ErrInvalidRequest, "malformed body: %v", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal error"
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: domain.ErrorKind(err), Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func walletBody(wallet domain.Wallet) walletResponse {
	return walletResponse{
		SafeBalance:    money(wallet.SafeBalance),
		TradingBalance: money(wallet.TradingBalance),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

package api

import (
	"errors"
	"net/http"

	"github.com/ignite/loadboard/internal/pkg/httputil"
	"github.com/ignite/loadboard/internal/wallet"
	"github.com/shopspring/decimal"
)

// TransactionRequest is the body of a wallet transaction. Amount accepts a
// JSON number or a decimal string.
type TransactionRequest struct {
	Type   wallet.TxType   `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	LoadID string          `json:"loadId,omitempty"`
}

// WalletSummary returns the carrier's earnings rollup.
//
//	GET /api/wallet/summary
func (h *Handlers) WalletSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.wallet.Summary(r.Context(), userFrom(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sum)
}

// WalletTransactions lists the carrier's transactions, oldest first.
//
//	GET /api/wallet/transactions
func (h *Handlers) WalletTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.wallet.Transactions(r.Context(), userFrom(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if txs == nil {
		txs = []wallet.Transaction{}
	}
	httputil.OK(w, map[string]any{"transactions": txs, "count": len(txs)})
}

// RecordTransaction appends a payment, refund or payout to the carrier's wallet.
//
//	POST /api/wallet/transactions
func (h *Handlers) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	tx, err := h.wallet.Record(r.Context(), userFrom(r), req.Type, req.Amount, req.LoadID)
	switch {
	case errors.Is(err, wallet.ErrUnknownType), errors.Is(err, wallet.ErrInvalidAmount):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, tx)
}

// Package wallet derives a carrier's earnings and the platform fees accrued
// on them from the transaction log.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/shopspring/decimal"
)

// CollectionTransactions holds one document per wallet transaction.
const CollectionTransactions = "wallet_transactions"

var (
	ErrInvalidAmount = errors.New("wallet: amount must be a positive number")
	ErrUnknownType   = errors.New("wallet: unknown transaction type")
)

// ========== Types ==========

// TxType is the kind of a wallet transaction.
type TxType string

const (
	TxPayment TxType = "payment"
	TxRefund  TxType = "refund"
	TxPayout  TxType = "payout"
)

func (t TxType) valid() bool { return t == TxPayment || t == TxRefund || t == TxPayout }

// Transaction is one money movement on a user's wallet.
type Transaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      TxType          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	LoadID    string          `json:"loadId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Summary is the wallet overview of one user.
type Summary struct {
	GrossVolume      decimal.Decimal `json:"grossVolume"`
	Refunds          decimal.Decimal `json:"refunds"`
	PlatformFees     decimal.Decimal `json:"platformFees"`
	NetEarnings      decimal.Decimal `json:"netEarnings"`
	Payouts          decimal.Decimal `json:"payouts"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	FeePercent       decimal.Decimal `json:"feePercent"`
	Payments         int             `json:"payments"`
	RefundCount      int             `json:"refundCount"`
	PayoutCount      int             `json:"payoutCount"`
}

// ========== Calculation ==========

// Fee is the platform fee on amount at percent, rounded to cents.
func Fee(amount decimal.Decimal, percent float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100)).Round(2)
}

// Summarize totals txs. Each payment accrues a fee; each refund reverses the
// fee on the refunded amount. Unknown types are ignored.
func Summarize(txs []Transaction, feePercent float64) Summary {
	s := Summary{
		GrossVolume:  decimal.Zero,
		Refunds:      decimal.Zero,
		PlatformFees: decimal.Zero,
		Payouts:      decimal.Zero,
		FeePercent:   decimal.NewFromFloat(feePercent),
	}
	for _, tx := range txs {
		amount := tx.Amount.Abs()
		switch tx.Type {
		case TxPayment:
			s.GrossVolume = s.GrossVolume.Add(amount)
			s.PlatformFees = s.PlatformFees.Add(Fee(amount, feePercent))
			s.Payments++
		case TxRefund:
			s.Refunds = s.Refunds.Add(amount)
			s.PlatformFees = s.PlatformFees.Sub(Fee(amount, feePercent))
			s.RefundCount++
		case TxPayout:
			s.Payouts = s.Payouts.Add(amount)
			s.PayoutCount++
		}
	}
	s.NetEarnings = s.GrossVolume.Sub(s.Refunds).Sub(s.PlatformFees)
	s.AvailableBalance = s.NetEarnings.Sub(s.Payouts)
	return s
}

// ========== Persistence ==========

// Service reads and appends wallet transactions in the document store.
type Service struct {
	store      docstore.Store
	feePercent float64
	now        func() time.Time
}

func NewService(store docstore.Store, feePercent float64) *Service {
	return &Service{store: store, feePercent: feePercent, now: time.Now}
}

// Record appends a transaction and returns it with its id.
func (s *Service) Record(ctx context.Context, userID string, typ TxType, amount decimal.Decimal, loadID string) (*Transaction, error) {
	if !typ.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	tx := &Transaction{UserID: userID, Type: typ, Amount: amount.Round(2), LoadID: loadID, CreatedAt: s.now()}
	id, err := s.store.Add(ctx, CollectionTransactions, docstore.Document{
		"userId":    tx.UserID,
		"type":      string(tx.Type),
		"amount":    tx.Amount.StringFixed(2),
		"loadId":    tx.LoadID,
		"createdAt": tx.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record wallet transaction: %w", err)
	}
	tx.ID = id
	return tx, nil
}

// Transactions lists a user's transactions, oldest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: CollectionTransactions,
		Filters:    []docstore.Filter{docstore.Where("userId", docstore.OpEq, userID)},
		OrderBy:    "createdAt",
	})
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	out := make([]Transaction, 0, len(snaps))
	for _, snap := range snaps {
		tx, err := decodeTransaction(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Summary summarizes a user's wallet at the configured fee.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	txs, err := s.Transactions(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(txs, s.feePercent), nil
}

func decodeTransaction(snap docstore.Snapshot) (Transaction, error) {
	tx := Transaction{ID: snap.ID}
	tx.UserID, _ = snap.Data["userId"].(string)
	tx.LoadID, _ = snap.Data["loadId"].(string)
	t, _ := snap.Data["type"].(string)
	tx.Type = TxType(strings.ToLower(t))

	switch v := snap.Data["amount"].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return tx, fmt.Errorf("wallet transaction %s: bad amount %q", snap.ID, v)
		}
		tx.Amount = d
	case float64:
		tx.Amount = decimal.NewFromFloat(v)
	default:
		return tx, fmt.Errorf("wallet transaction %s: missing amount", snap.ID)
	}
	if created, ok := docstore.ParseTime(snap.Data["createdAt"]); ok {
		tx.CreatedAt = created
	}
	return tx, nil
}

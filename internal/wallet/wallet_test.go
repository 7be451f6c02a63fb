package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFee(t *testing.T) {
	tests := []struct {
		amount  string
		percent float64
		want    string
	}{
		{"1200", 10, "120"},
		{"99.99", 10, "10"},
		{"33.33", 7.5, "2.5"},
		{"0.05", 10, "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.True(t, dec(tt.want).Equal(Fee(dec(tt.amount), tt.percent)), Fee(dec(tt.amount), tt.percent).String())
		})
	}
}

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Type: TxPayment, Amount: dec("1200")},
		{Type: TxPayment, Amount: dec("850.50")},
		{Type: TxRefund, Amount: dec("200")},
		{Type: TxPayout, Amount: dec("1000")},
		{Type: "adjustment", Amount: dec("5")},
	}
	s := Summarize(txs, 10)

	assert.Equal(t, "2050.5", s.GrossVolume.String())
	assert.Equal(t, "200", s.Refunds.String())
	assert.Equal(t, "185.05", s.PlatformFees.String())
	assert.Equal(t, "1665.45", s.NetEarnings.String())
	assert.Equal(t, "1000", s.Payouts.String())
	assert.Equal(t, "665.45", s.AvailableBalance.String())
	assert.Equal(t, 2, s.Payments)
	assert.Equal(t, 1, s.RefundCount)
	assert.Equal(t, 1, s.PayoutCount)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 10)
	assert.True(t, s.AvailableBalance.IsZero())
	assert.True(t, s.PlatformFees.IsZero())
}

func TestService(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := NewService(store, 10)
	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", TxPayment, dec("1000"), "load-1")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u1", TxRefund, dec("100"), "load-1")
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u2", TxPayment, dec("999"), "load-2")
	require.NoError(t, err)

	txs, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, TxPayment, txs[0].Type)
	assert.Equal(t, "load-1", txs[0].LoadID)
	assert.True(t, txs[0].CreatedAt.Before(txs[1].CreatedAt))

	s, err := svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "90", s.PlatformFees.String())
	assert.Equal(t, "810", s.NetEarnings.String())
}

func TestService_RecordRejects(t *testing.T) {
	svc := NewService(docstore.NewMemoryStore(), 10)
	_, err := svc.Record(context.Background(), "u1", TxPayment, dec("-5"), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Record(context.Background(), "u1", "bonus", dec("5"), "")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestService_ReadsNumericAmounts(t *testing.T) {
	store := docstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), CollectionTransactions, "legacy", docstore.Document{
		"userId": "u1", "type": "PAYMENT", "amount": 250.0,
	}, false))

	s, err := NewService(store, 10).Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "250", s.GrossVolume.String())
	assert.Equal(t, "25", s.PlatformFees.String())
}

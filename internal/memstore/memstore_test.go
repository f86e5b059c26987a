package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	clock *clock.Fake
	store *Store
	shift *domain.Shift
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	s.store = New(s.clock)

	shift, err := s.store.StartShift(s.ctx, &domain.StartShiftRequest{
		CashierID:    1,
		BusinessID:   12,
		StartingCash: money.FromMajor(100),
	})
	s.Require().NoError(err)
	s.shift = shift
}

func (s *StoreSuite) sale(key string, lines ...domain.TransactionItem) *domain.TransactionCommit {
	req := &domain.NewTransaction{
		IdempotencyKey: key,
		ShiftID:        s.shift.ID,
		BusinessID:     12,
		CashierID:      1,
		Timestamp:      s.clock.Now(),
		Items:          lines,
		PaymentMethod:  domain.PaymentCash,
	}
	for _, line := range lines {
		req.Subtotal += line.TotalPrice
		req.Tax += line.TaxAmount
	}
	req.Total = req.Subtotal + req.Tax
	cash := req.Total
	req.CashAmount = &cash

	commit, err := s.store.CreateTransaction(s.ctx, req)
	s.Require().NoError(err)
	return commit
}

func line(productID string, qty int32, unit money.Money) domain.TransactionItem {
	return domain.TransactionItem{
		ProductID:   productID,
		ProductName: productID,
		Quantity:    qty,
		UnitPrice:   unit,
		TotalPrice:  unit.Mul(qty),
	}
}

func (s *StoreSuite) TestOneActiveShiftPerCashier() {
	_, err := s.store.StartShift(s.ctx, &domain.StartShiftRequest{CashierID: 1, BusinessID: 12})
	s.ErrorIs(err, domain.ErrShiftAlreadyActive)

	other, err := s.store.StartShift(s.ctx, &domain.StartShiftRequest{CashierID: 2, BusinessID: 12})
	s.Require().NoError(err)
	s.Equal(domain.ShiftActive, other.Status)
}

func (s *StoreSuite) TestCreateTransactionUpdatesShift() {
	commit := s.sale("k1", line("apple", 3, money.FromPence(150)))

	s.Equal("R12-20261019-00001", commit.Transaction.ReceiptNumber)
	s.Equal(money.FromPence(450), commit.Shift.TotalSales)
	s.Equal(int32(1), commit.Shift.TotalTransactions)
	s.Equal(int32(2), commit.Shift.Version)

	byReceipt, err := s.store.GetTransactionByReceipt(s.ctx, commit.Transaction.ReceiptNumber)
	s.Require().NoError(err)
	s.Equal(commit.Transaction.ID, byReceipt.ID)
}

func (s *StoreSuite) TestCreateTransactionIsIdempotent() {
	first := s.sale("same-key", line("apple", 1, money.FromPence(150)))
	second := s.sale("same-key", line("apple", 1, money.FromPence(150)))

	s.Equal(first.Transaction.ID, second.Transaction.ID)
	s.Equal(first.Transaction.ReceiptNumber, second.Transaction.ReceiptNumber)
	s.Equal(int32(1), second.Shift.TotalTransactions)
	s.Equal(money.FromPence(150), second.Shift.TotalSales)
}

func (s *StoreSuite) TestEndShiftRecomputesAndIsNoopTwice() {
	s.sale("k1", line("apple", 2, money.FromPence(500)))

	ended, err := s.store.EndShift(s.ctx, s.shift.ID, &domain.EndShiftRequest{FinalCashDrawer: money.FromPence(10950)})
	s.Require().NoError(err)
	s.Equal(domain.ShiftEnded, ended.Status)
	s.Equal(money.FromPence(11000), *ended.ExpectedCashDrawer)
	s.Equal(money.FromPence(-50), *ended.CashVariance)

	again, err := s.store.EndShift(s.ctx, s.shift.ID, &domain.EndShiftRequest{FinalCashDrawer: money.FromMajor(1), AutoEnded: true})
	s.Require().NoError(err)
	s.Equal(ended.Version, again.Version)
	s.Equal(money.FromPence(10950), *again.FinalCashDrawer)
	s.False(again.RequiresApproval)

	_, err = s.store.CreateTransaction(s.ctx, &domain.NewTransaction{
		IdempotencyKey: "late",
		ShiftID:        s.shift.ID,
		BusinessID:     12,
		CashierID:      1,
		Items:          []domain.TransactionItem{line("apple", 1, 100)},
		Subtotal:       100,
		Total:          100,
		PaymentMethod:  domain.PaymentCash,
		CashAmount:     ptr(money.Money(100)),
	})
	s.ErrorIs(err, domain.ErrShiftEnded)
}

func (s *StoreSuite) TestAutoEndedShiftRequiresApproval() {
	s.sale("k1", line("apple", 1, money.FromMajor(20)))

	ended, err := s.store.EndShift(s.ctx, s.shift.ID, &domain.EndShiftRequest{AutoEnded: true})
	s.Require().NoError(err)
	s.True(ended.RequiresApproval)
	s.Equal(*ended.ExpectedCashDrawer, *ended.FinalCashDrawer)
	s.Equal(money.Zero, *ended.CashVariance)
}

func (s *StoreSuite) TestRefundGuardsRemainingQuantity() {
	sale := s.sale("k1", line("mug", 3, money.FromPence(800)))
	itemID := sale.Transaction.Items[0].ID

	refund := func(key string, qty int32) (*domain.RefundCommit, error) {
		return s.store.CreateRefund(s.ctx, &domain.NewRefund{
			IdempotencyKey:        key,
			OriginalTransactionID: sale.Transaction.ID,
			ShiftID:               s.shift.ID,
			CashierID:             1,
			BusinessID:            12,
			Items:                 []domain.RefundItem{{OriginalItemID: itemID, RefundQuantity: qty, Reason: "破损"}},
			Method:                domain.RefundCash,
			Timestamp:             s.clock.Now(),
		})
	}

	commit, err := refund("r1", 2)
	s.Require().NoError(err)
	s.Equal(money.FromPence(1600), commit.Refund.TotalAmount)
	s.Equal(int32(2), commit.Original.Items[0].RefundedQuantity)
	s.Equal(domain.StatusPartiallyRefunded, commit.Original.Status)
	s.Equal(money.FromPence(-1600), commit.Transaction.Total)
	s.Equal(domain.TransactionRefund, commit.Transaction.Type)
	s.Equal(money.FromPence(1600), commit.Shift.TotalRefunds)
	s.Equal(money.FromPence(2400), commit.Shift.TotalSales)

	_, err = refund("r2", 2)
	s.ErrorIs(err, domain.ErrOverRefund)

	original, err := s.store.GetTransactionByID(s.ctx, sale.Transaction.ID)
	s.Require().NoError(err)
	s.Equal(int32(2), original.Items[0].RefundedQuantity)

	commit, err = refund("r3", 1)
	s.Require().NoError(err)
	s.Equal(domain.StatusRefunded, commit.Original.Status)
	s.Equal(int32(2), commit.Shift.RefundCount)
}

func (s *StoreSuite) TestRefundIsAtomicAcrossLines() {
	sale := s.sale("k1", line("mug", 1, money.FromPence(800)), line("tea", 2, money.FromPence(300)))

	_, err := s.store.CreateRefund(s.ctx, &domain.NewRefund{
		IdempotencyKey:        "r1",
		OriginalTransactionID: sale.Transaction.ID,
		ShiftID:               s.shift.ID,
		CashierID:             1,
		BusinessID:            12,
		Items: []domain.RefundItem{
			{OriginalItemID: sale.Transaction.Items[0].ID, RefundQuantity: 1},
			{OriginalItemID: sale.Transaction.Items[1].ID, RefundQuantity: 3},
		},
		Method: domain.RefundOriginal,
	})
	s.ErrorIs(err, domain.ErrOverRefund)

	original, err := s.store.GetTransactionByID(s.ctx, sale.Transaction.ID)
	s.Require().NoError(err)
	s.False(original.HasRefunds())

	stats, err := s.store.GetShiftStats(s.ctx, s.shift.ID)
	s.Require().NoError(err)
	s.Equal(money.Zero, stats.TotalRefunds)
}

func (s *StoreSuite) TestVoid() {
	sale := s.sale("k1", line("apple", 1, money.FromPence(150)))

	commit, err := s.store.VoidTransaction(s.ctx, &domain.NewVoid{
		IdempotencyKey:        "v1",
		OriginalTransactionID: sale.Transaction.ID,
		ShiftID:               s.shift.ID,
		CashierID:             1,
		Reason:                "扫错商品",
	})
	s.Require().NoError(err)
	s.Equal(domain.StatusVoided, commit.Original.Status)
	s.Equal(domain.TransactionVoid, commit.Void.Type)
	s.Equal(int32(1), commit.Shift.TotalVoids)
	s.Equal(money.FromPence(150), commit.Shift.TotalSales)

	_, err = s.store.VoidTransaction(s.ctx, &domain.NewVoid{
		IdempotencyKey:        "v2",
		OriginalTransactionID: sale.Transaction.ID,
		ShiftID:               s.shift.ID,
		CashierID:             1,
	})
	s.ErrorIs(err, domain.ErrVoidNotAllowed)
}

func (s *StoreSuite) TestListRecentTransactionsNewestFirst() {
	s.sale("k1", line("a", 1, 100))
	s.clock.Advance(time.Minute)
	s.sale("k2", line("b", 1, 100))
	s.clock.Advance(time.Minute)
	latest := s.sale("k3", line("c", 1, 100))

	txns, err := s.store.ListRecentTransactions(s.ctx, s.shift.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(latest.Transaction.ID, txns[0].ID)
}

func TestMarkScheduleMissed(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC))
	store := New(clk)

	elapsed := &domain.Schedule{
		StaffID:    1,
		BusinessID: 12,
		StartTime:  time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateSchedule(ctx, elapsed))
	pending := &domain.Schedule{
		StaffID:    2,
		BusinessID: 12,
		StartTime:  time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 10, 19, 22, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateSchedule(ctx, pending))

	missed, err := store.MarkScheduleMissed(ctx, elapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleMissed, missed.Status)

	notYet, err := store.MarkScheduleMissed(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleUpcoming, notYet.Status)
}

func ptr[T any](v T) *T {
	return &v
}

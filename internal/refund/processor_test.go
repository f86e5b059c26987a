package refund

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ledger"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/memstore"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports/mocks"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receipt"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/shift"
)

type ProcessorSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *clock.Fake
	store     *memstore.Store
	manager   *shift.Manager
	restocker *mocks.Restocker
	processor *Processor
	sale      *domain.Transaction
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctx = context.Background()
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s.clock = clock.NewFake(start)
	s.store = memstore.New(s.clock)

	m, err := shift.NewManager(s.store, s.clock, shift.DefaultPolicy(), 1, 12)
	s.Require().NoError(err)
	_, err = m.Start(s.ctx, shift.StartOptions{StartingCash: "100", Unscheduled: true})
	s.Require().NoError(err)
	s.manager = m

	s.sale = s.sell("sale-1")

	s.restocker = new(mocks.Restocker)
	receipts := receipt.NewService(mocks.ReadyPrinter(), s.store, receipt.WithRetry(1, 0))
	s.processor = NewProcessor(s.manager, s.store, s.store, s.restocker, receipts, s.clock, nil)
}

// sell 提交一笔三个杯子的销售，每个 £8.00
func (s *ProcessorSuite) sell(key string) *domain.Transaction {
	active, err := s.manager.Active()
	s.Require().NoError(err)

	cash := money.FromMajor(30)
	commit, err := s.store.CreateTransaction(s.ctx, &domain.NewTransaction{
		IdempotencyKey: key,
		ShiftID:        active.ID,
		BusinessID:     12,
		CashierID:      1,
		Timestamp:      s.clock.Now(),
		Items: []domain.TransactionItem{
			{ProductID: "mug", ProductName: "马克杯", Quantity: 3, UnitPrice: money.FromMajor(8), TotalPrice: money.FromMajor(24)},
		},
		Subtotal:      money.FromMajor(24),
		Total:         money.FromMajor(24),
		PaymentMethod: domain.PaymentCash,
		CashAmount:    &cash,
		Change:        money.FromMajor(6),
	})
	s.Require().NoError(err)
	s.manager.Observe(commit.Shift)
	return commit.Transaction
}

func (s *ProcessorSuite) item(qty int32, restockable bool) []domain.RefundItem {
	return []domain.RefundItem{{
		OriginalItemID: s.sale.Items[0].ID,
		RefundQuantity: qty,
		Reason:         "顾客不满意",
		Restockable:    restockable,
	}}
}

func (s *ProcessorSuite) TestLookupByReceiptOrID() {
	byReceipt, err := s.processor.Lookup(s.ctx, s.sale.ReceiptNumber)
	s.Require().NoError(err)
	s.Equal(s.sale.ID, byReceipt.ID)

	byID, err := s.processor.Lookup(s.ctx, " "+strconv.FormatInt(s.sale.ID, 10)+" ")
	s.Require().NoError(err)
	s.Equal(s.sale.ReceiptNumber, byID.ReceiptNumber)

	_, err = s.processor.Lookup(s.ctx, "R12-20261019-99999")
	s.ErrorIs(err, domain.ErrTransactionNotFound)

	_, err = s.processor.Lookup(s.ctx, "")
	s.ErrorIs(err, domain.ErrInvalidRequest)
}

func (s *ProcessorSuite) TestPartialRefundThenOverRefund() {
	res, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(2, false), "顾客不满意", domain.RefundCash)
	s.Require().NoError(err)
	s.Equal(money.FromMajor(16), res.Refund.TotalAmount)
	s.Equal(int32(2), res.Original.Items[0].RefundedQuantity)
	s.Equal(domain.StatusPartiallyRefunded, res.Original.Status)
	s.True(res.Receipt.Printed)
	s.Zero(res.Restocked)

	_, err = s.processor.Refund(s.ctx, s.sale.ID, s.item(2, false), "再退两个", domain.RefundCash)
	s.ErrorIs(err, domain.ErrOverRefund)
	s.Contains(err.Error(), "最多还能退 1 件")

	original, err := s.store.GetTransactionByID(s.ctx, s.sale.ID)
	s.Require().NoError(err)
	s.Equal(int32(2), original.Items[0].RefundedQuantity)
}

func (s *ProcessorSuite) TestRefundUpdatesShiftWithoutTouchingSales() {
	_, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(1, false), "", domain.RefundOriginal)
	s.Require().NoError(err)

	active, err := s.manager.Active()
	s.Require().NoError(err)
	s.Equal(money.FromMajor(24), active.TotalSales)
	s.Equal(money.FromMajor(8), active.TotalRefunds)
	s.Equal(int32(1), active.RefundCount)
	s.Equal(money.FromMajor(124), ledger.Expected(active))
	s.Equal(money.FromMajor(16), ledger.NetSales(active))
}

func (s *ProcessorSuite) TestZeroQuantityIsRejected() {
	_, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(0, false), "", domain.RefundCash)
	s.ErrorIs(err, domain.ErrOverRefund)
}

func (s *ProcessorSuite) TestRestockableLinesArePublished() {
	s.restocker.On("Restock", mock.Anything, int64(12), []domain.RestockItem{
		{ProductID: "mug", Quantity: 1, Reason: "顾客不满意"},
	}).Return(nil).Once()

	res, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(1, true), "", domain.RefundCash)
	s.Require().NoError(err)
	s.Equal(1, res.Restocked)
	s.restocker.AssertExpectations(s.T())
}

func (s *ProcessorSuite) TestRestockFailureDoesNotRollBack() {
	s.restocker.On("Restock", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("队列不可用"))

	res, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(3, true), "", domain.RefundCash)
	s.Require().NoError(err)
	s.Zero(res.Restocked)
	s.Equal(domain.StatusRefunded, res.Original.Status)
}

func (s *ProcessorSuite) TestRefundAttributedToCurrentShift() {
	_, err := s.manager.End(s.ctx, "124", "")
	s.Require().NoError(err)

	_, err = s.processor.Refund(s.ctx, s.sale.ID, s.item(1, false), "", domain.RefundCash)
	s.ErrorIs(err, domain.ErrShiftEnded)

	next, err := s.manager.Start(s.ctx, shift.StartOptions{StartingCash: "50", Unscheduled: true})
	s.Require().NoError(err)

	res, err := s.processor.Refund(s.ctx, s.sale.ID, s.item(1, false), "", domain.RefundCash)
	s.Require().NoError(err)
	s.Equal(next.ID, res.Refund.ShiftID)
	s.NotEqual(s.sale.ShiftID, res.Refund.ShiftID)
}

func (s *ProcessorSuite) TestVoidedSaleCannotBeRefunded() {
	_, err := s.store.VoidTransaction(s.ctx, &domain.NewVoid{
		IdempotencyKey:        "v1",
		OriginalTransactionID: s.sale.ID,
		ShiftID:               s.sale.ShiftID,
		CashierID:             1,
	})
	s.Require().NoError(err)

	_, err = s.processor.Refund(s.ctx, s.sale.ID, s.item(1, false), "", domain.RefundCash)
	s.ErrorIs(err, domain.ErrInvalidRefund)
}

func TestAdjustQuantity(t *testing.T) {
	item := &domain.TransactionItem{Quantity: 3, RefundedQuantity: 2}
	assert.Equal(t, int32(0), AdjustQuantity(item, -1))
	assert.Equal(t, int32(1), AdjustQuantity(item, 1))
	assert.Equal(t, int32(1), AdjustQuantity(item, 5))
}

func TestRefundableLines(t *testing.T) {
	lines := RefundableLines(&domain.Transaction{Items: []domain.TransactionItem{
		{ID: 4, ProductName: "马克杯", Quantity: 3, RefundedQuantity: 1},
	}})
	assert.Equal(t, int32(2), lines[0].Remaining)
	assert.Equal(t, int64(4), lines[0].ItemID)
}

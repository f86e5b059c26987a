package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
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
	gateway   *mocks.PaymentGateway
	printer   *mocks.Printer
	processor *Processor
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctx = context.Background()
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	s.clock = clock.NewFake(start)
	s.store = memstore.New(s.clock)
	s.Require().NoError(s.store.CreateSchedule(s.ctx, &domain.Schedule{
		StaffID: 1, BusinessID: 12, StartTime: start, EndTime: start.Add(8 * time.Hour),
	}))

	m, err := shift.NewManager(s.store, s.clock, shift.DefaultPolicy(), 1, 12)
	s.Require().NoError(err)
	_, err = m.Start(s.ctx, shift.StartOptions{StartingCash: "100"})
	s.Require().NoError(err)
	s.manager = m

	s.gateway = new(mocks.PaymentGateway)
	s.printer = mocks.ReadyPrinter()
	receipts := receipt.NewService(s.printer, s.store, receipt.WithRetry(2, 0))
	s.processor = NewProcessor(s.manager, s.store, s.gateway, receipts, s.clock, nil)
}

// cart 总计 £12.50：两杯咖啡 £5.00 + 税 £2.50
func (s *ProcessorSuite) cart() *domain.Cart {
	cart := domain.NewCart()
	cart.Add(domain.CartLine{ProductID: "coffee", ProductName: "咖啡", Quantity: 2, UnitPrice: money.FromPence(500), TaxAmount: money.FromPence(250)})
	return cart
}

func (s *ProcessorSuite) approveCard(amount money.Money) {
	s.gateway.On("CreateIntent", mock.Anything, amount, mock.Anything, mock.Anything).
		Return(&domain.PaymentIntent{ID: "pi_1", Amount: amount}, nil).Once()
	s.gateway.On("ProcessCardPayment", mock.Anything, "pi_1").
		Return(&domain.PaymentResult{IntentID: "pi_1", Approved: true, Amount: amount, Reference: "AUTH-1"}, nil).Once()
}

func (s *ProcessorSuite) committed() []*domain.Transaction {
	active, err := s.manager.Active()
	s.Require().NoError(err)
	txns, err := s.store.ListRecentTransactions(s.ctx, active.ID, 0)
	s.Require().NoError(err)
	return txns
}

func (s *ProcessorSuite) TestCashExactAmount() {
	res, err := s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromPence(1250)})
	s.Require().NoError(err)
	s.Equal(money.Zero, res.Change)
	s.True(res.Receipt.Printed)
	s.Equal(res.Transaction.ReceiptNumber, res.Receipt.ReceiptNumber)
}

func (s *ProcessorSuite) TestCashWithChange() {
	cart := s.cart()
	res, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromPence(1750)})
	s.Require().NoError(err)
	s.Equal(money.FromPence(500), res.Change)
	s.Equal("5.00", res.Change.String())
	s.True(cart.IsEmpty())

	stats, err := s.manager.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(money.FromPence(1250), stats.TotalSales)
	s.Equal(int32(1), stats.TotalTransactions)
}

func (s *ProcessorSuite) TestCashShortfallReportsExactAmount() {
	cart := s.cart()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromMajor(10)})
	s.ErrorIs(err, domain.ErrInsufficientCash)
	s.Contains(err.Error(), "£2.50")

	s.Empty(s.committed())
	s.Len(cart.Lines, 1)
}

func (s *ProcessorSuite) TestRejectsInvalidCart() {
	_, err := s.processor.Complete(s.ctx, domain.NewCart(), domain.PaymentSelection{Method: domain.PaymentCash})
	s.ErrorIs(err, domain.ErrEmptyCart)

	cart := domain.NewCart()
	cart.Add(domain.CartLine{ProductID: "free", ProductName: "赠品", Quantity: 1, UnitPrice: 0})
	_, err = s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCash})
	s.ErrorIs(err, domain.ErrInvalidCartLine)
}

func (s *ProcessorSuite) TestRequiresActiveShift() {
	_, err := s.manager.End(s.ctx, "100", "")
	s.Require().NoError(err)

	_, err = s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromMajor(20)})
	s.ErrorIs(err, domain.ErrShiftEnded)
}

func (s *ProcessorSuite) TestCardPayment() {
	s.approveCard(money.FromPence(1250))

	res, err := s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentCard})
	s.Require().NoError(err)
	s.Equal(domain.PaymentCard, res.Transaction.PaymentMethod)
	s.Equal(money.FromPence(1250), *res.Transaction.CardAmount)
	s.Equal("AUTH-1", res.Transaction.PaymentReference)
	s.gateway.AssertExpectations(s.T())
}

func (s *ProcessorSuite) TestMobileIsRecordedAsCard() {
	s.approveCard(money.FromPence(1250))

	res, err := s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentMobile})
	s.Require().NoError(err)
	s.Equal(domain.PaymentCard, res.Transaction.PaymentMethod)
}

func (s *ProcessorSuite) TestMixedPayment() {
	s.approveCard(money.FromPence(750))

	res, err := s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentMixed, CashAmount: money.FromMajor(5)})
	s.Require().NoError(err)
	s.Equal(money.FromMajor(5), *res.Transaction.CashAmount)
	s.Equal(money.FromPence(750), *res.Transaction.CardAmount)

	_, err = s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentMixed, CashAmount: money.FromMajor(20)})
	s.ErrorIs(err, domain.ErrInvalidPayment)
}

func (s *ProcessorSuite) TestDeclinedCardCommitsNothing() {
	s.gateway.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.PaymentIntent{ID: "pi_2"}, nil)
	s.gateway.On("ProcessCardPayment", mock.Anything, "pi_2").
		Return(&domain.PaymentResult{IntentID: "pi_2", Approved: false, Message: "余额不足"}, nil)
	s.gateway.On("CancelPayment", mock.Anything, "pi_2").Return(nil)

	cart := s.cart()
	before := cart.Fingerprint()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrPaymentDeclined)
	s.True(domain.IsRetryable(err))
	s.Contains(err.Error(), "余额不足")

	s.Empty(s.committed())
	s.Equal(before, cart.Fingerprint())
	s.gateway.AssertCalled(s.T(), "CancelPayment", mock.Anything, "pi_2")

	active, err := s.manager.Active()
	s.Require().NoError(err)
	s.Zero(active.TotalTransactions)
}

func (s *ProcessorSuite) TestGatewayFailureAfterIntent() {
	s.gateway.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.PaymentIntent{ID: "pi_3"}, nil)
	s.gateway.On("ProcessCardPayment", mock.Anything, "pi_3").Return(nil, errors.New("读卡器断开"))
	s.gateway.On("CancelPayment", mock.Anything, "pi_3").Return(nil)

	cart := s.cart()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrPaymentFailed)
	s.Empty(s.committed())
	s.Len(cart.Lines, 1)
}

func (s *ProcessorSuite) TestOperatorCancelsCardPayment() {
	ctx, cancel := context.WithCancel(s.ctx)

	s.gateway.On("CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.PaymentIntent{ID: "pi_4"}, nil)
	s.gateway.On("ProcessCardPayment", mock.Anything, "pi_4").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	s.gateway.On("CancelPayment", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), "pi_4").Return(nil)

	cart := s.cart()
	_, err := s.processor.Complete(ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrPaymentCanceled)
	s.Empty(s.committed())
	s.Len(cart.Lines, 1)
	s.gateway.AssertExpectations(s.T())
}

func (s *ProcessorSuite) TestPrintFailureKeepsTransaction() {
	offline := new(mocks.Printer)
	offline.On("GetStatus", mock.Anything).Return(nil, errors.New("打印机离线"))
	receipts := receipt.NewService(offline, s.store, receipt.WithRetry(3, 0))
	p := NewProcessor(s.manager, s.store, s.gateway, receipts, s.clock, nil)

	res, err := p.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromMajor(20)})
	s.Require().NoError(err)
	s.True(res.Receipt.Skipped)
	s.Equal(3, res.Receipt.Attempts)

	found, err := s.store.GetTransactionByReceipt(s.ctx, res.Transaction.ReceiptNumber)
	s.Require().NoError(err)
	s.Equal(res.Transaction.ID, found.ID)

	stats, err := s.manager.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int32(1), stats.TotalTransactions)
}

func (s *ProcessorSuite) TestCommitFailureRetriesWithoutSecondCharge() {
	s.approveCard(money.FromPence(1250))
	s.store.FailNextCommit(errors.New("网络中断"))

	cart := s.cart()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrStoreUnavailable)
	s.True(s.processor.HasPending())
	s.Len(cart.Lines, 1)

	res, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.Require().NoError(err)
	s.Equal("AUTH-1", res.Transaction.PaymentReference)
	s.False(s.processor.HasPending())

	s.gateway.AssertNumberOfCalls(s.T(), "CreateIntent", 1)
	s.gateway.AssertNumberOfCalls(s.T(), "ProcessCardPayment", 1)
	s.Len(s.committed(), 1)
}

func (s *ProcessorSuite) TestEditedCartKeepsPaidCommit() {
	s.approveCard(money.FromPence(1250))
	s.store.FailNextCommit(errors.New("网络中断"))

	cart := s.cart()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrStoreUnavailable)

	cart.Add(domain.CartLine{ProductID: "tea", ProductName: "茶", Quantity: 1, UnitPrice: money.FromPence(300)})
	_, err = s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrPaymentPending)

	var pending *domain.PendingPaymentError
	s.Require().ErrorAs(err, &pending)
	s.Equal("AUTH-1", pending.Payment.PaymentReference)
	s.Equal(money.FromPence(1250), pending.Payment.Amount)
	s.True(s.processor.HasPending())
	s.True(s.processor.Busy())

	s.gateway.AssertNumberOfCalls(s.T(), "ProcessCardPayment", 1)
	s.gateway.AssertNotCalled(s.T(), "CancelPayment", mock.Anything, mock.Anything)
	s.Empty(s.committed())
}

func (s *ProcessorSuite) TestAbandonCancelsPaidCommit() {
	s.approveCard(money.FromPence(1250))
	s.store.FailNextCommit(errors.New("网络中断"))

	cart := s.cart()
	_, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.ErrorIs(err, domain.ErrStoreUnavailable)

	s.gateway.On("CancelPayment", mock.Anything, "pi_1").Return(errors.New("终端离线")).Once()
	_, err = s.processor.Abandon(s.ctx)
	s.ErrorIs(err, domain.ErrPaymentFailed)
	s.True(s.processor.HasPending())

	s.gateway.On("CancelPayment", mock.Anything, "pi_1").Return(nil).Once()
	payment, err := s.processor.Abandon(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(payment)
	s.Equal("AUTH-1", payment.PaymentReference)
	s.False(s.processor.HasPending())
	s.False(s.processor.Busy())

	// 撤销之后可以修改购物车重新结账
	cart.Add(domain.CartLine{ProductID: "tea", ProductName: "茶", Quantity: 1, UnitPrice: money.FromPence(300)})
	s.approveCard(money.FromPence(1550))
	res, err := s.processor.Complete(s.ctx, cart, domain.PaymentSelection{Method: domain.PaymentCard})
	s.Require().NoError(err)
	s.Equal(money.FromPence(1550), res.Transaction.Total)
	s.Len(s.committed(), 1)
	s.gateway.AssertNumberOfCalls(s.T(), "CancelPayment", 2)
}

func (s *ProcessorSuite) TestAbandonWithoutPending() {
	payment, err := s.processor.Abandon(s.ctx)
	s.NoError(err)
	s.Nil(payment)
	s.False(s.processor.Busy())
}

func (s *ProcessorSuite) TestVoid() {
	res, err := s.processor.Complete(s.ctx, s.cart(), domain.PaymentSelection{Method: domain.PaymentCash, CashAmount: money.FromMajor(20)})
	s.Require().NoError(err)

	commit, err := s.processor.Void(s.ctx, res.Transaction.ID, "顾客改变主意")
	s.Require().NoError(err)
	s.Equal(domain.StatusVoided, commit.Original.Status)

	active, err := s.manager.Active()
	s.Require().NoError(err)
	s.Equal(int32(1), active.TotalVoids)
	s.Equal(money.FromPence(1250), active.TotalSales)
}

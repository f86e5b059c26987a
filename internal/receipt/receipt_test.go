package receipt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/memstore"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports/mocks"
)

func committedSale(t *testing.T, store *memstore.Store) *domain.Transaction {
	t.Helper()
	ctx := context.Background()

	shift, err := store.StartShift(ctx, &domain.StartShiftRequest{CashierID: 1, BusinessID: 3, StartingCash: money.FromMajor(50)})
	require.NoError(t, err)

	cash := money.FromMajor(10)
	commit, err := store.CreateTransaction(ctx, &domain.NewTransaction{
		IdempotencyKey: "k1",
		ShiftID:        shift.ID,
		BusinessID:     3,
		CashierID:      1,
		Timestamp:      time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Items: []domain.TransactionItem{
			{ProductID: "tea", ProductName: "红茶", Quantity: 2, UnitPrice: 250, TotalPrice: 500, TaxAmount: 100},
		},
		Subtotal:      500,
		Tax:           100,
		Total:         600,
		PaymentMethod: domain.PaymentCash,
		CashAmount:    &cash,
		Change:        400,
	})
	require.NoError(t, err)
	return commit.Transaction
}

func TestBuild(t *testing.T) {
	cash := money.FromMajor(10)
	data := Build(&domain.Transaction{
		ReceiptNumber: "R3-20261019-00001",
		ShiftID:       9,
		Items:         []domain.TransactionItem{{ProductName: "红茶", Quantity: 2, UnitPrice: 250, TotalPrice: 500}},
		Subtotal:      500,
		Tax:           100,
		Total:         600,
		PaymentMethod: domain.PaymentCash,
		CashAmount:    &cash,
		Change:        400,
		Type:          domain.TransactionSale,
	}, false)

	assert.Equal(t, "6.00", data.Total)
	assert.Equal(t, "10.00", data.Tendered)
	assert.Equal(t, "4.00", data.Change)
	assert.Equal(t, "9", data.Extra["shiftID"])
	require.Len(t, data.Lines, 1)
	assert.Equal(t, "2.50", data.Lines[0].UnitPrice)
}

func TestDeliverPrintsOnce(t *testing.T) {
	printer := mocks.ReadyPrinter()
	svc := NewService(printer, nil, WithRetry(3, 0))

	d := svc.Deliver(context.Background(), &domain.ReceiptData{ReceiptNumber: "R1"})
	assert.True(t, d.Printed)
	assert.False(t, d.Skipped)
	assert.Equal(t, 1, d.Attempts)
	printer.AssertNumberOfCalls(t, "Print", 1)
}

func TestDeliverRetriesThenSkips(t *testing.T) {
	printer := new(mocks.Printer)
	printer.On("GetStatus", mock.Anything).Return(&domain.PrinterStatus{Online: true, PaperOut: true, StatusText: "缺纸"}, nil)
	svc := NewService(printer, nil, WithRetry(3, 0))

	d := svc.Deliver(context.Background(), &domain.ReceiptData{ReceiptNumber: "R1"})
	assert.False(t, d.Printed)
	assert.True(t, d.Skipped)
	assert.Equal(t, 3, d.Attempts)
	assert.Contains(t, d.Error, "缺纸")
	printer.AssertNotCalled(t, "Print", mock.Anything, mock.Anything)
}

func TestDeliverRecoversOnRetry(t *testing.T) {
	printer := new(mocks.Printer)
	printer.On("GetStatus", mock.Anything).Return(&domain.PrinterStatus{Online: true}, nil)
	printer.On("Print", mock.Anything, mock.Anything).Return(errors.New("卡纸")).Once()
	printer.On("Print", mock.Anything, mock.Anything).Return(nil).Once()
	svc := NewService(printer, nil, WithRetry(3, 0))

	d := svc.Deliver(context.Background(), &domain.ReceiptData{ReceiptNumber: "R1"})
	assert.True(t, d.Printed)
	assert.Equal(t, 2, d.Attempts)
}

func TestReprintUsesAssignedReceiptNumber(t *testing.T) {
	store := memstore.New(clock.NewFake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	txn := committedSale(t, store)

	printer := new(mocks.Printer)
	printer.On("GetStatus", mock.Anything).Return(&domain.PrinterStatus{Online: true}, nil)
	printer.On("Print", mock.Anything, mock.MatchedBy(func(r *domain.ReceiptData) bool {
		return r.ReceiptNumber == txn.ReceiptNumber && r.Reprint
	})).Return(nil)

	svc := NewService(printer, store, WithRetry(2, 0))
	d, err := svc.Reprint(context.Background(), txn.ReceiptNumber)
	require.NoError(t, err)
	assert.True(t, d.Printed)

	_, err = svc.Reprint(context.Background(), "R3-20261019-99999")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestEmail(t *testing.T) {
	store := memstore.New(clock.NewFake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	txn := committedSale(t, store)

	mailer := new(mocks.ReceiptMailer)
	mailer.On("SendReceipt", mock.Anything, "guest@example.com", mock.MatchedBy(func(r *domain.ReceiptData) bool {
		return r.ReceiptNumber == txn.ReceiptNumber
	})).Return(nil)

	svc := NewService(mocks.ReadyPrinter(), store, WithMailer(mailer))
	require.NoError(t, svc.Email(context.Background(), txn.ReceiptNumber, "guest@example.com"))
	mailer.AssertExpectations(t)

	noMailer := NewService(mocks.ReadyPrinter(), store)
	assert.ErrorIs(t, noMailer.Email(context.Background(), txn.ReceiptNumber, "guest@example.com"), domain.ErrPublishFailed)
}

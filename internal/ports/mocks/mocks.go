// Package mocks 提供外部协作方的 testify 模拟实现
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type PaymentGateway struct {
	mock.Mock
}

func (m *PaymentGateway) CreateIntent(ctx context.Context, amount money.Money, method domain.PaymentMethod, reference string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, amount, method, reference)
	intent, _ := args.Get(0).(*domain.PaymentIntent)
	return intent, args.Error(1)
}

func (m *PaymentGateway) ProcessCardPayment(ctx context.Context, intentID string) (*domain.PaymentResult, error) {
	args := m.Called(ctx, intentID)
	result, _ := args.Get(0).(*domain.PaymentResult)
	return result, args.Error(1)
}

func (m *PaymentGateway) CancelPayment(ctx context.Context, intentID string) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}

type Printer struct {
	mock.Mock
}

func (m *Printer) GetStatus(ctx context.Context) (*domain.PrinterStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*domain.PrinterStatus)
	return status, args.Error(1)
}

func (m *Printer) Print(ctx context.Context, receipt *domain.ReceiptData) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

type ReceiptMailer struct {
	mock.Mock
}

func (m *ReceiptMailer) SendReceipt(ctx context.Context, to string, receipt *domain.ReceiptData) error {
	args := m.Called(ctx, to, receipt)
	return args.Error(0)
}

type Restocker struct {
	mock.Mock
}

func (m *Restocker) Restock(ctx context.Context, businessID int64, items []domain.RestockItem) error {
	args := m.Called(ctx, businessID, items)
	return args.Error(0)
}

// ReadyPrinter 返回一个总是就绪且打印成功的打印机
func ReadyPrinter() *Printer {
	p := new(Printer)
	p.On("GetStatus", mock.Anything).Return(&domain.PrinterStatus{Online: true, StatusText: "ready"}, nil)
	p.On("Print", mock.Anything, mock.Anything).Return(nil)
	return p
}

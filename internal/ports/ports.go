// Package ports 定义核心依赖的外部协作方。存储服务、支付终端、打印机等都通过这些接口接入，
// 核心只依赖接口，具体实现分别在 remote、memstore、payment、printer、queue 中。
package ports

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

// ShiftService 在没有记录时返回 (nil, nil)
type ShiftService interface {
	GetActiveShift(ctx context.Context, cashierID int64) (*domain.Shift, error)
	GetTodaySchedule(ctx context.Context, cashierID int64, day time.Time) (*domain.Schedule, error)
	// GetSchedule 在排班不存在时返回 domain.ErrScheduleNotFound
	GetSchedule(ctx context.Context, scheduleID int64) (*domain.Schedule, error)
	StartShift(ctx context.Context, req *domain.StartShiftRequest) (*domain.Shift, error)
	EndShift(ctx context.Context, shiftID int64, req *domain.EndShiftRequest) (*domain.Shift, error)
	GetShiftStats(ctx context.Context, shiftID int64) (*domain.ShiftStats, error)
	MarkScheduleMissed(ctx context.Context, scheduleID int64) (*domain.Schedule, error)
}

type TransactionService interface {
	CreateTransaction(ctx context.Context, req *domain.NewTransaction) (*domain.TransactionCommit, error)
	GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error)
	GetTransactionByReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error)
	ListRecentTransactions(ctx context.Context, shiftID int64, limit int) ([]*domain.Transaction, error)
	VoidTransaction(ctx context.Context, req *domain.NewVoid) (*domain.VoidCommit, error)
}

type RefundService interface {
	CreateRefund(ctx context.Context, req *domain.NewRefund) (*domain.RefundCommit, error)
}

// Store 是存储服务完整的能力集合
type Store interface {
	ShiftService
	TransactionService
	RefundService
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount money.Money, method domain.PaymentMethod, reference string) (*domain.PaymentIntent, error)
	ProcessCardPayment(ctx context.Context, intentID string) (*domain.PaymentResult, error)
	CancelPayment(ctx context.Context, intentID string) error
}

type Printer interface {
	GetStatus(ctx context.Context) (*domain.PrinterStatus, error)
	Print(ctx context.Context, receipt *domain.ReceiptData) error
}

type ReceiptMailer interface {
	SendReceipt(ctx context.Context, to string, receipt *domain.ReceiptData) error
}

type Restocker interface {
	Restock(ctx context.Context, businessID int64, items []domain.RestockItem) error
}

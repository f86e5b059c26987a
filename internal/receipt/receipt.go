// Package receipt 负责提交之后的小票流程。小票号在提交时已经分配，
// 打印、重打和邮件都只以小票号为键，不会重新生成
package receipt

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports"
)

// Delivery 是一次打印的结果。打印失败不会影响已经提交的交易，只会在这里体现
type Delivery struct {
	ReceiptNumber string `json:"receiptNumber"`
	Printed       bool   `json:"printed"`
	Skipped       bool   `json:"skipped"`
	Attempts      int    `json:"attempts"`
	Error         string `json:"error,omitempty"`
}

type Service struct {
	printer ports.Printer
	mailer  ports.ReceiptMailer
	txns    ports.TransactionService
	metrics *metrics.Metrics

	retries int
	backoff time.Duration
}

type Option func(*Service)

func WithMailer(mailer ports.ReceiptMailer) Option {
	return func(s *Service) {
		s.mailer = mailer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetry 设置打印的最大尝试次数和每次之间的等待时间
func WithRetry(retries int, backoff time.Duration) Option {
	return func(s *Service) {
		if retries > 0 {
			s.retries = retries
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

func NewService(printer ports.Printer, txns ports.TransactionService, opts ...Option) *Service {
	s := &Service{
		printer: printer,
		txns:    txns,
		retries: 3,
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build 把交易转换为打印和邮件共用的小票内容
func Build(txn *domain.Transaction, reprint bool) *domain.ReceiptData {
	data := &domain.ReceiptData{
		ReceiptNumber: txn.ReceiptNumber,
		Type:          txn.Type,
		BusinessID:    txn.BusinessID,
		CashierID:     txn.CashierID,
		Timestamp:     txn.Timestamp,
		Lines:         make([]domain.ReceiptLine, 0, len(txn.Items)),
		Subtotal:      txn.Subtotal.String(),
		Tax:           txn.Tax.String(),
		Total:         txn.Total.String(),
		PaymentMethod: txn.PaymentMethod,
		Change:        txn.Change.String(),
		Reprint:       reprint,
		Extra:         map[string]string{"shiftID": strconv.FormatInt(txn.ShiftID, 10)},
	}

	for _, item := range txn.Items {
		data.Lines = append(data.Lines, domain.ReceiptLine{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Total:     item.TotalPrice.String(),
		})
	}

	switch {
	case txn.CashAmount != nil && txn.CardAmount != nil:
		data.Tendered = (*txn.CashAmount + *txn.CardAmount).String()
	case txn.CashAmount != nil:
		data.Tendered = txn.CashAmount.String()
	case txn.CardAmount != nil:
		data.Tendered = txn.CardAmount.String()
	}
	if txn.PaymentReference != "" {
		data.Extra["paymentReference"] = txn.PaymentReference
	}
	if txn.OriginalTransactionID != nil {
		data.Extra["originalTransactionID"] = strconv.FormatInt(*txn.OriginalTransactionID, 10)
	}
	if txn.Notes != "" {
		data.Extra["notes"] = txn.Notes
	}

	return data
}

// Deliver 打印小票，最多尝试 retries 次，仍然失败就跳过打印。不会返回错误
func (s *Service) Deliver(ctx context.Context, data *domain.ReceiptData) Delivery {
	d := Delivery{ReceiptNumber: data.ReceiptNumber}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		d.Attempts = attempt

		lastErr = s.tryPrint(ctx, data)
		if lastErr == nil {
			d.Printed = true
			s.metrics.IncrementReceipt("printed")
			return d
		}

		slog.Warn("打印小票失败", "receiptNumber", data.ReceiptNumber, "attempt", attempt, "error", lastErr)

		if attempt == s.retries {
			break
		}
		if err := sleep(ctx, s.backoff); err != nil {
			lastErr = err
			break
		}
	}

	d.Skipped = true
	d.Error = lastErr.Error()
	s.metrics.IncrementReceipt("skipped")
	slog.Error("小票未打印，已跳过", "receiptNumber", data.ReceiptNumber, "attempts", d.Attempts, "error", lastErr)
	return d
}

func (s *Service) tryPrint(ctx context.Context, data *domain.ReceiptData) error {
	status, err := s.printer.GetStatus(ctx)
	if err != nil {
		return domain.ErrPrinterUnavailable.Wrap(err)
	}
	if !status.Ready() {
		return domain.ErrPrinterUnavailable.Withf("打印机未就绪：%s", status.StatusText)
	}
	if err := s.printer.Print(ctx, data); err != nil {
		return domain.ErrPrinterUnavailable.Wrap(err)
	}
	return nil
}

// Reprint 按小票号重新打印，用于打印失败之后的手动补打
func (s *Service) Reprint(ctx context.Context, receiptNumber string) (Delivery, error) {
	txn, err := s.txns.GetTransactionByReceipt(ctx, receiptNumber)
	if err != nil {
		return Delivery{}, domain.FromStore(err)
	}
	return s.Deliver(ctx, Build(txn, true)), nil
}

// Email 把小票放入邮件队列，由邮件服务异步发送
func (s *Service) Email(ctx context.Context, receiptNumber, to string) error {
	if s.mailer == nil {
		return domain.ErrPublishFailed.Withf("未配置邮件队列")
	}
	if to == "" {
		return domain.ErrInvalidRequest.Withf("缺少收件人邮箱")
	}

	txn, err := s.txns.GetTransactionByReceipt(ctx, receiptNumber)
	if err != nil {
		return domain.FromStore(err)
	}

	if err := s.mailer.SendReceipt(ctx, to, Build(txn, false)); err != nil {
		return domain.ErrPublishFailed.Wrap(err)
	}

	s.metrics.IncrementReceipt("emailed")
	slog.Info("小票邮件已加入队列", "receiptNumber", receiptNumber)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

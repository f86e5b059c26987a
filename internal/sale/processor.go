// Package sale 把购物车变成一笔已提交的交易。
// 支付成功之前不会提交任何东西；提交之后的小票打印失败也不会回滚交易
package sale

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receipt"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/shift"
)

type Result struct {
	Transaction *domain.Transaction `json:"transaction"`
	Change      money.Money         `json:"change"`
	Receipt     receipt.Delivery    `json:"receipt"`
}

// pending 是已经完成扣款但提交失败的交易。同一个购物车再次结账时直接用原来的幂等键提交，不会重复扣款。
// 已扣款的 pending 只有提交成功或者 Abandon 撤销扣款之后才会被清除
type pending struct {
	fingerprint string
	shiftID     int64
	req         *domain.NewTransaction
	intentID    string
	paid        bool
}

type Processor struct {
	shifts   *shift.Manager
	txns     ports.TransactionService
	payments ports.PaymentGateway
	receipts *receipt.Service
	clock    clock.Clock
	metrics  *metrics.Metrics

	// 同一时间只处理一笔结账
	mu      sync.Mutex
	pending *pending
}

func NewProcessor(shifts *shift.Manager, txns ports.TransactionService, payments ports.PaymentGateway, receipts *receipt.Service, clk clock.Clock, m *metrics.Metrics) *Processor {
	if clk == nil {
		clk = clock.New()
	}
	return &Processor{
		shifts:   shifts,
		txns:     txns,
		payments: payments,
		receipts: receipts,
		clock:    clk,
		metrics:  m,
	}
}

// Complete 结账。ctx 被取消表示操作员取消了刷卡，此时不会提交交易，购物车保持不变。
// 成功后购物车会被清空
func (p *Processor) Complete(ctx context.Context, cart *domain.Cart, sel domain.PaymentSelection) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.shifts.Active()
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateCart(cart); err != nil {
		return nil, err
	}

	req, paid, err := p.reuse(cart, cur.ID)
	if err != nil {
		return nil, err
	}
	intentID := ""
	if paid {
		intentID = p.pending.intentID
		slog.Info("重新提交之前未完成的交易", "idempotencyKey", req.IdempotencyKey)
	} else {
		if req == nil {
			req = p.newRequest(cart, cur)
		}
		intentID, err = p.resolvePayment(ctx, req, sel)
		if err != nil {
			return nil, err
		}
	}

	// 扣款之后操作员已经不能再取消，提交不受 ctx 取消影响
	commitCtx := context.WithoutCancel(ctx)
	commit, err := p.txns.CreateTransaction(commitCtx, req)
	if err != nil {
		p.pending = &pending{
			fingerprint: cart.Fingerprint(),
			shiftID:     cur.ID,
			req:         req,
			intentID:    intentID,
			paid:        req.PaymentMethod != domain.PaymentCash,
		}
		slog.Error("提交交易失败", "idempotencyKey", req.IdempotencyKey, "error", err)
		return nil, domain.FromStore(err)
	}
	p.pending = nil

	p.shifts.Observe(commit.Shift)
	cart.Clear()

	txn := commit.Transaction
	p.metrics.IncrementSale(string(txn.PaymentMethod), txn.Total)
	slog.Info("交易已提交", "receiptNumber", txn.ReceiptNumber, "total", txn.Total.String(), "method", txn.PaymentMethod)

	var delivery receipt.Delivery
	if p.receipts != nil {
		delivery = p.receipts.Deliver(commitCtx, receipt.Build(txn, false))
	}

	return &Result{Transaction: txn, Change: txn.Change, Receipt: delivery}, nil
}

// reuse 返回同一个购物车之前提交失败的请求。paid 为 true 时已经扣过款，直接重新提交；
// 现金交易只保留幂等键，支付信息按这一次的选择重新计算。
// 已扣款的交易和这次的购物车或班次对不上时返回 PendingPaymentError，不会再次扣款
func (p *Processor) reuse(cart *domain.Cart, shiftID int64) (*domain.NewTransaction, bool, error) {
	if p.pending == nil {
		return nil, false, nil
	}
	if p.pending.fingerprint != cart.Fingerprint() || p.pending.shiftID != shiftID {
		if p.pending.paid {
			return nil, false, p.pendingError()
		}
		p.pending = nil
		return nil, false, nil
	}
	if p.pending.paid {
		return p.pending.req, true, nil
	}

	req := *p.pending.req
	req.PaymentMethod = ""
	req.CashAmount = nil
	req.CardAmount = nil
	req.Change = 0
	req.PaymentReference = ""
	return &req, false, nil
}

func (p *Processor) pendingPayment() domain.PendingPayment {
	req := p.pending.req
	var amount money.Money
	if req.CardAmount != nil {
		amount = *req.CardAmount
	}
	return domain.PendingPayment{
		IdempotencyKey:   req.IdempotencyKey,
		ShiftID:          p.pending.shiftID,
		PaymentReference: req.PaymentReference,
		Amount:           amount,
	}
}

func (p *Processor) pendingError() error {
	payment := p.pendingPayment()
	slog.Warn("有已扣款但未提交的交易，拒绝新的结账", "idempotencyKey", payment.IdempotencyKey, "paymentReference", payment.PaymentReference, "amount", payment.Amount.String())
	return &domain.PendingPaymentError{
		Err:     domain.ErrPaymentPending.Withf("扣款 %s（%s）还没有提交，请用原购物车重新结账或撤销这笔扣款", payment.PaymentReference, payment.Amount.Format()),
		Payment: payment,
	}
}

// Abandon 撤销已扣款但未提交的交易。撤销失败时保留 pending，操作员可以稍后重试
func (p *Processor) Abandon(ctx context.Context) (*domain.PendingPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending == nil || !p.pending.paid {
		return nil, nil
	}
	if p.payments == nil {
		return nil, domain.ErrPaymentFailed.Withf("未配置支付终端")
	}

	payment := p.pendingPayment()
	if err := p.payments.CancelPayment(ctx, p.pending.intentID); err != nil {
		slog.Error("撤销未提交交易的扣款失败", "idempotencyKey", payment.IdempotencyKey, "paymentReference", payment.PaymentReference, "error", err)
		return nil, paymentError(ctx, err)
	}
	p.pending = nil

	p.metrics.IncrementPaymentFailure("abandoned")
	slog.Warn("已撤销未提交交易的扣款", "idempotencyKey", payment.IdempotencyKey, "paymentReference", payment.PaymentReference, "amount", payment.Amount.String())
	return &payment, nil
}

func (p *Processor) newRequest(cart *domain.Cart, cur *domain.Shift) *domain.NewTransaction {
	items := make([]domain.TransactionItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		items = append(items, domain.TransactionItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.TotalPrice,
			TaxAmount:   line.TaxAmount,
		})
	}

	return &domain.NewTransaction{
		IdempotencyKey: uuid.NewString(),
		ShiftID:        cur.ID,
		BusinessID:     cur.BusinessID,
		CashierID:      cur.CashierID,
		Timestamp:      p.clock.Now(),
		Items:          items,
		Subtotal:       cart.Subtotal(),
		Tax:            cart.Tax(),
		Total:          cart.Total(),
	}
}

// resolvePayment 填写支付信息，刷卡时返回支付意图 ID
func (p *Processor) resolvePayment(ctx context.Context, req *domain.NewTransaction, sel domain.PaymentSelection) (string, error) {
	total := req.Total

	switch sel.Method {
	case domain.PaymentCash:
		if sel.CashAmount < total {
			return "", domain.ErrInsufficientCash.Withf("现金不足，还差 %s", (total - sel.CashAmount).Format())
		}
		cash := sel.CashAmount
		req.PaymentMethod = domain.PaymentCash
		req.CashAmount = &cash
		req.Change = cash - total
		return "", nil

	case domain.PaymentCard, domain.PaymentMobile:
		ref, intentID, err := p.charge(ctx, total, sel.Method, req.IdempotencyKey)
		if err != nil {
			return "", err
		}
		card := total
		req.PaymentMethod = domain.PaymentCard
		req.CardAmount = &card
		req.PaymentReference = ref
		return intentID, nil

	case domain.PaymentMixed:
		if !sel.CashAmount.IsPositive() || sel.CashAmount >= total {
			return "", domain.ErrInvalidPayment.Withf("混合支付的现金部分必须大于 0 且小于应付金额 %s", total.Format())
		}
		cash := sel.CashAmount
		card := total - cash
		ref, intentID, err := p.charge(ctx, card, domain.PaymentCard, req.IdempotencyKey)
		if err != nil {
			return "", err
		}
		req.PaymentMethod = domain.PaymentMixed
		req.CashAmount = &cash
		req.CardAmount = &card
		req.PaymentReference = ref
		return intentID, nil

	default:
		return "", domain.ErrInvalidPayment.Withf("不支持的支付方式：%s", sel.Method)
	}
}

// charge 通过支付终端扣款，返回支付流水号和支付意图 ID。任何失败都会尝试撤销支付意图
func (p *Processor) charge(ctx context.Context, amount money.Money, method domain.PaymentMethod, reference string) (string, string, error) {
	if p.payments == nil {
		return "", "", domain.ErrPaymentFailed.Withf("未配置支付终端")
	}

	intent, err := p.payments.CreateIntent(ctx, amount, method, reference)
	if err != nil {
		p.metrics.IncrementPaymentFailure("failed")
		return "", "", paymentError(ctx, err)
	}

	result, err := p.payments.ProcessCardPayment(ctx, intent.ID)
	if err == nil && result == nil {
		err = errors.New("支付终端没有返回结果")
	}
	if err != nil || !result.Approved {
		p.cancelIntent(ctx, intent.ID)
	}

	switch {
	case err != nil && ctx.Err() != nil:
		p.metrics.IncrementPaymentFailure("canceled")
		slog.Info("操作员取消了刷卡", "intentID", intent.ID)
		return "", "", domain.ErrPaymentCanceled
	case err != nil:
		p.metrics.IncrementPaymentFailure("failed")
		return "", "", paymentError(ctx, err)
	case !result.Approved:
		p.metrics.IncrementPaymentFailure("declined")
		msg := result.Message
		if msg == "" {
			msg = domain.ErrPaymentDeclined.Message
		}
		return "", "", domain.ErrPaymentDeclined.Withf("%s", msg)
	}

	ref := result.Reference
	if ref == "" {
		ref = intent.ID
	}
	return ref, intent.ID, nil
}

func (p *Processor) cancelIntent(ctx context.Context, intentID string) {
	if err := p.payments.CancelPayment(context.WithoutCancel(ctx), intentID); err != nil {
		slog.Warn("撤销支付意图失败", "intentID", intentID, "error", err)
	}
}

func paymentError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.ErrPaymentCanceled
	}
	if errors.Is(err, domain.ErrPaymentDeclined) || errors.Is(err, domain.ErrPaymentCanceled) {
		return err
	}
	return domain.ErrPaymentFailed.Wrap(err)
}

// Void 作废本班次中一笔还没有退款的销售
func (p *Processor) Void(ctx context.Context, transactionID int64, reason string) (*domain.VoidCommit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.shifts.Active()
	if err != nil {
		return nil, err
	}

	commit, err := p.txns.VoidTransaction(ctx, &domain.NewVoid{
		IdempotencyKey:        uuid.NewString(),
		OriginalTransactionID: transactionID,
		ShiftID:               cur.ID,
		CashierID:             cur.CashierID,
		Reason:                reason,
		Timestamp:             p.clock.Now(),
	})
	if err != nil {
		return nil, domain.FromStore(err)
	}

	p.shifts.Observe(commit.Shift)
	p.metrics.IncrementVoid()
	slog.Info("交易已作废", "receiptNumber", commit.Original.ReceiptNumber, "reason", reason)

	return commit, nil
}

// HasPending 表示有一笔已扣款的交易等待重新提交
func (p *Processor) HasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil && p.pending.paid
}

// Busy 不会阻塞：正在结账或有已扣款未提交的交易时返回 true
func (p *Processor) Busy() bool {
	if !p.mu.TryLock() {
		return true
	}
	defer p.mu.Unlock()
	return p.pending != nil && p.pending.paid
}

// Package refund 处理对已提交销售的退款。退款总是记在当前班次上，
// 原交易只增加明细的已退数量，销售额本身不会被修改
package refund

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
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
	Refund      *domain.RefundRecord `json:"refund"`
	Transaction *domain.Transaction  `json:"transaction"`
	Original    *domain.Transaction  `json:"original"`
	Receipt     receipt.Delivery     `json:"receipt"`
	Restocked   int                  `json:"restocked"` // 已发送补货事件的商品行数
}

// RefundableLine 是退款界面展示的一行
type RefundableLine struct {
	ItemID           int64       `json:"itemID"`
	ProductID        string      `json:"productID"`
	ProductName      string      `json:"productName"`
	Quantity         int32       `json:"quantity"`
	RefundedQuantity int32       `json:"refundedQuantity"`
	Remaining        int32       `json:"remaining"`
	UnitPrice        money.Money `json:"unitPrice"`
}

type Processor struct {
	shifts    *shift.Manager
	txns      ports.TransactionService
	refunds   ports.RefundService
	restocker ports.Restocker
	receipts  *receipt.Service
	clock     clock.Clock
	metrics   *metrics.Metrics

	mu sync.Mutex
}

func NewProcessor(shifts *shift.Manager, txns ports.TransactionService, refunds ports.RefundService, restocker ports.Restocker, receipts *receipt.Service, clk clock.Clock, m *metrics.Metrics) *Processor {
	if clk == nil {
		clk = clock.New()
	}
	return &Processor{
		shifts:    shifts,
		txns:      txns,
		refunds:   refunds,
		restocker: restocker,
		receipts:  receipts,
		clock:     clk,
		metrics:   m,
	}
}

// Lookup 按小票号或交易 ID 查找原交易。纯数字视为交易 ID
func (p *Processor) Lookup(ctx context.Context, query string) (*domain.Transaction, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidRequest.Withf("请输入小票号或交易编号")
	}

	var (
		txn *domain.Transaction
		err error
	)
	if id, convErr := strconv.ParseInt(query, 10, 64); convErr == nil {
		txn, err = p.txns.GetTransactionByID(ctx, id)
	} else {
		txn, err = p.txns.GetTransactionByReceipt(ctx, strings.ToUpper(query))
	}
	if err != nil {
		return nil, domain.FromStore(err)
	}
	return txn, nil
}

// Recent 列出当前班次最近的交易，只是一个方便查找的视图
func (p *Processor) Recent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	cur, err := p.shifts.Active()
	if err != nil {
		return nil, err
	}
	txns, err := p.txns.ListRecentTransactions(ctx, cur.ID, limit)
	if err != nil {
		return nil, domain.FromStore(err)
	}
	return txns, nil
}

// Refund 提交退款。每一行必须满足 1 ≤ 退款数量 ≤ 剩余可退数量，否则整个请求被拒绝
func (p *Processor) Refund(ctx context.Context, originalID int64, items []domain.RefundItem, reason string, method domain.RefundMethod) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.shifts.Active()
	if err != nil {
		return nil, err
	}

	original, err := p.txns.GetTransactionByID(ctx, originalID)
	if err != nil {
		return nil, domain.FromStore(err)
	}

	// 先在本地按最新的原交易校验，存储服务还会在同一个事务里再检查一次
	priced, total, err := domain.PriceRefund(original, items)
	if err != nil {
		return nil, err
	}

	req := &domain.NewRefund{
		IdempotencyKey:        uuid.NewString(),
		OriginalTransactionID: original.ID,
		ShiftID:               cur.ID,
		CashierID:             cur.CashierID,
		BusinessID:            cur.BusinessID,
		Items:                 priced,
		TotalAmount:           total,
		Reason:                reason,
		Method:                method,
		Timestamp:             p.clock.Now(),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	commit, err := p.refunds.CreateRefund(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, domain.FromStore(err)
	}

	p.shifts.Observe(commit.Shift)
	p.metrics.IncrementRefund(commit.Refund.TotalAmount)
	slog.Info("退款已提交",
		"receiptNumber", commit.Refund.ReceiptNumber,
		"originalReceipt", commit.Original.ReceiptNumber,
		"amount", commit.Refund.TotalAmount.String(),
	)

	res := &Result{
		Refund:      commit.Refund,
		Transaction: commit.Transaction,
		Original:    commit.Original,
	}
	res.Restocked = p.restock(context.WithoutCancel(ctx), commit.Refund)
	if p.receipts != nil {
		res.Receipt = p.receipts.Deliver(context.WithoutCancel(ctx), receipt.Build(commit.Transaction, false))
	}

	return res, nil
}

// restock 把可以重新上架的商品发送给库存服务，失败只记录日志，退款不会回滚
func (p *Processor) restock(ctx context.Context, refund *domain.RefundRecord) int {
	if p.restocker == nil {
		return 0
	}

	items := make([]domain.RestockItem, 0, len(refund.Items))
	for _, item := range refund.Items {
		if item.Restockable {
			items = append(items, domain.RestockItem{
				ProductID: item.ProductID,
				Quantity:  item.RefundQuantity,
				Reason:    item.Reason,
			})
		}
	}
	if len(items) == 0 {
		return 0
	}

	if err := p.restocker.Restock(ctx, refund.BusinessID, items); err != nil {
		slog.Error("发送补货事件失败", "refundID", refund.ID, "error", err)
		return 0
	}
	return len(items)
}

// RefundableLines 列出原交易每一行还能退多少
func RefundableLines(original *domain.Transaction) []RefundableLine {
	lines := make([]RefundableLine, 0, len(original.Items))
	for _, item := range original.Items {
		lines = append(lines, RefundableLine{
			ItemID:           item.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			RefundedQuantity: item.RefundedQuantity,
			Remaining:        item.Remaining(),
			UnitPrice:        item.UnitPrice,
		})
	}
	return lines
}

// AdjustQuantity 只给界面的加减按钮使用，把输入限制在 [0, 剩余可退数量]。
// 提交时不会做任何截断
func AdjustQuantity(item *domain.TransactionItem, requested int32) int32 {
	if requested < 0 {
		return 0
	}
	if remaining := item.Remaining(); requested > remaining {
		return remaining
	}
	return requested
}

package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile" // 走刷卡流程，入账时记为 card
	PaymentMixed  PaymentMethod = "mixed"
)

type TransactionType string

const (
	TransactionSale   TransactionType = "sale"
	TransactionRefund TransactionType = "refund"
	TransactionVoid   TransactionType = "void"
)

type TransactionStatus string

const (
	StatusCompleted         TransactionStatus = "completed"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
	StatusRefunded          TransactionStatus = "refunded"
	StatusVoided            TransactionStatus = "voided"
)

type TransactionItem struct {
	ID               int64       `json:"id"`
	ProductID        string      `json:"productID"`
	ProductName      string      `json:"productName"`
	Quantity         int32       `json:"quantity"`
	UnitPrice        money.Money `json:"unitPrice"`
	TotalPrice       money.Money `json:"totalPrice"`
	TaxAmount        money.Money `json:"taxAmount"`
	RefundedQuantity int32       `json:"refundedQuantity"` // 单调不减，且不超过 Quantity
}

func (i *TransactionItem) Remaining() int32 {
	return i.Quantity - i.RefundedQuantity
}

// Transaction 提交后不可修改，唯一的例外是明细中的 RefundedQuantity
type Transaction struct {
	ID                    int64             `json:"id"`
	ReceiptNumber         string            `json:"receiptNumber"`
	ShiftID               int64             `json:"shiftID"`
	BusinessID            int64             `json:"businessID"`
	CashierID             int64             `json:"cashierID"`
	Timestamp             time.Time         `json:"timestamp"`
	Items                 []TransactionItem `json:"items"`
	Subtotal              money.Money       `json:"subtotal"`
	Tax                   money.Money       `json:"tax"`
	Total                 money.Money       `json:"total"`
	PaymentMethod         PaymentMethod     `json:"paymentMethod"`
	CashAmount            *money.Money      `json:"cashAmount"`
	CardAmount            *money.Money      `json:"cardAmount"`
	Change                money.Money       `json:"change"`
	PaymentReference      string            `json:"paymentReference"`
	Status                TransactionStatus `json:"status"`
	Type                  TransactionType   `json:"type"`
	OriginalTransactionID *int64            `json:"originalTransactionID"`
	Notes                 string            `json:"notes"`
}

func (t *Transaction) Item(id int64) (*TransactionItem, bool) {
	for i := range t.Items {
		if t.Items[i].ID == id {
			return &t.Items[i], true
		}
	}
	return nil, false
}

// HasRefunds 判断是否已经有任何明细被退款
func (t *Transaction) HasRefunds() bool {
	for _, item := range t.Items {
		if item.RefundedQuantity > 0 {
			return true
		}
	}
	return false
}

// CheckVoidable 只有本班次内、没有任何退款的销售才能作废
func (t *Transaction) CheckVoidable(shiftID int64) error {
	if t.Type != TransactionSale {
		return ErrVoidNotAllowed.Withf("只能作废销售交易")
	}
	if t.Status == StatusVoided {
		return ErrVoidNotAllowed.Withf("交易 %s 已作废", t.ReceiptNumber)
	}
	if t.HasRefunds() {
		return ErrVoidNotAllowed.Withf("交易 %s 已有退款，不能作废", t.ReceiptNumber)
	}
	if t.ShiftID != shiftID {
		return ErrVoidNotAllowed.Withf("只能作废本班次的交易")
	}
	return nil
}

// RefreshStatus 根据明细的退款数量重新计算状态
func (t *Transaction) RefreshStatus() {
	if t.Type != TransactionSale || t.Status == StatusVoided {
		return
	}
	refunded, total := int32(0), int32(0)
	for _, item := range t.Items {
		refunded += item.RefundedQuantity
		total += item.Quantity
	}
	switch {
	case refunded == 0:
		t.Status = StatusCompleted
	case refunded >= total:
		t.Status = StatusRefunded
	default:
		t.Status = StatusPartiallyRefunded
	}
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Items = make([]TransactionItem, len(t.Items))
	copy(c.Items, t.Items)
	c.CashAmount = cloneMoney(t.CashAmount)
	c.CardAmount = cloneMoney(t.CardAmount)
	if t.OriginalTransactionID != nil {
		id := *t.OriginalTransactionID
		c.OriginalTransactionID = &id
	}
	return &c
}

// NewTransaction 是提交给存储服务的载荷，IdempotencyKey 保证重试时只入账一次
type NewTransaction struct {
	IdempotencyKey   string            `json:"idempotencyKey"`
	ShiftID          int64             `json:"shiftID"`
	BusinessID       int64             `json:"businessID"`
	CashierID        int64             `json:"cashierID"`
	Timestamp        time.Time         `json:"timestamp"`
	Items            []TransactionItem `json:"items"`
	Subtotal         money.Money       `json:"subtotal"`
	Tax              money.Money       `json:"tax"`
	Total            money.Money       `json:"total"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod"`
	CashAmount       *money.Money      `json:"cashAmount"`
	CardAmount       *money.Money      `json:"cardAmount"`
	Change           money.Money       `json:"change"`
	PaymentReference string            `json:"paymentReference"`
}

// PendingPayment 是已经扣款但提交失败的交易
type PendingPayment struct {
	IdempotencyKey   string      `json:"idempotencyKey"`
	ShiftID          int64       `json:"shiftID"`
	PaymentReference string      `json:"paymentReference"`
	Amount           money.Money `json:"amount"`
}

// TransactionCommit 同时返回更新后的班次，保证提交后立即读取统计数据时能看到本次的变化
type TransactionCommit struct {
	Transaction *Transaction `json:"transaction"`
	Shift       *Shift       `json:"shift"`
}

type NewVoid struct {
	IdempotencyKey        string    `json:"idempotencyKey"`
	OriginalTransactionID int64     `json:"originalTransactionID"`
	ShiftID               int64     `json:"shiftID"`
	CashierID             int64     `json:"cashierID"`
	Reason                string    `json:"reason"`
	Timestamp             time.Time `json:"timestamp"`
}

type VoidCommit struct {
	Void     *Transaction `json:"void"`
	Original *Transaction `json:"original"`
	Shift    *Shift       `json:"shift"`
}

package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type RefundMethod string

const (
	RefundCash     RefundMethod = "cash"
	RefundCard     RefundMethod = "card"
	RefundOriginal RefundMethod = "original" // 原路退回
)

// PaymentMethod 是退款交易记录的支付方式，原路退回时沿用原交易的方式
func (m RefundMethod) PaymentMethod(original *Transaction) PaymentMethod {
	switch m {
	case RefundCash:
		return PaymentCash
	case RefundCard:
		return PaymentCard
	default:
		return original.PaymentMethod
	}
}

type RefundItem struct {
	OriginalItemID int64       `json:"originalItemID"`
	ProductID      string      `json:"productID"`
	ProductName    string      `json:"productName"`
	RefundQuantity int32       `json:"refundQuantity"`
	UnitPrice      money.Money `json:"unitPrice"`
	RefundAmount   money.Money `json:"refundAmount"` // UnitPrice × RefundQuantity
	Reason         string      `json:"reason"`
	Restockable    bool        `json:"restockable"`
}

type RefundRecord struct {
	ID                    int64        `json:"id"`
	OriginalTransactionID int64        `json:"originalTransactionID"`
	RefundTransactionID   int64        `json:"refundTransactionID"`
	ReceiptNumber         string       `json:"receiptNumber"` // 退款单自身的小票号
	ShiftID               int64        `json:"shiftID"`
	CashierID             int64        `json:"cashierID"`
	BusinessID            int64        `json:"businessID"`
	Items                 []RefundItem `json:"items"`
	TotalAmount           money.Money  `json:"totalAmount"`
	Reason                string       `json:"reason"`
	Method                RefundMethod `json:"method"`
	CreatedAt             time.Time    `json:"createdAt"`
}

type NewRefund struct {
	IdempotencyKey        string       `json:"idempotencyKey"`
	OriginalTransactionID int64        `json:"originalTransactionID"`
	ShiftID               int64        `json:"shiftID"`
	CashierID             int64        `json:"cashierID"`
	BusinessID            int64        `json:"businessID"`
	Items                 []RefundItem `json:"items"`
	TotalAmount           money.Money  `json:"totalAmount"`
	Reason                string       `json:"reason"`
	Method                RefundMethod `json:"method"`
	Timestamp             time.Time    `json:"timestamp"`
}

type RefundCommit struct {
	Refund      *RefundRecord `json:"refund"`
	Transaction *Transaction  `json:"transaction"` // type = refund 的交易记录
	Original    *Transaction  `json:"original"`
	Shift       *Shift        `json:"shift"`
}

type CountType string

const (
	CountOpening  CountType = "opening"
	CountMidShift CountType = "mid_shift"
	CountClosing  CountType = "closing"
	CountSpot     CountType = "spot"
)

type CashCount struct {
	ShiftID     int64       `json:"shiftID"`
	Type        CountType   `json:"type"`
	Expected    money.Money `json:"expected"`
	Counted     money.Money `json:"counted"`
	Discrepancy money.Money `json:"discrepancy"`
	CountedAt   time.Time   `json:"countedAt"`
}

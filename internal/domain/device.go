package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type PaymentIntent struct {
	ID        string        `json:"id"`
	Amount    money.Money   `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference"`
}

type PaymentResult struct {
	IntentID  string      `json:"intentID"`
	Approved  bool        `json:"approved"`
	Amount    money.Money `json:"amount"`
	Reference string      `json:"reference"`
	Message   string      `json:"message"`
}

type PrinterStatus struct {
	Online     bool   `json:"online"`
	PaperOut   bool   `json:"paperOut"`
	CoverOpen  bool   `json:"coverOpen"`
	StatusText string `json:"statusText"`
}

func (s *PrinterStatus) Ready() bool {
	return s != nil && s.Online && !s.PaperOut && !s.CoverOpen
}

// ReceiptData 是打印和邮件共用的小票内容，始终以已分配的小票号为键
type ReceiptData struct {
	ReceiptNumber string            `json:"receiptNumber"`
	Type          TransactionType   `json:"type"`
	BusinessID    int64             `json:"businessID"`
	CashierID     int64             `json:"cashierID"`
	Timestamp     time.Time         `json:"timestamp"`
	Lines         []ReceiptLine     `json:"lines"`
	Subtotal      string            `json:"subtotal"`
	Tax           string            `json:"tax"`
	Total         string            `json:"total"`
	PaymentMethod PaymentMethod     `json:"paymentMethod"`
	Tendered      string            `json:"tendered"`
	Change        string            `json:"change"`
	Reprint       bool              `json:"reprint"`
	Extra         map[string]string `json:"extra,omitempty"`
}

type ReceiptLine struct {
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

type RestockItem struct {
	ProductID string `json:"productID"`
	Quantity  int32  `json:"quantity"`
	Reason    string `json:"reason"`
}

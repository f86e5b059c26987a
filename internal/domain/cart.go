package domain

import (
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type CartLine struct {
	ProductID   string      `json:"productID" validate:"required"`
	ProductName string      `json:"productName" validate:"required"`
	Quantity    int32       `json:"quantity" validate:"required,min=1"`
	UnitPrice   money.Money `json:"unitPrice" validate:"min=0"`
	TotalPrice  money.Money `json:"totalPrice"`
	TaxAmount   money.Money `json:"taxAmount" validate:"min=0"`
}

// Cart 属于核心而不是界面，界面只通过这里的方法修改它
type Cart struct {
	Lines []CartLine `json:"lines"`
}

func NewCart() *Cart {
	return &Cart{Lines: make([]CartLine, 0)}
}

// Add 加入商品，同一商品会合并数量，总价和税额按行累加
func (c *Cart) Add(line CartLine) {
	if line.TotalPrice == 0 {
		line.TotalPrice = line.UnitPrice.Mul(line.Quantity)
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID && c.Lines[i].UnitPrice == line.UnitPrice {
			c.Lines[i].Quantity += line.Quantity
			c.Lines[i].TotalPrice += line.TotalPrice
			c.Lines[i].TaxAmount += line.TaxAmount
			return
		}
	}
	c.Lines = append(c.Lines, line)
}

func (c *Cart) Remove(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Lines = c.Lines[:0]
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

func (c *Cart) Subtotal() money.Money {
	var total money.Money
	for _, line := range c.Lines {
		total += line.TotalPrice
	}
	return total
}

func (c *Cart) Tax() money.Money {
	var total money.Money
	for _, line := range c.Lines {
		total += line.TaxAmount
	}
	return total
}

func (c *Cart) Total() money.Money {
	return c.Subtotal() + c.Tax()
}

func (c *Cart) Clone() *Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return &Cart{Lines: lines}
}

// Fingerprint 用于识别同一个购物车的重试提交
func (c *Cart) Fingerprint() string {
	var b strings.Builder
	for _, line := range c.Lines {
		fmt.Fprintf(&b, "%s|%d|%d|%d|%d;", line.ProductID, line.Quantity, line.UnitPrice, line.TotalPrice, line.TaxAmount)
	}
	return b.String()
}

// PaymentSelection 是操作员选择的支付方式
type PaymentSelection struct {
	Method     PaymentMethod `json:"method"`
	CashAmount money.Money   `json:"cashAmount"` // 现金或混合支付时收取的现金
}

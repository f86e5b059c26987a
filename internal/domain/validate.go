package domain

import (
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

// ValidateCart 检查购物车能否结账：不能为空，每一行总价大于 0，税额不能为负
func ValidateCart(cart *Cart) error {
	if cart.IsEmpty() {
		return ErrEmptyCart
	}
	for i, line := range cart.Lines {
		if line.ProductID == "" {
			return ErrInvalidCartLine.Withf("第 %d 行缺少商品编号", i+1)
		}
		if line.Quantity < 1 {
			return ErrInvalidCartLine.Withf("商品 %s 的数量必须大于 0", line.ProductName)
		}
		if !line.TotalPrice.IsPositive() {
			return ErrInvalidCartLine.Withf("商品 %s 的总价必须大于 0", line.ProductName)
		}
		if line.TaxAmount.IsNegative() {
			return ErrInvalidCartLine.Withf("商品 %s 的税额不能为负数", line.ProductName)
		}
	}
	return nil
}

// Validate 在存储服务一侧重新检查交易载荷，金额必须能由明细推导出来
func (req *NewTransaction) Validate() error {
	if req.IdempotencyKey == "" {
		return ErrInvalidRequest.Withf("缺少幂等键")
	}
	if req.ShiftID == 0 || req.BusinessID == 0 || req.CashierID == 0 {
		return ErrMissingContext
	}
	if len(req.Items) == 0 {
		return ErrEmptyCart
	}

	var subtotal, tax money.Money
	for _, item := range req.Items {
		if item.Quantity < 1 || !item.TotalPrice.IsPositive() || item.TaxAmount.IsNegative() {
			return ErrInvalidCartLine.Withf("商品 %s 的数量或金额无效", item.ProductName)
		}
		if item.RefundedQuantity != 0 {
			return ErrInvalidCartLine.Withf("新交易的已退数量必须为 0")
		}
		subtotal += item.TotalPrice
		tax += item.TaxAmount
	}
	if subtotal != req.Subtotal || tax != req.Tax || req.Total != subtotal+tax {
		return ErrInvalidRequest.Withf("交易金额与明细不一致")
	}

	switch req.PaymentMethod {
	case PaymentCash:
		if req.CashAmount == nil || *req.CashAmount < req.Total {
			return ErrInsufficientCash
		}
	case PaymentCard:
		if req.CardAmount == nil || *req.CardAmount != req.Total {
			return ErrInvalidPayment.Withf("刷卡金额与交易金额不一致")
		}
	case PaymentMixed:
		if req.CashAmount == nil || req.CardAmount == nil || *req.CashAmount+*req.CardAmount != req.Total {
			return ErrInvalidPayment.Withf("混合支付金额与交易金额不一致")
		}
	default:
		return ErrInvalidPayment
	}

	return nil
}

func (req *NewRefund) Validate() error {
	if req.IdempotencyKey == "" {
		return ErrInvalidRequest.Withf("缺少幂等键")
	}
	if req.ShiftID == 0 || req.BusinessID == 0 || req.CashierID == 0 {
		return ErrMissingContext
	}
	if req.OriginalTransactionID == 0 {
		return ErrInvalidRefund.Withf("缺少原交易")
	}
	if len(req.Items) == 0 {
		return ErrInvalidRefund.Withf("没有选择要退款的商品")
	}
	switch req.Method {
	case RefundCash, RefundCard, RefundOriginal:
	default:
		return ErrInvalidRefund.Withf("退款方式无效：%s", req.Method)
	}
	return nil
}

// PriceRefund 按原交易检查每一行的退款数量 1 ≤ n ≤ 剩余可退数量，并按原单价计算退款金额。
// 超出可退数量是校验错误，这里不会做任何截断
func PriceRefund(original *Transaction, items []RefundItem) ([]RefundItem, money.Money, error) {
	if original.Type != TransactionSale {
		return nil, 0, ErrInvalidRefund.Withf("只能对销售交易退款")
	}
	if original.Status == StatusVoided {
		return nil, 0, ErrInvalidRefund.Withf("交易 %s 已作废", original.ReceiptNumber)
	}
	if len(items) == 0 {
		return nil, 0, ErrInvalidRefund.Withf("没有选择要退款的商品")
	}

	seen := make(map[int64]bool, len(items))
	priced := make([]RefundItem, 0, len(items))
	var total money.Money

	for _, item := range items {
		if seen[item.OriginalItemID] {
			return nil, 0, ErrInvalidRefund.Withf("商品行 %d 重复", item.OriginalItemID)
		}
		seen[item.OriginalItemID] = true

		line, ok := original.Item(item.OriginalItemID)
		if !ok {
			return nil, 0, ErrInvalidRefund.Withf("原交易中不存在商品行 %d", item.OriginalItemID)
		}
		remaining := line.Remaining()
		if item.RefundQuantity < 1 {
			return nil, 0, ErrOverRefund.Withf("商品 %s 的退款数量必须至少为 1", line.ProductName)
		}
		if item.RefundQuantity > remaining {
			return nil, 0, ErrOverRefund.Withf("商品 %s 最多还能退 %d 件，请求退 %d 件", line.ProductName, remaining, item.RefundQuantity)
		}

		amount := line.UnitPrice.Mul(item.RefundQuantity)
		priced = append(priced, RefundItem{
			OriginalItemID: line.ID,
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			RefundQuantity: item.RefundQuantity,
			UnitPrice:      line.UnitPrice,
			RefundAmount:   amount,
			Reason:         item.Reason,
			Restockable:    item.Restockable,
		})
		total += amount
	}

	return priced, total, nil
}

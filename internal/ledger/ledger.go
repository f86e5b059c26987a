// Package ledger 是收银抽屉的纯计算模块，只读取班次的计数器，不产生任何副作用。
// 所有金额都是整数便士，只有展示时才格式化为两位小数。
package ledger

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

// Expected = 初始现金 + 销售总额，与退款无关
func Expected(shift *domain.Shift) money.Money {
	return shift.StartingCash + shift.TotalSales
}

// Variance 在没有最终清点值时以初始现金代替，因此未清点的班次差额为负的销售总额
func Variance(shift *domain.Shift) money.Money {
	counted := shift.StartingCash
	if shift.FinalCashDrawer != nil {
		counted = *shift.FinalCashDrawer
	}
	return counted - Expected(shift)
}

// AverageTransaction 没有交易时返回 0
func AverageTransaction(shift *domain.Shift) money.Money {
	if shift.TotalTransactions == 0 {
		return 0
	}
	return shift.TotalSales / money.Money(shift.TotalTransactions)
}

// NetSales 是销售额减去退款额，只用于报表展示，不会回写到 TotalSales
func NetSales(shift *domain.Shift) money.Money {
	return shift.TotalSales - shift.TotalRefunds
}

// Summary 是展示给界面的派生数据
type Summary struct {
	StartingCash       money.Money  `json:"startingCash"`
	TotalSales         money.Money  `json:"totalSales"`
	TotalRefunds       money.Money  `json:"totalRefunds"`
	NetSales           money.Money  `json:"netSales"`
	TotalTransactions  int32        `json:"totalTransactions"`
	RefundCount        int32        `json:"refundCount"`
	TotalVoids         int32        `json:"totalVoids"`
	ExpectedCashDrawer money.Money  `json:"expectedCashDrawer"`
	FinalCashDrawer    *money.Money `json:"finalCashDrawer"`
	CashVariance       money.Money  `json:"cashVariance"`
	AverageTransaction money.Money  `json:"averageTransaction"`
}

func Summarize(shift *domain.Shift) Summary {
	return Summary{
		StartingCash:       shift.StartingCash,
		TotalSales:         shift.TotalSales,
		TotalRefunds:       shift.TotalRefunds,
		NetSales:           NetSales(shift),
		TotalTransactions:  shift.TotalTransactions,
		RefundCount:        shift.RefundCount,
		TotalVoids:         shift.TotalVoids,
		ExpectedCashDrawer: Expected(shift),
		FinalCashDrawer:    shift.FinalCashDrawer,
		CashVariance:       Variance(shift),
		AverageTransaction: AverageTransaction(shift),
	}
}

// Close 计算结班时的三个数值：最终现金、期望现金和差额。
// estimated 为 true 时最终现金取期望值，差额恒为 0
func Close(shift *domain.Shift, finalCashDrawer money.Money, estimated bool) (final, expected, variance money.Money) {
	expected = Expected(shift)
	final = finalCashDrawer
	if estimated {
		final = expected
	}
	return final, expected, final - expected
}

func Count(shift *domain.Shift, counted money.Money, countType domain.CountType, at time.Time) domain.CashCount {
	expected := Expected(shift)
	return domain.CashCount{
		ShiftID:     shift.ID,
		Type:        countType,
		Expected:    expected,
		Counted:     counted,
		Discrepancy: counted - expected,
		CountedAt:   at,
	}
}

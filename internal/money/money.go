package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money 以最小货币单位（便士）表示金额，所有内部运算都在整数上进行，
// 只有在与操作员交互（解析输入、格式化输出）时才转换为两位小数
type Money int64

const Zero Money = 0

var (
	ErrInvalidAmount  = errors.New("金额格式错误")
	ErrTooManyDecimal = errors.New("金额最多只能有两位小数")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxPence = decimal.NewFromInt(math.MaxInt64)
	minPence = decimal.NewFromInt(math.MinInt64)
)

// Parse 解析操作员输入的金额字符串，例如 "12.5"、"£12.50"、"1,200.00"
func Parse(s string) (Money, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "£")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	pence := d.Mul(hundred)
	if !pence.Equal(pence.Truncate(0)) {
		return 0, ErrTooManyDecimal
	}
	// IntPart 溢出时会静默截断
	if pence.GreaterThan(maxPence) || pence.LessThan(minPence) {
		return 0, ErrInvalidAmount
	}

	return Money(pence.IntPart()), nil
}

// FromPence 方便测试和种子数据直接构造金额
func FromPence(p int64) Money {
	return Money(p)
}

// FromMajor 将整数英镑转换为金额
func FromMajor(pounds int64) Money {
	return Money(pounds * 100)
}

func (m Money) Pence() int64 {
	return int64(m)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String 返回两位小数的格式，例如 "-3.05"
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Format 返回带货币符号的格式，用于展示给操作员
func (m Money) Format() string {
	if m < 0 {
		return fmt.Sprintf("-£%s", (-m).String())
	}
	return fmt.Sprintf("£%s", m.String())
}

func (m Money) Mul(qty int32) Money {
	return m * Money(qty)
}

func (m Money) Neg() Money {
	return -m
}

func (m Money) IsNegative() bool {
	return m < 0
}

func (m Money) IsPositive() bool {
	return m > 0
}

func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"0", 0},
		{"12", 1200},
		{"12.5", 1250},
		{"12.50", 1250},
		{" £7.05 ", 705},
		{"1,200.99", 120099},
		{"-3.10", -310},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := Parse(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("1.005")
	assert.ErrorIs(t, err, ErrTooManyDecimal)
}

func TestParseRejectsOutOfRange(t *testing.T) {
	for _, in := range []string{
		"184467440737095516.16",
		"184467440737095517.00",
		"92233720368547758.08",
		"-92233720368547758.09",
		"1e30",
	} {
		t.Run(in, func(t *testing.T) {
			got, err := Parse(in)
			assert.ErrorIs(t, err, ErrInvalidAmount)
			assert.Zero(t, got)
		})
	}

	// 边界值本身可以表示
	got, err := Parse("92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, Money(math.MaxInt64), got)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "5.00", FromPence(500).String())
	assert.Equal(t, "0.07", FromPence(7).String())
	assert.Equal(t, "-3.05", FromPence(-305).String())
	assert.Equal(t, "£12.34", FromPence(1234).Format())
	assert.Equal(t, "-£0.99", FromPence(-99).Format())
}

func TestNoDriftOnAccumulation(t *testing.T) {
	// 0.1 累加一千次在浮点数下会产生误差，整数便士不会
	var total Money
	for i := 0; i < 1000; i++ {
		total += FromPence(10)
	}
	assert.Equal(t, FromMajor(100), total)
	assert.Equal(t, "100.00", total.String())
}

func TestMulAndSum(t *testing.T) {
	assert.Equal(t, FromPence(897), FromPence(299).Mul(3))
	assert.Equal(t, FromPence(600), Sum(FromPence(100), FromPence(200), FromPence(300)))
	assert.Equal(t, FromPence(5), Max(FromPence(-5), FromPence(5)))
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

// Metrics 记录账本的提交情况。所有方法都允许在 nil 上调用，测试中可以不注册指标
type Metrics struct {
	SalesCommitted   *prometheus.CounterVec
	SalesAmount      prometheus.Counter
	RefundsCommitted prometheus.Counter
	RefundsAmount    prometheus.Counter
	VoidsCommitted   prometheus.Counter
	PaymentFailures  *prometheus.CounterVec
	ShiftsStarted    prometheus.Counter
	ShiftsEnded      *prometheus.CounterVec
	ReceiptDelivery  *prometheus.CounterVec
}

// New 在 reg 上注册全部指标，reg 为空时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SalesCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_committed_total",
			Help: "Committed sale transactions by recorded payment method",
		}, []string{"method"}),

		SalesAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_sales_amount_pence_total",
			Help: "Sum of committed sale totals in pence",
		}),

		RefundsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_refunds_committed_total",
			Help: "Committed refund records",
		}),

		RefundsAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_refunds_amount_pence_total",
			Help: "Sum of committed refund amounts in pence",
		}),

		VoidsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_voids_committed_total",
			Help: "Voided sale transactions",
		}),

		PaymentFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_payment_failures_total",
			Help: "Card payments that did not lead to a commit",
		}, []string{"reason"}), // reason: "declined", "failed", "canceled", "abandoned"

		ShiftsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pos_shifts_started_total",
			Help: "Shifts started",
		}),

		ShiftsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_shifts_ended_total",
			Help: "Shifts ended by mode",
		}, []string{"mode"}), // mode: "manual", "auto"

		ReceiptDelivery: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_receipt_delivery_total",
			Help: "Receipt delivery outcomes",
		}, []string{"outcome"}), // outcome: "printed", "skipped", "emailed"
	}
}

func (m *Metrics) IncrementSale(method string, total money.Money) {
	if m != nil {
		m.SalesCommitted.WithLabelValues(method).Inc()
		m.SalesAmount.Add(float64(total.Pence()))
	}
}

func (m *Metrics) IncrementRefund(amount money.Money) {
	if m != nil {
		m.RefundsCommitted.Inc()
		m.RefundsAmount.Add(float64(amount.Pence()))
	}
}

func (m *Metrics) IncrementVoid() {
	if m != nil {
		m.VoidsCommitted.Inc()
	}
}

func (m *Metrics) IncrementPaymentFailure(reason string) {
	if m != nil {
		m.PaymentFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementShiftStarted() {
	if m != nil {
		m.ShiftsStarted.Inc()
	}
}

func (m *Metrics) IncrementShiftEnded(auto bool) {
	if m != nil {
		mode := "manual"
		if auto {
			mode = "auto"
		}
		m.ShiftsEnded.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) IncrementReceipt(outcome string) {
	if m != nil {
		m.ReceiptDelivery.WithLabelValues(outcome).Inc()
	}
}

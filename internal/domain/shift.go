package domain

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type ShiftStatus string

const (
	ShiftActive ShiftStatus = "active"
	ShiftEnded  ShiftStatus = "ended"
)

type Shift struct {
	ID                 int64        `json:"id"`
	ScheduleID         *int64       `json:"scheduleID"` // 为空表示无排班的临时班次
	CashierID          int64        `json:"cashierID"`
	BusinessID         int64        `json:"businessID"`
	StartTime          time.Time    `json:"startTime"`
	EndTime            *time.Time   `json:"endTime"`
	Status             ShiftStatus  `json:"status"`
	StartingCash       money.Money  `json:"startingCash"`
	FinalCashDrawer    *money.Money `json:"finalCashDrawer"`
	ExpectedCashDrawer *money.Money `json:"expectedCashDrawer"`
	CashVariance       *money.Money `json:"cashVariance"`
	TotalSales         money.Money  `json:"totalSales"`
	TotalTransactions  int32        `json:"totalTransactions"`
	TotalRefunds       money.Money  `json:"totalRefunds"`
	RefundCount        int32        `json:"refundCount"`
	TotalVoids         int32        `json:"totalVoids"`
	Notes              string       `json:"notes"`
	LateStart          bool         `json:"lateStart"`
	RequiresApproval   bool         `json:"requiresApproval"`
	ApprovedBy         *int64       `json:"approvedBy"` // 审核自动结班的经理
	CreatedAt          time.Time    `json:"createdAt"`
	Version            int32        `json:"version"` // 每次计数器变化都会自增，客户端据此丢弃过期快照
}

func (s *Shift) IsActive() bool {
	return s != nil && s.Status == ShiftActive
}

// Clone 返回深拷贝，避免调用方修改内部持有的快照
func (s *Shift) Clone() *Shift {
	if s == nil {
		return nil
	}
	c := *s
	if s.ScheduleID != nil {
		id := *s.ScheduleID
		c.ScheduleID = &id
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.ApprovedBy != nil {
		id := *s.ApprovedBy
		c.ApprovedBy = &id
	}
	c.FinalCashDrawer = cloneMoney(s.FinalCashDrawer)
	c.ExpectedCashDrawer = cloneMoney(s.ExpectedCashDrawer)
	c.CashVariance = cloneMoney(s.CashVariance)
	return &c
}

type ShiftStats struct {
	TotalTransactions int32       `json:"totalTransactions"`
	TotalSales        money.Money `json:"totalSales"`
	TotalRefunds      money.Money `json:"totalRefunds"`
	RefundCount       int32       `json:"refundCount"`
	TotalVoids        int32       `json:"totalVoids"`
	Version           int32       `json:"version"`
}

func (s *Shift) Stats() *ShiftStats {
	return &ShiftStats{
		TotalTransactions: s.TotalTransactions,
		TotalSales:        s.TotalSales,
		TotalRefunds:      s.TotalRefunds,
		RefundCount:       s.RefundCount,
		TotalVoids:        s.TotalVoids,
		Version:           s.Version,
	}
}

type StartShiftRequest struct {
	ScheduleID   *int64      `json:"scheduleID"`
	CashierID    int64       `json:"cashierID"`
	BusinessID   int64       `json:"businessID"`
	StartingCash money.Money `json:"startingCash"`
	StartTime    time.Time   `json:"startTime"`
	Notes        string      `json:"notes"`
	LateStart    bool        `json:"lateStart"`
}

type EndShiftRequest struct {
	FinalCashDrawer    money.Money `json:"finalCashDrawer"`
	ExpectedCashDrawer money.Money `json:"expectedCashDrawer"`
	TotalSales         money.Money `json:"totalSales"`
	TotalTransactions  int32       `json:"totalTransactions"`
	TotalRefunds       money.Money `json:"totalRefunds"`
	TotalVoids         int32       `json:"totalVoids"`
	EndTime            time.Time   `json:"endTime"`
	Notes              string      `json:"notes"`
	AutoEnded          bool        `json:"autoEnded"` // 超时自动结束，最终现金为估算值
}

func cloneMoney(m *money.Money) *money.Money {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}

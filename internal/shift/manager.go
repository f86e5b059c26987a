package shift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ledger"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports"
)

type State string

const (
	StateNoShift  State = "no_shift"
	StateActive   State = "active"
	StateOvertime State = "overtime" // 只用于展示，由已用时间推导，不会持久化
)

type StartOptions struct {
	StartingCash     string
	ConfirmLateStart bool
	Unscheduled      bool // 无排班开班
}

type Overtime struct {
	Minutes   int           `json:"minutes"`
	Warning   bool          `json:"warning"`
	AutoEnd   bool          `json:"autoEnd"`
	AutoEnded bool          `json:"autoEnded"`
	Shift     *domain.Shift `json:"shift,omitempty"` // 自动结班后的班次
}

type Snapshot struct {
	State     State            `json:"state"`
	Shift     *domain.Shift    `json:"shift"`
	Schedule  *domain.Schedule `json:"schedule"`
	Ledger    *ledger.Summary  `json:"ledger"`
	Overtime  Overtime         `json:"overtime"`
	LastEnded *domain.Shift    `json:"lastEnded"`
}

// Manager 持有当前收银员的班次状态机：NoShift → Active → (Overtime) → Ended → NoShift
type Manager struct {
	shifts     ports.ShiftService
	clock      clock.Clock
	policy     Policy
	metrics    *metrics.Metrics
	cashierID  int64
	businessID int64

	mu        sync.RWMutex
	current   *domain.Shift
	schedule  *domain.Schedule
	lastEnded *domain.Shift
	gen       uint64 // 每次本地开班/结班都会自增，用于丢弃在此之前发起的刷新结果

	// 结班是单写者操作，手动结班和超时自动结班都必须串行执行
	endMu sync.Mutex

	// 返回 true 时推迟超时自动结班，例如正在刷卡或有已扣款未提交的交易
	endGuard func() bool
}

func NewManager(shifts ports.ShiftService, clk clock.Clock, policy Policy, cashierID, businessID int64) (*Manager, error) {
	if shifts == nil {
		return nil, errors.New("shift service is required")
	}
	if cashierID == 0 || businessID == 0 {
		return nil, domain.ErrMissingContext
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		shifts:     shifts,
		clock:      clk,
		policy:     policy,
		cashierID:  cashierID,
		businessID: businessID,
	}, nil
}

// WithMetrics 设置指标，返回 m 本身
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

// WithEndGuard 设置自动结班前的检查，返回 m 本身
func (m *Manager) WithEndGuard(busy func() bool) *Manager {
	m.endGuard = busy
	return m
}

func (m *Manager) CashierID() int64 {
	return m.cashierID
}

func (m *Manager) BusinessID() int64 {
	return m.businessID
}

func (m *Manager) Policy() Policy {
	return m.policy
}

// Active 返回当前进行中班次的副本
func (m *Manager) Active() (*domain.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		if m.lastEnded != nil {
			return nil, domain.ErrShiftEnded.Withf("班次 %d 已结束", m.lastEnded.ID)
		}
		return nil, domain.ErrNoActiveShift
	}
	return m.current.Clone(), nil
}

// Observe 接收存储服务返回的最新班次。只有版本不低于当前持有的快照时才会生效，
// 这样提交后的计数器不会被更早发起的刷新覆盖
func (m *Manager) Observe(shift *domain.Shift) {
	if shift == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeLocked(shift)
}

func (m *Manager) observeLocked(shift *domain.Shift) {
	if shift.CashierID != m.cashierID {
		return
	}

	if m.current != nil && m.current.ID == shift.ID && shift.Version < m.current.Version {
		return
	}
	if m.current == nil && m.lastEnded != nil && m.lastEnded.ID == shift.ID {
		// 本地已经结班，不再接受旧的进行中快照
		return
	}

	if shift.Status == domain.ShiftEnded {
		if m.current != nil && m.current.ID == shift.ID {
			m.current = nil
			m.lastEnded = shift.Clone()
			m.gen++
		}
		return
	}

	m.current = shift.Clone()
}

// Refresh 从存储服务重新拉取当前班次和对应的排班，容忍客户端状态过期。
// 有进行中的班次时按班次记录的排班 ID 读取排班，跨过午夜的班次仍然能计算超时；
// 没有班次且排班的结束时间已过时，把排班标记为缺勤
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	now := m.clock.Now()

	active, err := m.shifts.GetActiveShift(ctx, m.cashierID)
	if err != nil {
		return domain.FromStore(err)
	}

	var schedule *domain.Schedule
	switch {
	case active != nil && active.ScheduleID != nil:
		schedule, err = m.shifts.GetSchedule(ctx, *active.ScheduleID)
	case active == nil:
		schedule, err = m.shifts.GetTodaySchedule(ctx, m.cashierID, now)
	}
	if err != nil {
		return domain.FromStore(err)
	}

	m.mu.Lock()
	if gen == m.gen {
		switch {
		case active != nil:
			m.observeLocked(active)
		case m.current != nil:
			// 班次在别处被结束了（例如后台），本地不再持有
			slog.Warn("存储服务中已没有进行中的班次", "shiftID", m.current.ID)
			m.lastEnded = m.current
			m.current = nil
			m.gen++
		}
		m.schedule = schedule
	}
	hasShift := m.current != nil
	m.mu.Unlock()

	if hasShift || schedule == nil || schedule.Status != domain.ScheduleUpcoming {
		return nil
	}
	if now.Before(schedule.EndTime) {
		return nil
	}

	missed, err := m.shifts.MarkScheduleMissed(ctx, schedule.ID)
	if err != nil {
		return domain.FromStore(err)
	}
	slog.Info("排班已标记为缺勤", "scheduleID", schedule.ID, "staffID", schedule.StaffID)

	m.mu.Lock()
	if missed != nil {
		m.schedule = missed
	}
	m.mu.Unlock()

	return nil
}

// Start 开班。开班前会检查是否已有进行中的班次，以及当前时间是否落在排班允许的窗口内
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*domain.Shift, error) {
	startingCash, err := money.Parse(opts.StartingCash)
	if err != nil {
		return nil, domain.ErrInvalidAmount.Withf("初始现金无效：%q", opts.StartingCash)
	}
	if startingCash.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("初始现金不能为负数")
	}

	m.endMu.Lock()
	defer m.endMu.Unlock()

	m.mu.RLock()
	hasShift := m.current != nil
	m.mu.RUnlock()
	if hasShift {
		return nil, domain.ErrShiftAlreadyActive
	}

	// 每个收银员同时只能有一个进行中的班次，以存储服务中的数据为准
	existing, err := m.shifts.GetActiveShift(ctx, m.cashierID)
	if err != nil {
		return nil, domain.FromStore(err)
	}
	if existing != nil {
		m.Observe(existing)
		return nil, domain.ErrShiftAlreadyActive.Withf("收银员已有进行中的班次 %d", existing.ID)
	}

	now := m.clock.Now()
	schedule, err := m.shifts.GetTodaySchedule(ctx, m.cashierID, now)
	if err != nil {
		return nil, domain.FromStore(err)
	}
	if schedule != nil && (schedule.Status == domain.ScheduleCompleted || schedule.Status == domain.ScheduleMissed) {
		schedule = nil
	}

	req := &domain.StartShiftRequest{
		CashierID:    m.cashierID,
		BusinessID:   m.businessID,
		StartingCash: startingCash,
		StartTime:    now,
	}

	switch {
	case schedule == nil && !opts.Unscheduled:
		return nil, domain.ErrNoSchedule
	case schedule == nil:
		req.Notes = "无排班开班"
	default:
		decision := m.policy.EvaluateStart(now, schedule.StartTime)
		if !decision.Allowed {
			return nil, domain.ErrTooEarly.Withf("距离排班开始还有 %d 分钟，请在 %d 分钟后再开班", decision.MinutesEarly, decision.MinutesUntilOpen)
		}
		if decision.NeedsConfirm {
			if !opts.ConfirmLateStart {
				return nil, domain.ErrLateStartUnconfirmed.Withf("已迟到 %d 分钟，需要确认后才能开班", decision.MinutesLate)
			}
			req.LateStart = true
			req.Notes = fmt.Sprintf("迟到开班：迟到 %d 分钟", decision.MinutesLate)
		}
		id := schedule.ID
		req.ScheduleID = &id
	}

	shift, err := m.shifts.StartShift(ctx, req)
	if err != nil {
		return nil, domain.FromStore(err)
	}

	m.mu.Lock()
	m.current = shift.Clone()
	m.lastEnded = nil
	m.gen++
	if schedule != nil {
		s := *schedule
		s.Status = domain.ScheduleActive
		m.schedule = &s
	}
	m.mu.Unlock()

	m.metrics.IncrementShiftStarted()
	slog.Info("开班成功", "shiftID", shift.ID, "cashierID", m.cashierID, "startingCash", startingCash.String())

	return shift.Clone(), nil
}

// End 手动结班，需要操作员清点的最终现金
func (m *Manager) End(ctx context.Context, finalCashDrawer string, notes string) (*domain.Shift, error) {
	final, err := money.Parse(finalCashDrawer)
	if err != nil {
		return nil, domain.ErrInvalidAmount.Withf("最终现金无效：%q", finalCashDrawer)
	}
	if final.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("最终现金不能为负数")
	}

	return m.end(ctx, final, notes, false)
}

// end 是唯一会把班次状态改为 Ended 的地方。已经结束的班次再次结班是空操作，直接返回已结束的班次
func (m *Manager) end(ctx context.Context, final money.Money, notes string, auto bool) (*domain.Shift, error) {
	m.endMu.Lock()
	defer m.endMu.Unlock()

	m.mu.RLock()
	cur := m.current.Clone()
	last := m.lastEnded.Clone()
	m.mu.RUnlock()

	if cur == nil {
		if last != nil {
			return last, nil
		}
		return nil, domain.ErrNoActiveShift
	}

	finalCash, expected, _ := ledger.Close(cur, final, auto)
	if auto {
		notes = AutoEndNote
	}

	req := &domain.EndShiftRequest{
		FinalCashDrawer:    finalCash,
		ExpectedCashDrawer: expected,
		TotalSales:         cur.TotalSales,
		TotalTransactions:  cur.TotalTransactions,
		TotalRefunds:       cur.TotalRefunds,
		TotalVoids:         cur.TotalVoids,
		EndTime:            m.clock.Now(),
		Notes:              joinNotes(cur.Notes, notes),
		AutoEnded:          auto,
	}

	ended, err := m.shifts.EndShift(ctx, cur.ID, req)
	if err != nil {
		return nil, domain.FromStore(err)
	}

	m.mu.Lock()
	m.current = nil
	m.lastEnded = ended.Clone()
	m.gen++
	if m.schedule != nil && ended.ScheduleID != nil && *ended.ScheduleID == m.schedule.ID {
		s := *m.schedule
		s.Status = domain.ScheduleCompleted
		m.schedule = &s
	}
	m.mu.Unlock()

	m.metrics.IncrementShiftEnded(auto)
	if auto {
		slog.Warn("班次超时已自动结束", "shiftID", ended.ID, "cashierID", m.cashierID, "estimatedCash", finalCash.String(), "needsManagerReview", true)
	} else {
		slog.Info("结班成功", "shiftID", ended.ID, "cashierID", m.cashierID, "finalCash", finalCash.String(), "expectedCash", expected.String())
	}

	return ended.Clone(), nil
}

// Overtime 根据当前时间计算超时情况，不做任何修改。无排班的班次没有超时概念
func (m *Manager) Overtime() Overtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overtimeLocked(m.clock.Now())
}

func (m *Manager) overtimeLocked(now time.Time) Overtime {
	if m.current == nil || m.schedule == nil || m.current.ScheduleID == nil || *m.current.ScheduleID != m.schedule.ID {
		return Overtime{}
	}

	minutes := OvertimeMinutes(now, m.schedule.EndTime)
	elapsed := time.Duration(minutes) * time.Minute
	return Overtime{
		Minutes: minutes,
		Warning: elapsed >= m.policy.OvertimeWarning,
		AutoEnd: elapsed >= m.policy.AutoEndAfter,
	}
}

// CheckOvertime 由看门狗每分钟调用一次，超时达到阈值时自动结班
func (m *Manager) CheckOvertime(ctx context.Context) (Overtime, error) {
	o := m.Overtime()
	if !o.AutoEnd {
		if o.Warning {
			slog.Warn("班次已超时", "minutes", o.Minutes, "cashierID", m.cashierID)
		}
		return o, nil
	}
	if m.endGuard != nil && m.endGuard() {
		slog.Warn("有进行中的支付，推迟超时自动结班", "minutes", o.Minutes, "cashierID", m.cashierID)
		return o, nil
	}

	ended, err := m.end(ctx, 0, "", true)
	if err != nil {
		return o, err
	}
	o.AutoEnded = true
	o.Shift = ended
	return o, nil
}

// Stats 读取班次统计。存储服务返回的数据比本地旧时以本地为准，保证提交后读到自己的写入
func (m *Manager) Stats(ctx context.Context) (*domain.ShiftStats, error) {
	cur, err := m.Active()
	if err != nil {
		return nil, err
	}

	remote, err := m.shifts.GetShiftStats(ctx, cur.ID)
	if err != nil {
		return nil, domain.FromStore(err)
	}
	if remote.Version < cur.Version {
		return cur.Stats(), nil
	}

	m.mu.Lock()
	if m.current != nil && m.current.ID == cur.ID && remote.Version >= m.current.Version {
		m.current.TotalSales = remote.TotalSales
		m.current.TotalTransactions = remote.TotalTransactions
		m.current.TotalRefunds = remote.TotalRefunds
		m.current.RefundCount = remote.RefundCount
		m.current.TotalVoids = remote.TotalVoids
		m.current.Version = remote.Version
	}
	m.mu.Unlock()

	return remote, nil
}

// CashCount 计算一次现金清点的差额，不会持久化
func (m *Manager) CashCount(counted string, countType domain.CountType) (domain.CashCount, error) {
	amount, err := money.Parse(counted)
	if err != nil {
		return domain.CashCount{}, domain.ErrInvalidAmount.Withf("清点金额无效：%q", counted)
	}
	if amount.IsNegative() {
		return domain.CashCount{}, domain.ErrInvalidAmount.Withf("清点金额不能为负数")
	}

	cur, err := m.Active()
	if err != nil {
		return domain.CashCount{}, err
	}
	return ledger.Count(cur, amount, countType, m.clock.Now()), nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		State:     StateNoShift,
		Shift:     m.current.Clone(),
		LastEnded: m.lastEnded.Clone(),
	}
	if m.schedule != nil {
		sched := *m.schedule
		s.Schedule = &sched
	}
	if m.current != nil {
		summary := ledger.Summarize(m.current)
		s.Ledger = &summary
		s.State = StateActive
		s.Overtime = m.overtimeLocked(m.clock.Now())
		if s.Overtime.Warning {
			s.State = StateOvertime
		}
	}
	return s
}

func joinNotes(existing, extra string) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(existing) != "" {
		parts = append(parts, strings.TrimSpace(existing))
	}
	if strings.TrimSpace(extra) != "" {
		parts = append(parts, strings.TrimSpace(extra))
	}
	return strings.Join(parts, "; ")
}

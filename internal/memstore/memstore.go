// Package memstore 是存储服务的内存实现，和 PostgreSQL 实现遵守相同的约束：
// 每个收银员只有一个进行中的班次、结班是比较并交换、退款数量不超过剩余数量、提交按幂等键去重。
// 用于测试和离线演示
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ledger"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receiptno"
)

type Store struct {
	clock    clock.Clock
	receipts receiptno.Generator

	mu             sync.Mutex
	nextID         int64
	staff          map[int64]*domain.Staff
	schedules      map[int64]*domain.Schedule
	shifts         map[int64]*domain.Shift
	transactions   map[int64]*domain.Transaction
	byReceipt      map[string]int64
	refunds        map[int64]*domain.RefundRecord
	txnByKey       map[string]int64
	refundByKey    map[string]int64
	voidByKey      map[string]int64
	failNextCommit error
}

func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:        clk,
		receipts:     receiptno.NewSequence(),
		staff:        make(map[int64]*domain.Staff),
		schedules:    make(map[int64]*domain.Schedule),
		shifts:       make(map[int64]*domain.Shift),
		transactions: make(map[int64]*domain.Transaction),
		byReceipt:    make(map[string]int64),
		refunds:      make(map[int64]*domain.RefundRecord),
		txnByKey:     make(map[string]int64),
		refundByKey:  make(map[string]int64),
		voidByKey:    make(map[string]int64),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// FailNextCommit 让下一次交易提交返回 err，用于模拟网络故障
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit = err
}

/**********************************************
 * 员工
 **********************************************/

func (s *Store) CreateStaff(_ context.Context, staff *domain.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.staff {
		if existing.Username == staff.Username {
			return domain.ErrConflict.Withf("用户名 %s 已存在", staff.Username)
		}
	}
	staff.ID = s.id()
	staff.IsActive = true
	staff.CreatedAt = s.clock.Now()
	staff.Version = 1
	c := *staff
	s.staff[staff.ID] = &c
	return nil
}

func (s *Store) GetStaffByUsername(_ context.Context, username string) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, staff := range s.staff {
		if staff.Username == username {
			c := *staff
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) GetStaffByID(_ context.Context, id int64) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staff, ok := s.staff[id]
	if !ok {
		return nil, nil
	}
	c := *staff
	return &c, nil
}

func (s *Store) ListStaff(_ context.Context, businessID int64) ([]*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staff := make([]*domain.Staff, 0)
	for _, st := range s.staff {
		if st.BusinessID == businessID && st.IsActive {
			c := *st
			staff = append(staff, &c)
		}
	}
	sort.Slice(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
	return staff, nil
}

/**********************************************
 * 排班
 **********************************************/

// CreateSchedule 模拟外部排班系统创建排班
func (s *Store) CreateSchedule(_ context.Context, schedule *domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule.ID = s.id()
	if schedule.Status == "" {
		schedule.Status = domain.ScheduleUpcoming
	}
	schedule.CreatedAt = s.clock.Now()
	schedule.Version = 1
	c := *schedule
	s.schedules[schedule.ID] = &c
	return nil
}

func (s *Store) GetTodaySchedule(_ context.Context, cashierID int64, day time.Time) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*domain.Schedule, 0)
	for _, schedule := range s.schedules {
		if schedule.StaffID == cashierID && schedule.IsToday(day) {
			candidates = append(candidates, schedule)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// 优先返回尚未结束的排班
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := isOpenSchedule(candidates[i]), isOpenSchedule(candidates[j])
		if ci != cj {
			return ci
		}
		return candidates[i].StartTime.Before(candidates[j].StartTime)
	})
	c := *candidates[0]
	return &c, nil
}

func (s *Store) GetSchedule(_ context.Context, id int64) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	c := *schedule
	return &c, nil
}

func (s *Store) MarkScheduleMissed(_ context.Context, scheduleID int64) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}

	if schedule.Status == domain.ScheduleUpcoming && !s.clock.Now().Before(schedule.EndTime) && !s.scheduleHasShift(scheduleID) {
		schedule.Status = domain.ScheduleMissed
		schedule.Version++
	}

	c := *schedule
	return &c, nil
}

func (s *Store) scheduleHasShift(scheduleID int64) bool {
	for _, shift := range s.shifts {
		if shift.ScheduleID != nil && *shift.ScheduleID == scheduleID {
			return true
		}
	}
	return false
}

func isOpenSchedule(s *domain.Schedule) bool {
	return s.Status == domain.ScheduleUpcoming || s.Status == domain.ScheduleActive
}

/**********************************************
 * 班次
 **********************************************/

func (s *Store) GetActiveShift(_ context.Context, cashierID int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shift := s.activeShift(cashierID); shift != nil {
		return shift.Clone(), nil
	}
	return nil, nil
}

func (s *Store) activeShift(cashierID int64) *domain.Shift {
	for _, shift := range s.shifts {
		if shift.CashierID == cashierID && shift.Status == domain.ShiftActive {
			return shift
		}
	}
	return nil
}

func (s *Store) GetShift(_ context.Context, id int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[id]
	if !ok {
		return nil, domain.ErrShiftNotFound
	}
	return shift.Clone(), nil
}

func (s *Store) StartShift(_ context.Context, req *domain.StartShiftRequest) (*domain.Shift, error) {
	if req.CashierID == 0 || req.BusinessID == 0 {
		return nil, domain.ErrMissingContext
	}
	if req.StartingCash.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("初始现金不能为负数")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeShift(req.CashierID); existing != nil {
		return nil, domain.ErrShiftAlreadyActive.Withf("收银员已有进行中的班次 %d", existing.ID)
	}

	var schedule *domain.Schedule
	if req.ScheduleID != nil {
		var ok bool
		schedule, ok = s.schedules[*req.ScheduleID]
		if !ok || schedule.StaffID != req.CashierID {
			return nil, domain.ErrScheduleNotFound
		}
	}

	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = s.clock.Now()
	}

	shift := &domain.Shift{
		ID:           s.id(),
		ScheduleID:   req.ScheduleID,
		CashierID:    req.CashierID,
		BusinessID:   req.BusinessID,
		StartTime:    startTime,
		Status:       domain.ShiftActive,
		StartingCash: req.StartingCash,
		Notes:        req.Notes,
		LateStart:    req.LateStart,
		CreatedAt:    s.clock.Now(),
		Version:      1,
	}
	s.shifts[shift.ID] = shift

	if schedule != nil {
		schedule.Status = domain.ScheduleActive
		schedule.Version++
	}

	return shift.Clone(), nil
}

// EndShift 只有状态为 active 时才会生效，已结束的班次直接原样返回
func (s *Store) EndShift(_ context.Context, shiftID int64, req *domain.EndShiftRequest) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, domain.ErrShiftNotFound
	}
	if shift.Status == domain.ShiftEnded {
		return shift.Clone(), nil
	}
	if !req.AutoEnded && req.FinalCashDrawer.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("最终现金不能为负数")
	}

	final, expected, variance := ledger.Close(shift, req.FinalCashDrawer, req.AutoEnded)
	endTime := req.EndTime
	if endTime.IsZero() {
		endTime = s.clock.Now()
	}

	shift.Status = domain.ShiftEnded
	shift.EndTime = &endTime
	shift.FinalCashDrawer = &final
	shift.ExpectedCashDrawer = &expected
	shift.CashVariance = &variance
	shift.Notes = req.Notes
	shift.RequiresApproval = req.AutoEnded
	shift.Version++

	if shift.ScheduleID != nil {
		if schedule, ok := s.schedules[*shift.ScheduleID]; ok {
			schedule.Status = domain.ScheduleCompleted
			schedule.Version++
		}
	}

	return shift.Clone(), nil
}

// ApproveShift 经理审核超时自动结束的班次，重复审核不会改变任何数据
func (s *Store) ApproveShift(_ context.Context, shiftID, approverID int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, domain.ErrShiftNotFound
	}
	if shift.Status != domain.ShiftEnded {
		return nil, domain.ErrInvalidRequest.Withf("班次 %d 尚未结束", shiftID)
	}
	if !shift.RequiresApproval {
		return shift.Clone(), nil
	}

	shift.RequiresApproval = false
	shift.ApprovedBy = &approverID
	shift.Version++
	return shift.Clone(), nil
}

func (s *Store) GetShiftStats(_ context.Context, shiftID int64) (*domain.ShiftStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, domain.ErrShiftNotFound
	}
	return shift.Stats(), nil
}

// writableShift 找到可以入账的班次
func (s *Store) writableShift(shiftID, cashierID int64) (*domain.Shift, error) {
	shift, ok := s.shifts[shiftID]
	if !ok {
		return nil, domain.ErrShiftNotFound
	}
	if shift.Status != domain.ShiftActive {
		return nil, domain.ErrShiftEnded.Withf("班次 %d 已结束，不能再入账", shiftID)
	}
	if shift.CashierID != cashierID {
		return nil, domain.ErrForbidden.Withf("班次 %d 不属于当前收银员", shiftID)
	}
	return shift, nil
}

/**********************************************
 * 交易
 **********************************************/

func (s *Store) CreateTransaction(ctx context.Context, req *domain.NewTransaction) (*domain.TransactionCommit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNextCommit; err != nil {
		s.failNextCommit = nil
		return nil, err
	}

	// 同一个幂等键重复提交时返回第一次的结果，计数器不会重复累加
	if id, ok := s.txnByKey[req.IdempotencyKey]; ok {
		txn := s.transactions[id]
		return &domain.TransactionCommit{Transaction: txn.Clone(), Shift: s.shifts[txn.ShiftID].Clone()}, nil
	}

	shift, err := s.writableShift(req.ShiftID, req.CashierID)
	if err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Next(ctx, req.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:               s.id(),
		ReceiptNumber:    receipt,
		ShiftID:          req.ShiftID,
		BusinessID:       req.BusinessID,
		CashierID:        req.CashierID,
		Timestamp:        req.Timestamp,
		Items:            make([]domain.TransactionItem, len(req.Items)),
		Subtotal:         req.Subtotal,
		Tax:              req.Tax,
		Total:            req.Total,
		PaymentMethod:    req.PaymentMethod,
		CashAmount:       req.CashAmount,
		CardAmount:       req.CardAmount,
		Change:           req.Change,
		PaymentReference: req.PaymentReference,
		Status:           domain.StatusCompleted,
		Type:             domain.TransactionSale,
	}
	for i, item := range req.Items {
		item.ID = s.id()
		item.RefundedQuantity = 0
		txn.Items[i] = item
	}

	s.transactions[txn.ID] = txn
	s.byReceipt[receipt] = txn.ID
	s.txnByKey[req.IdempotencyKey] = txn.ID

	shift.TotalSales += txn.Total
	shift.TotalTransactions++
	shift.Version++

	return &domain.TransactionCommit{Transaction: txn.Clone(), Shift: shift.Clone()}, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return txn.Clone(), nil
}

func (s *Store) GetTransactionByReceipt(_ context.Context, receiptNumber string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReceipt[receiptNumber]
	if !ok {
		return nil, domain.ErrTransactionNotFound.Withf("小票 %s 不存在", receiptNumber)
	}
	return s.transactions[id].Clone(), nil
}

func (s *Store) ListRecentTransactions(_ context.Context, shiftID int64, limit int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txns := make([]*domain.Transaction, 0)
	for _, txn := range s.transactions {
		if txn.ShiftID == shiftID {
			txns = append(txns, txn.Clone())
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].Timestamp.Equal(txns[j].Timestamp) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].Timestamp.After(txns[j].Timestamp)
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *Store) VoidTransaction(ctx context.Context, req *domain.NewVoid) (*domain.VoidCommit, error) {
	if req.IdempotencyKey == "" || req.ShiftID == 0 || req.CashierID == 0 {
		return nil, domain.ErrMissingContext
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.voidByKey[req.IdempotencyKey]; ok {
		void := s.transactions[id]
		original := s.transactions[*void.OriginalTransactionID]
		return &domain.VoidCommit{Void: void.Clone(), Original: original.Clone(), Shift: s.shifts[void.ShiftID].Clone()}, nil
	}

	original, ok := s.transactions[req.OriginalTransactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	shift, err := s.writableShift(req.ShiftID, req.CashierID)
	if err != nil {
		return nil, err
	}
	if err := original.CheckVoidable(req.ShiftID); err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Next(ctx, original.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	originalID := original.ID
	void := &domain.Transaction{
		ID:                    s.id(),
		ReceiptNumber:         receipt,
		ShiftID:               req.ShiftID,
		BusinessID:            original.BusinessID,
		CashierID:             req.CashierID,
		Timestamp:             req.Timestamp,
		Items:                 []domain.TransactionItem{},
		Subtotal:              -original.Subtotal,
		Tax:                   -original.Tax,
		Total:                 -original.Total,
		PaymentMethod:         original.PaymentMethod,
		Status:                domain.StatusCompleted,
		Type:                  domain.TransactionVoid,
		OriginalTransactionID: &originalID,
		Notes:                 req.Reason,
	}
	s.transactions[void.ID] = void
	s.byReceipt[receipt] = void.ID
	s.voidByKey[req.IdempotencyKey] = void.ID

	original.Status = domain.StatusVoided
	shift.TotalVoids++
	shift.Version++

	return &domain.VoidCommit{Void: void.Clone(), Original: original.Clone(), Shift: shift.Clone()}, nil
}

/**********************************************
 * 退款
 **********************************************/

func (s *Store) CreateRefund(ctx context.Context, req *domain.NewRefund) (*domain.RefundCommit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.refundByKey[req.IdempotencyKey]; ok {
		refund := s.refunds[id]
		return &domain.RefundCommit{
			Refund:      cloneRefund(refund),
			Transaction: s.transactions[refund.RefundTransactionID].Clone(),
			Original:    s.transactions[refund.OriginalTransactionID].Clone(),
			Shift:       s.shifts[refund.ShiftID].Clone(),
		}, nil
	}

	original, ok := s.transactions[req.OriginalTransactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	shift, err := s.writableShift(req.ShiftID, req.CashierID)
	if err != nil {
		return nil, err
	}

	// 先全部校验再修改，任何一行不合法都不会留下部分修改
	items, total, err := domain.PriceRefund(original, req.Items)
	if err != nil {
		return nil, err
	}

	receipt, err := s.receipts.Next(ctx, req.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	originalID := original.ID
	refundTxn := &domain.Transaction{
		ID:                    s.id(),
		ReceiptNumber:         receipt,
		ShiftID:               req.ShiftID,
		BusinessID:            req.BusinessID,
		CashierID:             req.CashierID,
		Timestamp:             req.Timestamp,
		Items:                 make([]domain.TransactionItem, 0, len(items)),
		Subtotal:              -total,
		Tax:                   0,
		Total:                 -total,
		PaymentMethod:         req.Method.PaymentMethod(original),
		Status:                domain.StatusCompleted,
		Type:                  domain.TransactionRefund,
		OriginalTransactionID: &originalID,
		Notes:                 req.Reason,
	}
	for _, item := range items {
		refundTxn.Items = append(refundTxn.Items, domain.TransactionItem{
			ID:          s.id(),
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.RefundQuantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  -item.RefundAmount,
		})
		line, _ := original.Item(item.OriginalItemID)
		line.RefundedQuantity += item.RefundQuantity
	}
	original.RefreshStatus()

	refund := &domain.RefundRecord{
		ID:                    s.id(),
		OriginalTransactionID: original.ID,
		RefundTransactionID:   refundTxn.ID,
		ReceiptNumber:         receipt,
		ShiftID:               req.ShiftID,
		CashierID:             req.CashierID,
		BusinessID:            req.BusinessID,
		Items:                 items,
		TotalAmount:           total,
		Reason:                req.Reason,
		Method:                req.Method,
		CreatedAt:             req.Timestamp,
	}

	s.transactions[refundTxn.ID] = refundTxn
	s.byReceipt[receipt] = refundTxn.ID
	s.refunds[refund.ID] = refund
	s.refundByKey[req.IdempotencyKey] = refund.ID

	shift.TotalRefunds += total
	shift.RefundCount++
	shift.Version++

	return &domain.RefundCommit{
		Refund:      cloneRefund(refund),
		Transaction: refundTxn.Clone(),
		Original:    original.Clone(),
		Shift:       shift.Clone(),
	}, nil
}

func cloneRefund(r *domain.RefundRecord) *domain.RefundRecord {
	c := *r
	c.Items = make([]domain.RefundItem, len(r.Items))
	copy(c.Items, r.Items)
	return &c
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ledger"
)

const shiftColumns = `
	id, schedule_id, cashier_id, business_id, start_time, end_time, status, starting_cash,
	final_cash_drawer, expected_cash_drawer, cash_variance,
	total_sales, total_transactions, total_refunds, refund_count, total_voids,
	notes, late_start, requires_approval, approved_by, created_at, version`

func scanShift(row interface{ Scan(...any) error }) (*domain.Shift, error) {
	s := &domain.Shift{}
	dst := []any{
		&s.ID, &s.ScheduleID, &s.CashierID, &s.BusinessID, &s.StartTime, &s.EndTime, &s.Status, &s.StartingCash,
		&s.FinalCashDrawer, &s.ExpectedCashDrawer, &s.CashVariance,
		&s.TotalSales, &s.TotalTransactions, &s.TotalRefunds, &s.RefundCount, &s.TotalVoids,
		&s.Notes, &s.LateStart, &s.RequiresApproval, &s.ApprovedBy, &s.CreatedAt, &s.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return s, nil
}

// GetActiveShift 没有进行中的班次时返回 (nil, nil)
func (r *Repository) GetActiveShift(ctx context.Context, cashierID int64) (*domain.Shift, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	shift, err := scanShift(r.dbpool.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE cashier_id = $1 AND status = 'active'`, cashierID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return shift, err
}

func (r *Repository) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return getShift(ctx, r.dbpool, id, false)
}

func getShift(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	shift, err := scanShift(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrShiftNotFound
	}
	return shift, err
}

func (r *Repository) StartShift(ctx context.Context, req *domain.StartShiftRequest) (*domain.Shift, error) {
	if req.CashierID == 0 || req.BusinessID == 0 {
		return nil, domain.ErrMissingContext
	}
	if req.StartingCash.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("初始现金不能为负数")
	}

	ctx, cancel := r.txContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if req.ScheduleID != nil {
		var staffID int64
		query := `SELECT staff_id FROM schedules WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, query, *req.ScheduleID).Scan(&staffID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.ErrScheduleNotFound
			}
			return nil, err
		}
		if staffID != req.CashierID {
			return nil, domain.ErrScheduleNotFound
		}
	}

	startTime := req.StartTime
	if startTime.IsZero() {
		startTime = r.clock.Now()
	}

	query := `
		INSERT INTO shifts (schedule_id, cashier_id, business_id, start_time, starting_cash, notes, late_start)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + shiftColumns

	args := []any{req.ScheduleID, req.CashierID, req.BusinessID, startTime, req.StartingCash, req.Notes, req.LateStart}
	shift, err := scanShift(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		switch constraintName(err) {
		case "shifts_one_active_per_cashier":
			return nil, domain.ErrShiftAlreadyActive
		default:
			return nil, err
		}
	}

	if req.ScheduleID != nil {
		query := `UPDATE schedules SET status = 'active', version = version + 1 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, *req.ScheduleID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return shift, nil
}

// EndShift 是比较并交换：只有状态仍为 active 时才会更新，已结束的班次原样返回
func (r *Repository) EndShift(ctx context.Context, shiftID int64, req *domain.EndShiftRequest) (*domain.Shift, error) {
	ctx, cancel := r.txContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	shift, err := getShift(ctx, tx, shiftID, true)
	if err != nil {
		return nil, err
	}
	if shift.Status == domain.ShiftEnded {
		return shift, nil
	}
	if !req.AutoEnded && req.FinalCashDrawer.IsNegative() {
		return nil, domain.ErrInvalidAmount.Withf("最终现金不能为负数")
	}

	// 期望现金以数据库中的计数器为准，终端上报的统计只用于日志核对
	final, expected, variance := ledger.Close(shift, req.FinalCashDrawer, req.AutoEnded)
	endTime := req.EndTime
	if endTime.IsZero() {
		endTime = r.clock.Now()
	}

	query := `
		UPDATE shifts
		SET
			status = 'ended',
			end_time = $1,
			final_cash_drawer = $2,
			expected_cash_drawer = $3,
			cash_variance = $4,
			notes = $5,
			requires_approval = $6,
			version = version + 1
		WHERE id = $7 AND status = 'active'
		RETURNING ` + shiftColumns

	args := []any{endTime, final, expected, variance, req.Notes, req.AutoEnded, shiftID}
	ended, err := scanShift(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	if ended.ScheduleID != nil {
		query := `UPDATE schedules SET status = 'completed', version = version + 1 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, *ended.ScheduleID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return ended, nil
}

// ApproveShift 经理审核超时自动结束的班次，重复审核不会改变任何数据
func (r *Repository) ApproveShift(ctx context.Context, shiftID, approverID int64) (*domain.Shift, error) {
	qctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE shifts
		SET requires_approval = FALSE, approved_by = $2, version = version + 1
		WHERE id = $1 AND status = 'ended' AND requires_approval
		RETURNING ` + shiftColumns

	shift, err := scanShift(r.dbpool.QueryRowContext(qctx, query, shiftID, approverID))
	if !errors.Is(err, sql.ErrNoRows) {
		return shift, err
	}

	shift, err = r.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.Status != domain.ShiftEnded {
		return nil, domain.ErrInvalidRequest.Withf("班次 %d 尚未结束", shiftID)
	}
	return shift, nil
}

func (r *Repository) GetShiftStats(ctx context.Context, shiftID int64) (*domain.ShiftStats, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT total_transactions, total_sales, total_refunds, refund_count, total_voids, version
		FROM shifts WHERE id = $1
	`

	stats := &domain.ShiftStats{}
	dst := []any{&stats.TotalTransactions, &stats.TotalSales, &stats.TotalRefunds, &stats.RefundCount, &stats.TotalVoids, &stats.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, shiftID).Scan(dst...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrShiftNotFound
		}
		return nil, err
	}

	return stats, nil
}

// writableShift 锁住可以入账的班次
func writableShift(ctx context.Context, tx *sql.Tx, shiftID, cashierID int64) (*domain.Shift, error) {
	shift, err := getShift(ctx, tx, shiftID, true)
	if err != nil {
		return nil, err
	}
	if shift.Status != domain.ShiftActive {
		return nil, domain.ErrShiftEnded.Withf("班次 %d 已结束，不能再入账", shiftID)
	}
	if shift.CashierID != cashierID {
		return nil, domain.ErrForbidden.Withf("班次 %d 不属于当前收银员", shiftID)
	}
	return shift, nil
}

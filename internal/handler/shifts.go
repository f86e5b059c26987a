package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

// cashierParam 读取查询参数中的收银员，并检查当前用户有权查看
func (h *Handler) cashierParam(r *http.Request) (int64, error) {
	cashierID, err := strconv.ParseInt(r.URL.Query().Get("cashierID"), 10, 64)
	if err != nil || cashierID <= 0 {
		return 0, domain.ErrInvalidRequest.Withf("收银员ID无效")
	}
	business, _ := r.Context().Value(BusinessCtxKey).(int64)
	if err := h.authorize(r, cashierID, business); err != nil {
		return 0, err
	}
	return cashierID, nil
}

func (h *Handler) GetTodaySchedule(w http.ResponseWriter, r *http.Request) {
	cashierID, err := h.cashierParam(r)
	if err != nil {
		h.domainError(w, r, err)
		return
	}

	day := h.clock.Now()
	if param := r.URL.Query().Get("day"); param != "" {
		day, err = time.Parse(time.RFC3339, param)
		if err != nil {
			h.domainError(w, r, domain.ErrInvalidRequest.Withf("日期格式错误"))
			return
		}
	}

	schedule, err := h.store.GetTodaySchedule(r.Context(), cashierID, day)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if schedule == nil {
		h.successResponse(w, r, "今天没有排班", nil)
		return
	}
	if err := h.authorizeBusiness(r, schedule.BusinessID); err != nil {
		h.domainError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排班成功", schedule)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := r.Context().Value(ScheduleCtx).(*domain.Schedule)
	h.successResponse(w, r, "获取排班成功", schedule)
}

func (h *Handler) MarkScheduleMissed(w http.ResponseWriter, r *http.Request) {
	schedule := r.Context().Value(ScheduleCtx).(*domain.Schedule)

	updated, err := h.store.MarkScheduleMissed(r.Context(), schedule.ID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新排班状态成功", updated)
}

func (h *Handler) GetActiveShift(w http.ResponseWriter, r *http.Request) {
	cashierID, err := h.cashierParam(r)
	if err != nil {
		h.domainError(w, r, err)
		return
	}

	shift, err := h.store.GetActiveShift(r.Context(), cashierID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if shift == nil {
		h.successResponse(w, r, "当前没有进行中的班次", nil)
		return
	}

	h.successResponse(w, r, "获取班次成功", shift)
}

func (h *Handler) StartShift(w http.ResponseWriter, r *http.Request) {
	var req domain.StartShiftRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.CashierID == 0 || req.BusinessID == 0 {
		h.domainError(w, r, domain.ErrMissingContext)
		return
	}
	if err := h.authorize(r, req.CashierID, req.BusinessID); err != nil {
		h.domainError(w, r, err)
		return
	}

	if h.locker != nil {
		release, err := h.locker.LockShiftStart(r.Context(), req.CashierID)
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		defer release()
	}

	shift, err := h.store.StartShift(r.Context(), &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.metrics.IncrementShiftStarted()
	h.successResponse(w, r, "开班成功", shift)
}

func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(ShiftCtx).(*domain.Shift)
	h.successResponse(w, r, "获取班次成功", shift)
}

func (h *Handler) GetShiftStats(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(ShiftCtx).(*domain.Shift)

	stats, err := h.store.GetShiftStats(r.Context(), shift.ID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取班次统计成功", stats)
}

func (h *Handler) EndShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(ShiftCtx).(*domain.Shift)

	var req domain.EndShiftRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.FinalCashDrawer.IsNegative() {
		h.domainError(w, r, domain.ErrInvalidAmount.Withf("最终现金不能为负数"))
		return
	}

	ended, err := h.store.EndShift(r.Context(), shift.ID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	// 重复结班不会改变任何数据，也不重复计数
	if shift.IsActive() {
		h.metrics.IncrementShiftEnded(req.AutoEnded)
	}
	h.successResponse(w, r, "结班成功", ended)
}

func (h *Handler) ListRecentTransactions(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(ShiftCtx).(*domain.Shift)

	limit := 20
	if param := r.URL.Query().Get("limit"); param != "" {
		n, err := strconv.Atoi(param)
		if err != nil || n <= 0 {
			h.domainError(w, r, domain.ErrInvalidRequest.Withf("limit 无效"))
			return
		}
		limit = min(n, 100)
	}

	txns, err := h.store.ListRecentTransactions(r.Context(), shift.ID, limit)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取交易列表成功", txns)
}

// ApproveShift 经理或主管审核超时自动结束的班次
func (h *Handler) ApproveShift(w http.ResponseWriter, r *http.Request) {
	shift := r.Context().Value(ShiftCtx).(*domain.Shift)

	approverID, err := actorID(r)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	approved, err := h.store.ApproveShift(r.Context(), shift.ID, approverID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "审核成功", approved)
}

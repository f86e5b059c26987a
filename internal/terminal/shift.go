package terminal

import (
	"net/http"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/shift"
)

func (t *Terminal) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	t.successResponse(w, r, "获取终端状态成功", t.manager.Snapshot())
}

func (t *Terminal) StartShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartingCash     string `json:"startingCash" validate:"required"`
		ConfirmLateStart bool   `json:"confirmLateStart"`
		Unscheduled      bool   `json:"unscheduled"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	started, err := t.manager.Start(r.Context(), shift.StartOptions{
		StartingCash:     req.StartingCash,
		ConfirmLateStart: req.ConfirmLateStart,
		Unscheduled:      req.Unscheduled,
	})
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "开班成功", started)
}

func (t *Terminal) EndShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FinalCashDrawer string `json:"finalCashDrawer" validate:"required"`
		Notes           string `json:"notes" validate:"max=500"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	// 结账进行中不允许结班，否则刷卡成功后的提交会落到已结束的班次上
	t.mu.Lock()
	busy := t.cancelCheckout != nil
	t.mu.Unlock()
	if busy {
		t.domainError(w, r, domain.ErrConflict.Withf("正在结账，请先完成或取消"))
		return
	}
	if t.sales.Busy() {
		t.domainError(w, r, domain.ErrConflict.Withf("有已扣款但未提交的交易，请先重新结账或撤销扣款"))
		return
	}

	ended, err := t.manager.End(r.Context(), req.FinalCashDrawer, req.Notes)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "结班成功", ended)
}

func (t *Terminal) CashCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Counted string           `json:"counted" validate:"required"`
		Type    domain.CountType `json:"type" validate:"required,oneof=opening mid_shift closing spot"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	count, err := t.manager.CashCount(req.Counted, req.Type)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "现金清点完成", count)
}

func (t *Terminal) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := t.manager.Stats(r.Context())
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "获取班次统计成功", stats)
}

package terminal

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/refund"
)

type LookupResult struct {
	Transaction *domain.Transaction     `json:"transaction"`
	Lines       []refund.RefundableLine `json:"lines"`
}

func (t *Terminal) LookupRefund(w http.ResponseWriter, r *http.Request) {
	txn, err := t.refunds.Lookup(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "查找交易成功", LookupResult{
		Transaction: txn,
		Lines:       refund.RefundableLines(txn),
	})
}

func (t *Terminal) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			t.domainError(w, r, domain.ErrInvalidRequest.Withf("limit 必须在 1 到 100 之间"))
			return
		}
		limit = n
	}

	txns, err := t.refunds.Recent(r.Context(), limit)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "获取最近交易成功", txns)
}

func (t *Terminal) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginalTransactionID int64               `json:"originalTransactionID" validate:"required,min=1"`
		Items                 []domain.RefundItem `json:"items" validate:"required,min=1"`
		Reason                string              `json:"reason" validate:"max=500"`
		Method                domain.RefundMethod `json:"method" validate:"required,oneof=cash card original"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	res, err := t.refunds.Refund(r.Context(), req.OriginalTransactionID, req.Items, req.Reason, req.Method)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "退款成功", res)
}

func (t *Terminal) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	commit, err := t.sales.Void(r.Context(), id, req.Reason)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "交易已作废", commit)
}

func (t *Terminal) ReprintReceipt(w http.ResponseWriter, r *http.Request) {
	delivery, err := t.receipts.Reprint(r.Context(), strings.ToUpper(chi.URLParam(r, "receipt")))
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "已重新打印小票", delivery)
}

func (t *Terminal) EmailReceipt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to" validate:"required,email"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	receiptNumber := strings.ToUpper(chi.URLParam(r, "receipt"))
	if err := t.receipts.Email(r.Context(), receiptNumber, req.To); err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, "小票邮件已发送", nil)
}

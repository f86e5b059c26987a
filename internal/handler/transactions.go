package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.NewTransaction
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

	commit, err := h.store.CreateTransaction(r.Context(), &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "交易已提交", commit)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn := r.Context().Value(TransactionCtx).(*domain.Transaction)
	h.successResponse(w, r, "获取交易成功", txn)
}

func (h *Handler) GetTransactionByReceipt(w http.ResponseWriter, r *http.Request) {
	receiptNumber := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "receipt")))
	if receiptNumber == "" {
		h.domainError(w, r, domain.ErrInvalidRequest.Withf("小票号不能为空"))
		return
	}

	txn, err := h.store.GetTransactionByReceipt(r.Context(), receiptNumber)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if err := h.authorizeBusiness(r, txn.BusinessID); err != nil {
		h.domainError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取交易成功", txn)
}

func (h *Handler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	txn := r.Context().Value(TransactionCtx).(*domain.Transaction)

	var req domain.NewVoid
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	req.OriginalTransactionID = txn.ID
	if err := h.authorize(r, req.CashierID, txn.BusinessID); err != nil {
		h.domainError(w, r, err)
		return
	}

	commit, err := h.store.VoidTransaction(r.Context(), &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "交易已作废", commit)
}

func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.NewRefund
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

	commit, err := h.store.CreateRefund(r.Context(), &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	h.successResponse(w, r, "退款已提交", commit)
}

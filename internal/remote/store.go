package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

func (c *Client) GetActiveShift(ctx context.Context, cashierID int64) (*domain.Shift, error) {
	return call[domain.Shift](ctx, c, http.MethodGet, "/shifts/active", map[string]string{"cashierID": id(cashierID)}, nil, "")
}

func (c *Client) GetShift(ctx context.Context, shiftID int64) (*domain.Shift, error) {
	return call[domain.Shift](ctx, c, http.MethodGet, "/shifts/"+id(shiftID), nil, nil, "")
}

func (c *Client) GetTodaySchedule(ctx context.Context, cashierID int64, day time.Time) (*domain.Schedule, error) {
	return call[domain.Schedule](ctx, c, http.MethodGet, "/schedules/today", map[string]string{
		"cashierID": id(cashierID),
		"day":       day.Format(time.RFC3339),
	}, nil, "")
}

func (c *Client) GetSchedule(ctx context.Context, scheduleID int64) (*domain.Schedule, error) {
	return call[domain.Schedule](ctx, c, http.MethodGet, "/schedules/"+id(scheduleID), nil, nil, "")
}

func (c *Client) StartShift(ctx context.Context, req *domain.StartShiftRequest) (*domain.Shift, error) {
	shift, err := call[domain.Shift](ctx, c, http.MethodPost, "/shifts", nil, req, "")
	if err == nil && shift == nil {
		return nil, domain.ErrStoreUnavailable.Withf("开班接口没有返回班次")
	}
	return shift, err
}

func (c *Client) EndShift(ctx context.Context, shiftID int64, req *domain.EndShiftRequest) (*domain.Shift, error) {
	shift, err := call[domain.Shift](ctx, c, http.MethodPost, "/shifts/"+id(shiftID)+"/end", nil, req, "")
	if err == nil && shift == nil {
		return nil, domain.ErrStoreUnavailable.Withf("结班接口没有返回班次")
	}
	return shift, err
}

func (c *Client) GetShiftStats(ctx context.Context, shiftID int64) (*domain.ShiftStats, error) {
	return call[domain.ShiftStats](ctx, c, http.MethodGet, "/shifts/"+id(shiftID)+"/stats", nil, nil, "")
}

func (c *Client) MarkScheduleMissed(ctx context.Context, scheduleID int64) (*domain.Schedule, error) {
	return call[domain.Schedule](ctx, c, http.MethodPost, "/schedules/"+id(scheduleID)+"/missed", nil, nil, "")
}

func (c *Client) CreateTransaction(ctx context.Context, req *domain.NewTransaction) (*domain.TransactionCommit, error) {
	return call[domain.TransactionCommit](ctx, c, http.MethodPost, "/transactions", nil, req, req.IdempotencyKey)
}

func (c *Client) GetTransactionByID(ctx context.Context, txID int64) (*domain.Transaction, error) {
	return call[domain.Transaction](ctx, c, http.MethodGet, "/transactions/"+id(txID), nil, nil, "")
}

func (c *Client) GetTransactionByReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error) {
	return call[domain.Transaction](ctx, c, http.MethodGet, "/transactions/by-receipt/"+url.PathEscape(receiptNumber), nil, nil, "")
}

func (c *Client) ListRecentTransactions(ctx context.Context, shiftID int64, limit int) ([]*domain.Transaction, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	txns, err := call[[]*domain.Transaction](ctx, c, http.MethodGet, "/shifts/"+id(shiftID)+"/transactions", params, nil, "")
	if err != nil || txns == nil {
		return nil, err
	}
	return *txns, nil
}

func (c *Client) VoidTransaction(ctx context.Context, req *domain.NewVoid) (*domain.VoidCommit, error) {
	return call[domain.VoidCommit](ctx, c, http.MethodPost, "/transactions/"+id(req.OriginalTransactionID)+"/void", nil, req, req.IdempotencyKey)
}

func (c *Client) CreateRefund(ctx context.Context, req *domain.NewRefund) (*domain.RefundCommit, error) {
	return call[domain.RefundCommit](ctx, c, http.MethodPost, "/refunds", nil, req, req.IdempotencyKey)
}

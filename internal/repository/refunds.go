package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

func scanRefund(row interface{ Scan(...any) error }) (*domain.RefundRecord, error) {
	rf := &domain.RefundRecord{}
	dst := []any{&rf.ID, &rf.OriginalTransactionID, &rf.RefundTransactionID, &rf.ShiftID, &rf.CashierID, &rf.BusinessID, &rf.TotalAmount, &rf.Reason, &rf.Method, &rf.CreatedAt}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return rf, nil
}

// refundByKey 幂等键没有用过时返回 (nil, nil)
func refundByKey(ctx context.Context, q queryer, key string) (*domain.RefundRecord, error) {
	query := `
		SELECT id, original_transaction_id, refund_transaction_id, shift_id, cashier_id, business_id, total_amount, reason, method, created_at
		FROM refunds WHERE idempotency_key = $1
	`

	rf, err := scanRefund(q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	query = `
		SELECT original_item_id, product_id, product_name, refund_quantity, unit_price, refund_amount, reason, restockable
		FROM refund_items WHERE refund_id = $1 ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, rf.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rf.Items = make([]domain.RefundItem, 0)
	for rows.Next() {
		var item domain.RefundItem
		dst := []any{&item.OriginalItemID, &item.ProductID, &item.ProductName, &item.RefundQuantity, &item.UnitPrice, &item.RefundAmount, &item.Reason, &item.Restockable}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		rf.Items = append(rf.Items, item)
	}

	return rf, rows.Err()
}

func refundCommit(ctx context.Context, q queryer, rf *domain.RefundRecord) (*domain.RefundCommit, error) {
	refundTxn, err := getTransaction(ctx, q, `id = $1`, rf.RefundTransactionID, false)
	if err != nil {
		return nil, err
	}
	rf.ReceiptNumber = refundTxn.ReceiptNumber

	original, err := getTransaction(ctx, q, `id = $1`, rf.OriginalTransactionID, false)
	if err != nil {
		return nil, err
	}
	shift, err := getShift(ctx, q, rf.ShiftID, false)
	if err != nil {
		return nil, err
	}
	return &domain.RefundCommit{Refund: rf, Transaction: refundTxn, Original: original, Shift: shift}, nil
}

// CreateRefund 锁住原交易后重新校验每一行的可退数量，退款记在请求中的当前班次上。
// 任何一行不合法整个事务回滚
func (r *Repository) CreateRefund(ctx context.Context, req *domain.NewRefund) (*domain.RefundCommit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
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

	if existing, err := refundByKey(ctx, tx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return refundCommit(ctx, tx, existing)
	}

	original, err := getTransaction(ctx, tx, `id = $1`, req.OriginalTransactionID, true)
	if err != nil {
		return nil, err
	}
	if _, err := writableShift(ctx, tx, req.ShiftID, req.CashierID); err != nil {
		return nil, err
	}

	items, total, err := domain.PriceRefund(original, req.Items)
	if err != nil {
		return nil, err
	}

	receipt, err := r.receipts.Next(ctx, req.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	originalID := original.ID
	refundTxn := &domain.Transaction{
		ReceiptNumber:         receipt,
		ShiftID:               req.ShiftID,
		BusinessID:            req.BusinessID,
		CashierID:             req.CashierID,
		Timestamp:             req.Timestamp,
		Items:                 make([]domain.TransactionItem, 0, len(items)),
		Subtotal:              -total,
		Total:                 -total,
		PaymentMethod:         req.Method.PaymentMethod(original),
		Status:                domain.StatusCompleted,
		Type:                  domain.TransactionRefund,
		OriginalTransactionID: &originalID,
		Notes:                 req.Reason,
	}
	for _, item := range items {
		refundTxn.Items = append(refundTxn.Items, domain.TransactionItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.RefundQuantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  -item.RefundAmount,
		})
	}
	if err := insertTransaction(ctx, tx, "refund:"+req.IdempotencyKey, refundTxn); err != nil {
		return nil, err
	}

	rf := &domain.RefundRecord{
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
	if rf.CreatedAt.IsZero() {
		rf.CreatedAt = r.clock.Now()
	}

	query := `
		INSERT INTO refunds (idempotency_key, original_transaction_id, refund_transaction_id, shift_id, cashier_id, business_id, total_amount, reason, method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	args := []any{req.IdempotencyKey, rf.OriginalTransactionID, rf.RefundTransactionID, rf.ShiftID, rf.CashierID, rf.BusinessID, rf.TotalAmount, rf.Reason, rf.Method, rf.CreatedAt}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&rf.ID); err != nil {
		return nil, err
	}

	for _, item := range items {
		query := `
			INSERT INTO refund_items (refund_id, original_item_id, product_id, product_name, refund_quantity, unit_price, refund_amount, reason, restockable)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		args := []any{rf.ID, item.OriginalItemID, item.ProductID, item.ProductName, item.RefundQuantity, item.UnitPrice, item.RefundAmount, item.Reason, item.Restockable}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}

		// 原交易已经被锁住，这里的条件和检查约束是最后一道防线
		query = `
			UPDATE transaction_items
			SET refunded_quantity = refunded_quantity + $1
			WHERE id = $2 AND refunded_quantity + $1 <= quantity
		`

		res, err := tx.ExecContext(ctx, query, item.RefundQuantity, item.OriginalItemID)
		if err != nil {
			if constraintName(err) == "transaction_items_refunded_quantity_check" {
				return nil, domain.ErrOverRefund
			}
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 0 {
			return nil, domain.ErrOverRefund.Withf("商品 %s 的可退数量已变化，请重试", item.ProductName)
		}

		line, _ := original.Item(item.OriginalItemID)
		line.RefundedQuantity += item.RefundQuantity
	}

	original.RefreshStatus()
	if _, err := tx.ExecContext(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, original.Status, original.ID); err != nil {
		return nil, err
	}

	query = `
		UPDATE shifts
		SET total_refunds = total_refunds + $1, refund_count = refund_count + 1, version = version + 1
		WHERE id = $2
		RETURNING ` + shiftColumns

	shift, err := scanShift(tx.QueryRowContext(ctx, query, total, req.ShiftID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if constraintName(err) == "refunds_idempotency_key_key" {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	return &domain.RefundCommit{Refund: rf, Transaction: refundTxn, Original: original, Shift: shift}, nil
}

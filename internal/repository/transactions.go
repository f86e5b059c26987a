package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const transactionColumns = `
	id, receipt_number, shift_id, business_id, cashier_id, timestamp,
	subtotal, tax, total, payment_method, cash_amount, card_amount, change,
	payment_reference, status, type, original_transaction_id, notes`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	dst := []any{
		&t.ID, &t.ReceiptNumber, &t.ShiftID, &t.BusinessID, &t.CashierID, &t.Timestamp,
		&t.Subtotal, &t.Tax, &t.Total, &t.PaymentMethod, &t.CashAmount, &t.CardAmount, &t.Change,
		&t.PaymentReference, &t.Status, &t.Type, &t.OriginalTransactionID, &t.Notes,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return t, nil
}

func loadItems(ctx context.Context, q queryer, txn *domain.Transaction) error {
	query := `
		SELECT id, product_id, product_name, quantity, unit_price, total_price, tax_amount, refunded_quantity
		FROM transaction_items WHERE transaction_id = $1 ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, txn.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	txn.Items = make([]domain.TransactionItem, 0)
	for rows.Next() {
		var item domain.TransactionItem
		dst := []any{&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.TaxAmount, &item.RefundedQuantity}
		if err := rows.Scan(dst...); err != nil {
			return err
		}
		txn.Items = append(txn.Items, item)
	}

	return rows.Err()
}

// getTransaction 按条件查询一笔交易及其明细，找不到时返回 ErrTransactionNotFound
func getTransaction(ctx context.Context, q queryer, where string, arg any, forUpdate bool) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	txn, err := scanTransaction(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if err := loadItems(ctx, q, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// transactionByKey 幂等键没有用过时返回 (nil, nil)
func transactionByKey(ctx context.Context, q queryer, key string) (*domain.Transaction, error) {
	txn, err := getTransaction(ctx, q, `idempotency_key = $1`, key, false)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, nil
	}
	return txn, err
}

func (r *Repository) GetTransactionByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return getTransaction(ctx, r.dbpool, `id = $1`, id, false)
}

func (r *Repository) GetTransactionByReceipt(ctx context.Context, receiptNumber string) (*domain.Transaction, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	txn, err := getTransaction(ctx, r.dbpool, `receipt_number = $1`, receiptNumber, false)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, domain.ErrTransactionNotFound.Withf("小票 %s 不存在", receiptNumber)
	}
	return txn, err
}

func (r *Repository) ListRecentTransactions(ctx context.Context, shiftID int64, limit int) ([]*domain.Transaction, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE shift_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`

	rows, err := r.dbpool.QueryContext(ctx, query, shiftID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, txn := range txns {
		if err := loadItems(ctx, r.dbpool, txn); err != nil {
			return nil, err
		}
	}

	return txns, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, key string, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			idempotency_key, receipt_number, shift_id, business_id, cashier_id, timestamp,
			subtotal, tax, total, payment_method, cash_amount, card_amount, change,
			payment_reference, status, type, original_transaction_id, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	args := []any{
		key, txn.ReceiptNumber, txn.ShiftID, txn.BusinessID, txn.CashierID, txn.Timestamp,
		txn.Subtotal, txn.Tax, txn.Total, txn.PaymentMethod, txn.CashAmount, txn.CardAmount, txn.Change,
		txn.PaymentReference, txn.Status, txn.Type, txn.OriginalTransactionID, txn.Notes,
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&txn.ID); err != nil {
		return err
	}

	for i := range txn.Items {
		item := &txn.Items[i]
		query := `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, unit_price, total_price, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`

		args := []any{txn.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice, item.TaxAmount}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&item.ID); err != nil {
			return err
		}
	}

	return nil
}

// CreateTransaction 在一个事务里写入交易和明细并累加班次计数器。
// 同一个幂等键重复提交时返回第一次的结果
func (r *Repository) CreateTransaction(ctx context.Context, req *domain.NewTransaction) (*domain.TransactionCommit, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	commit, err := r.createTransaction(ctx, req)
	if constraintName(err) == "transactions_idempotency_key_key" {
		// 并发的重试抢先提交了，返回它的结果
		return r.existingTransaction(ctx, req.IdempotencyKey)
	}
	return commit, err
}

func (r *Repository) existingTransaction(ctx context.Context, key string) (*domain.TransactionCommit, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	txn, err := transactionByKey(ctx, r.dbpool, key)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrConflict
	}
	shift, err := getShift(ctx, r.dbpool, txn.ShiftID, false)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionCommit{Transaction: txn, Shift: shift}, nil
}

func (r *Repository) createTransaction(ctx context.Context, req *domain.NewTransaction) (*domain.TransactionCommit, error) {
	ctx, cancel := r.txContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if existing, err := transactionByKey(ctx, tx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		shift, err := getShift(ctx, tx, existing.ShiftID, false)
		if err != nil {
			return nil, err
		}
		return &domain.TransactionCommit{Transaction: existing, Shift: shift}, nil
	}

	if _, err := writableShift(ctx, tx, req.ShiftID, req.CashierID); err != nil {
		return nil, err
	}

	receipt, err := r.receipts.Next(ctx, req.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
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
	copy(txn.Items, req.Items)
	if err := insertTransaction(ctx, tx, req.IdempotencyKey, txn); err != nil {
		return nil, err
	}

	query := `
		UPDATE shifts
		SET total_sales = total_sales + $1, total_transactions = total_transactions + 1, version = version + 1
		WHERE id = $2 AND status = 'active'
		RETURNING ` + shiftColumns

	shift, err := scanShift(tx.QueryRowContext(ctx, query, txn.Total, req.ShiftID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.TransactionCommit{Transaction: txn, Shift: shift}, nil
}

// VoidTransaction 作废本班次内没有退款的销售。作废只增加作废计数，销售额保持不变
func (r *Repository) VoidTransaction(ctx context.Context, req *domain.NewVoid) (*domain.VoidCommit, error) {
	if req.IdempotencyKey == "" || req.ShiftID == 0 || req.CashierID == 0 {
		return nil, domain.ErrMissingContext
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

	if existing, err := transactionByKey(ctx, tx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return voidCommit(ctx, tx, existing)
	}

	original, err := getTransaction(ctx, tx, `id = $1`, req.OriginalTransactionID, true)
	if err != nil {
		return nil, err
	}
	if _, err := writableShift(ctx, tx, req.ShiftID, req.CashierID); err != nil {
		return nil, err
	}
	if err := original.CheckVoidable(req.ShiftID); err != nil {
		return nil, err
	}

	receipt, err := r.receipts.Next(ctx, original.BusinessID, req.Timestamp)
	if err != nil {
		return nil, err
	}

	originalID := original.ID
	void := &domain.Transaction{
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
	if err := insertTransaction(ctx, tx, req.IdempotencyKey, void); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE transactions SET status = 'voided' WHERE id = $1`, original.ID); err != nil {
		return nil, err
	}
	original.Status = domain.StatusVoided

	query := `
		UPDATE shifts
		SET total_voids = total_voids + 1, version = version + 1
		WHERE id = $1
		RETURNING ` + shiftColumns

	shift, err := scanShift(tx.QueryRowContext(ctx, query, req.ShiftID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.VoidCommit{Void: void, Original: original, Shift: shift}, nil
}

func voidCommit(ctx context.Context, q queryer, void *domain.Transaction) (*domain.VoidCommit, error) {
	if void.OriginalTransactionID == nil {
		return nil, domain.ErrConflict.Withf("幂等键已被其他交易使用")
	}
	original, err := getTransaction(ctx, q, `id = $1`, *void.OriginalTransactionID, false)
	if err != nil {
		return nil, err
	}
	shift, err := getShift(ctx, q, void.ShiftID, false)
	if err != nil {
		return nil, err
	}
	return &domain.VoidCommit{Void: void, Original: original, Shift: shift}, nil
}

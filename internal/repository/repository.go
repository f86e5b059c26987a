// Package repository 是存储服务基于 PostgreSQL 的实现。
// 班次计数器和交易在同一个数据库事务中修改，唯一约束负责兜底并发冲突
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receiptno"
)

type Repository struct {
	cfg      *config.Config
	dbpool   *sql.DB
	receipts receiptno.Generator
	clock    clock.Clock
}

func NewRepository(cfg *config.Config, dbpool *sql.DB, receipts receiptno.Generator, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.New()
	}
	return &Repository{
		cfg:      cfg,
		dbpool:   dbpool,
		receipts: receipts,
		clock:    clk,
	}
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}

func (r *Repository) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
}

// queryer 同时适用于 *sql.DB 和 *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

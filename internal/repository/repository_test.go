package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	from, to := DayBounds(time.Date(2026, 10, 19, 23, 30, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), to)
}

func TestConstraintName(t *testing.T) {
	err := fmtWrap(&pgconn.PgError{Code: "23505", ConstraintName: "shifts_one_active_per_cashier"})
	assert.Equal(t, "shifts_one_active_per_cashier", constraintName(err))
	assert.Empty(t, constraintName(errors.New("connection reset")))
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("插入班次失败"), err)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const scheduleColumns = `id, staff_id, business_id, start_time, end_time, status, created_at, version`

func scanSchedule(row interface{ Scan(...any) error }) (*domain.Schedule, error) {
	s := &domain.Schedule{}
	dst := []any{&s.ID, &s.StaffID, &s.BusinessID, &s.StartTime, &s.EndTime, &s.Status, &s.CreatedAt, &s.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateSchedule 只给种子数据使用，正式环境的排班由外部系统写入
func (r *Repository) CreateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO schedules (staff_id, business_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, version
	`

	args := []any{schedule.StaffID, schedule.BusinessID, schedule.StartTime, schedule.EndTime}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&schedule.ID, &schedule.Status, &schedule.CreatedAt, &schedule.Version)
}

func (r *Repository) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	schedule, err := scanSchedule(r.dbpool.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScheduleNotFound
	}
	return schedule, err
}

// DayBounds 返回 day 所在自然日的 [开始, 结束)
func DayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// GetTodaySchedule 优先返回还未结束的排班，没有排班时返回 (nil, nil)
func (r *Repository) GetTodaySchedule(ctx context.Context, cashierID int64, day time.Time) (*domain.Schedule, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	from, to := DayBounds(day)
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE staff_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY (status IN ('upcoming', 'active')) DESC, start_time
		LIMIT 1
	`

	schedule, err := scanSchedule(r.dbpool.QueryRowContext(ctx, query, cashierID, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return schedule, err
}

// MarkScheduleMissed 只有排班已经结束、仍是 upcoming 且从未开过班时才会标记为 missed，
// 其他情况原样返回
func (r *Repository) MarkScheduleMissed(ctx context.Context, scheduleID int64) (*domain.Schedule, error) {
	qctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE schedules
		SET status = 'missed', version = version + 1
		WHERE id = $1
			AND status = 'upcoming'
			AND end_time <= $2
			AND NOT EXISTS (SELECT 1 FROM shifts WHERE schedule_id = $1)
		RETURNING ` + scheduleColumns

	schedule, err := scanSchedule(r.dbpool.QueryRowContext(qctx, query, scheduleID, r.clock.Now()))
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetSchedule(ctx, scheduleID)
	}
	return schedule, err
}

// Package seed 为开发环境生成随机员工和当天的排班
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/utils"
)

// Store 是种子数据需要的持久化操作，repository 和 memstore 都实现了它
type Store interface {
	CreateStaff(ctx context.Context, staff *domain.Staff) error
	ListStaff(ctx context.Context, businessID int64) ([]*domain.Staff, error)
	CreateSchedule(ctx context.Context, schedule *domain.Schedule) error
}

// SeedStaff 插入 n 个随机员工，返回成功插入的数量。用户名冲突的记录会被跳过
func SeedStaff(ctx context.Context, store Store, n int, password, emailDomain string, businessID int64) int {
	cnt := 0
	for i := 0; i < n; i++ {
		staff, err := utils.GenerateRandomStaff(password, emailDomain, businessID)
		if err != nil {
			slog.Error("无法生成随机员工", slog.String("error", err.Error()))
			continue
		}

		if err := store.CreateStaff(ctx, staff); err != nil {
			slog.Error("无法插入员工", slog.String("username", staff.Username), slog.String("error", err.Error()))
			continue
		}

		cnt++
	}
	return cnt
}

// SeedSchedules 给门店所有收银员和主管生成 day 当天的排班，经理不参与排班
func SeedSchedules(ctx context.Context, store Store, businessID int64, day time.Time) (int, error) {
	staff, err := store.ListStaff(ctx, businessID)
	if err != nil {
		return 0, err
	}

	onFloor := make([]*domain.Staff, 0, len(staff))
	for _, s := range staff {
		if s.Role != domain.RoleManager {
			onFloor = append(onFloor, s)
		}
	}

	schedules := utils.GenerateDaySchedules(onFloor, day, nil)
	if err := utils.ValidateSchedules(schedules); err != nil {
		return 0, err
	}

	cnt := 0
	for _, schedule := range schedules {
		if err := store.CreateSchedule(ctx, schedule); err != nil {
			slog.Error("无法插入排班", slog.Int64("staffID", schedule.StaffID), slog.String("error", err.Error()))
			continue
		}
		cnt++
	}
	return cnt, nil
}

package utils

import (
	"fmt"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

// ValidateSchedules 检查排班的结束时间晚于开始时间，并且同一个员工的排班互不重叠
func ValidateSchedules(schedules []*domain.Schedule) error {
	for i, s := range schedules {
		if !s.EndTime.After(s.StartTime) {
			return fmt.Errorf("排班 %d 的结束时间必须晚于开始时间", i)
		}
	}

	for i := 0; i < len(schedules); i++ {
		for j := i + 1; j < len(schedules); j++ {
			a, b := schedules[i], schedules[j]
			if a.StaffID != b.StaffID {
				continue
			}
			if a.StartTime.Before(b.EndTime) && b.StartTime.Before(a.EndTime) {
				return fmt.Errorf("员工 %d 的排班 %d 和排班 %d 之间的时间冲突", a.StaffID, i, j)
			}
		}
	}
	return nil
}

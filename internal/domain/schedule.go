package domain

import "time"

type ScheduleStatus string

const (
	ScheduleUpcoming  ScheduleStatus = "upcoming"
	ScheduleActive    ScheduleStatus = "active"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleMissed    ScheduleStatus = "missed"
)

// Schedule 由外部排班系统创建，这里只负责状态流转
type Schedule struct {
	ID         int64          `json:"id"`
	StaffID    int64          `json:"staffID"`
	BusinessID int64          `json:"businessID"`
	StartTime  time.Time      `json:"startTime"`
	EndTime    time.Time      `json:"endTime"`
	Status     ScheduleStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	Version    int32          `json:"-"`
}

// IsToday 判断排班是否落在 now 所在的自然日
func (s *Schedule) IsToday(now time.Time) bool {
	y1, m1, d1 := s.StartTime.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

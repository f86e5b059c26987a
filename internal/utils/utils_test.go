package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

func TestGenerateRandomStaff(t *testing.T) {
	staff, err := GenerateRandomStaff("secret", "example.com", 12)
	require.NoError(t, err)

	assert.NotEmpty(t, staff.Username)
	assert.Regexp(t, `^[a-z]+[0-9]{1,3}$`, staff.Username)
	assert.Equal(t, staff.Username+"@example.com", staff.Email)
	assert.Equal(t, int64(12), staff.BusinessID)
	assert.Contains(t, []domain.Role{domain.RoleCashier, domain.RoleSupervisor}, staff.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte("secret")))
}

func TestGenerateDaySchedules(t *testing.T) {
	day := time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)
	staff := []*domain.Staff{{ID: 1, BusinessID: 12}, {ID: 2, BusinessID: 12}}

	schedules := GenerateDaySchedules(staff, day, []ShiftSlot{{Start: 9 * time.Hour, End: 17 * time.Hour}})
	require.Len(t, schedules, 2)
	for i, s := range schedules {
		assert.Equal(t, staff[i].ID, s.StaffID)
		assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), s.StartTime)
		assert.Equal(t, time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC), s.EndTime)
		assert.Equal(t, domain.ScheduleUpcoming, s.Status)
	}
	assert.NoError(t, ValidateSchedules(schedules))
}

func TestValidateSchedules(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 10, 19, h, 0, 0, 0, time.UTC) }

	assert.Error(t, ValidateSchedules([]*domain.Schedule{{StaffID: 1, StartTime: at(10), EndTime: at(9)}}))

	overlapping := []*domain.Schedule{
		{StaffID: 1, StartTime: at(7), EndTime: at(15)},
		{StaffID: 1, StartTime: at(11), EndTime: at(19)},
	}
	assert.ErrorContains(t, ValidateSchedules(overlapping), "时间冲突")

	// 首尾相接不算冲突，不同员工也不算
	assert.NoError(t, ValidateSchedules([]*domain.Schedule{
		{StaffID: 1, StartTime: at(7), EndTime: at(15)},
		{StaffID: 1, StartTime: at(15), EndTime: at(23)},
		{StaffID: 2, StartTime: at(7), EndTime: at(15)},
	}))
}

func TestFormatSlot(t *testing.T) {
	assert.Equal(t, "07:00-15:30", FormatSlot(ShiftSlot{Start: 7 * time.Hour, End: 15*time.Hour + 30*time.Minute}))
}

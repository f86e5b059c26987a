package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mozillazg/go-pinyin"
	"golang.org/x/crypto/bcrypt"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "霞", "飞", "玲", "超",
	"华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌", "庆",
	"建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

// 收银员占大多数，每个门店只需要少量主管
var roles = []domain.Role{
	domain.RoleCashier,
	domain.RoleCashier,
	domain.RoleCashier,
	domain.RoleSupervisor,
}

func GenerateRandomRole() domain.Role {
	return roles[rand.Intn(len(roles))]
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, pinyin := range pinyinArray {
		length := rand.Intn(len(pinyin)) + 1
		username += pinyin[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

func GenerateRandomStaff(password string, emailDomainName string, businessID int64) (*domain.Staff, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	staff := &domain.Staff{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         GenerateRandomRole(),
		BusinessID:   businessID,
	}

	return staff, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	randomPassword := make([]rune, length)
	for i := range randomPassword {
		randomPassword[i] = letters[rand.Intn(len(letters))]
	}
	return string(randomPassword)
}

// ShiftSlot 是门店一天中的一个固定班段，时间相对于当天零点
type ShiftSlot struct {
	Start time.Duration
	End   time.Duration
}

var DefaultShiftSlots = []ShiftSlot{
	{Start: 7 * time.Hour, End: 15 * time.Hour},
	{Start: 11 * time.Hour, End: 19 * time.Hour},
	{Start: 15 * time.Hour, End: 23 * time.Hour},
}

// GenerateDaySchedules 给每个员工在 day 当天随机分配一个班段，day 会被截断到当天零点
func GenerateDaySchedules(staff []*domain.Staff, day time.Time, slots []ShiftSlot) []*domain.Schedule {
	if len(slots) == 0 {
		slots = DefaultShiftSlots
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	schedules := make([]*domain.Schedule, 0, len(staff))
	for _, s := range staff {
		slot := slots[rand.Intn(len(slots))]
		schedules = append(schedules, &domain.Schedule{
			StaffID:    s.ID,
			BusinessID: s.BusinessID,
			StartTime:  midnight.Add(slot.Start),
			EndTime:    midnight.Add(slot.End),
			Status:     domain.ScheduleUpcoming,
		})
	}
	return schedules
}

func FormatSlot(slot ShiftSlot) string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		int(slot.Start.Hours()), int(slot.Start.Minutes())%60,
		int(slot.End.Hours()), int(slot.End.Minutes())%60)
}

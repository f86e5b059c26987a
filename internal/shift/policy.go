package shift

import "time"

// Policy 描述开班时间窗口和超时规则
type Policy struct {
	EarlyStartWindow   time.Duration // 最多允许提前多久开班
	LateStartThreshold time.Duration // 超过这个时间开班需要确认
	OvertimeWarning    time.Duration // 超时多久开始提醒
	AutoEndAfter       time.Duration // 超时多久自动结班
}

func DefaultPolicy() Policy {
	return Policy{
		EarlyStartWindow:   15 * time.Minute,
		LateStartThreshold: 30 * time.Minute,
		OvertimeWarning:    15 * time.Minute,
		AutoEndAfter:       120 * time.Minute,
	}
}

// AutoEndNote 写入自动结班的班次备注，最终现金是估算值而不是清点值
const AutoEndNote = "auto-ended, requires manager approval"

// StartDecision 是开班时间检查的结果
type StartDecision struct {
	Allowed          bool
	NeedsConfirm     bool
	MinutesEarly     int
	MinutesLate      int
	MinutesUntilOpen int
}

// EvaluateStart 根据 Δ = now - scheduledStart 判断是否允许开班：
//   - Δ < -15 分钟：拒绝，并给出还需等待的分钟数
//   - -15 ≤ Δ ≤ 30：直接允许
//   - Δ > 30：需要确认迟到开班
func (p Policy) EvaluateStart(now, scheduledStart time.Time) StartDecision {
	delta := now.Sub(scheduledStart)

	if delta < -p.EarlyStartWindow {
		wait := -p.EarlyStartWindow - delta
		return StartDecision{
			MinutesEarly:     int((-delta) / time.Minute),
			MinutesUntilOpen: ceilMinutes(wait),
		}
	}

	if delta > p.LateStartThreshold {
		return StartDecision{
			Allowed:      true,
			NeedsConfirm: true,
			MinutesLate:  int(delta / time.Minute),
		}
	}

	d := StartDecision{Allowed: true}
	if delta < 0 {
		d.MinutesEarly = int((-delta) / time.Minute)
	} else {
		d.MinutesLate = int(delta / time.Minute)
	}
	return d
}

// OvertimeMinutes = max(0, now - scheduledEnd)，按整分钟向下取整
func OvertimeMinutes(now, scheduledEnd time.Time) int {
	d := now.Sub(scheduledEnd)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

func ceilMinutes(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

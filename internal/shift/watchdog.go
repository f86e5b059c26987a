package shift

import (
	"context"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
)

// Watchdog 是唯一的定时任务：
//  1. 每 refreshInterval 从存储服务刷新班次和排班数据
//  2. 每 overtimeInterval 检查一次超时，必要时自动结班
//
// 两个定时器同时到期时先检查超时，自动结班优先于刷新
type Watchdog struct {
	manager          *Manager
	clock            clock.Clock
	refreshInterval  time.Duration
	overtimeInterval time.Duration
	onOvertime       func(Overtime)
}

type WatchdogOption func(*Watchdog)

// WithOvertimeHook 在每次超时检查出现提醒或自动结班时回调
func WithOvertimeHook(fn func(Overtime)) WatchdogOption {
	return func(w *Watchdog) {
		w.onOvertime = fn
	}
}

func NewWatchdog(manager *Manager, clk clock.Clock, refreshInterval, overtimeInterval time.Duration, opts ...WatchdogOption) *Watchdog {
	if clk == nil {
		clk = clock.New()
	}
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}
	if overtimeInterval <= 0 {
		overtimeInterval = time.Minute
	}

	w := &Watchdog{
		manager:          manager,
		clock:            clk,
		refreshInterval:  refreshInterval,
		overtimeInterval: overtimeInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 一直运行直到 ctx 被取消。单个 goroutine 处理两个定时器，天然不会并发执行
func (w *Watchdog) Run(ctx context.Context) error {
	refresh := w.clock.NewTicker(w.refreshInterval)
	defer refresh.Stop()
	overtime := w.clock.NewTicker(w.overtimeInterval)
	defer overtime.Stop()

	// 启动时先同步一次
	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-overtime.C():
			w.checkOvertime(ctx)
		case <-refresh.C():
			select {
			case <-overtime.C():
				w.checkOvertime(ctx)
			default:
			}
			w.refresh(ctx)
		}
	}
}

func (w *Watchdog) refresh(ctx context.Context) {
	if err := w.manager.Refresh(ctx); err != nil {
		slog.Error("刷新班次数据失败", "error", err)
	}
}

func (w *Watchdog) checkOvertime(ctx context.Context) {
	o, err := w.manager.CheckOvertime(ctx)
	if err != nil {
		slog.Error("超时检查失败", "error", err)
		return
	}
	if w.onOvertime != nil && (o.Warning || o.AutoEnded) {
		w.onOvertime(o)
	}
}

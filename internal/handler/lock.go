package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

// ShiftLocker 在多台终端同时为同一个收银员开班时串行化开班请求
type ShiftLocker interface {
	LockShiftStart(ctx context.Context, cashierID int64) (release func(), err error)
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) LockShiftStart(ctx context.Context, cashierID int64) (func(), error) {
	key := fmt.Sprintf("lock:shift_start:%d", cashierID)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 5),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, domain.ErrConflict.Withf("该收银员正在另一台终端上开班")
		}
		return nil, err
	}

	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("释放开班锁失败", "cashierID", cashierID, "error", err)
		}
	}, nil
}

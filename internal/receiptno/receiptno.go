// Package receiptno 生成小票号。小票号在提交时由存储服务分配一次，之后的打印、重打和邮件都以它为键
package receiptno

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Generator interface {
	Next(ctx context.Context, businessID int64, at time.Time) (string, error)
}

// Format 生成形如 R12-20261019-00042 的小票号
func Format(businessID int64, at time.Time, seq int64) string {
	return fmt.Sprintf("R%d-%s-%05d", businessID, at.Format("20060102"), seq)
}

// Sequence 是进程内的实现，用于内存存储和测试
type Sequence struct {
	mu   sync.Mutex
	next map[string]int64
}

func NewSequence() *Sequence {
	return &Sequence{next: make(map[string]int64)}
}

func (s *Sequence) Next(_ context.Context, businessID int64, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%d:%s", businessID, at.Format("20060102"))
	s.next[key]++
	return Format(businessID, at, s.next[key]), nil
}

// Redis 使用 INCR 生成按门店、按天递增的序号，多个存储服务实例之间也不会重复
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedis(client *redis.Client, timeout time.Duration) *Redis {
	return &Redis{client: client, timeout: timeout}
}

func (r *Redis) Next(ctx context.Context, businessID int64, at time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := fmt.Sprintf("receipt_seq_%d_%s", businessID, at.Format("20060102"))

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// 序号只在当天有效，留出一天余量防止跨时区的边界问题
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("生成小票号失败: %w", err)
	}

	return Format(businessID, at, incr.Val()), nil
}

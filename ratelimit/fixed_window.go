package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
)

var _ Limiter = (*FixWindowLimiter)(nil)

type FixWindowLimiter struct {
	interval int64
	// 在 interval 内最多允许 rate 个请求
	maxRate                    int64
	cnt                        int64
	onReject                   RejectStrategy
	latestWindowStartTimestamp int64
	now                        func() time.Time
}

// NewFixWindowLimiter
// interval => 窗口多大
// max 这个窗口内，能够执行多少个请求
func NewFixWindowLimiter(interval time.Duration, maxRate int64) *FixWindowLimiter {
	return &FixWindowLimiter{
		interval: interval.Nanoseconds(),
		maxRate:  maxRate,
		onReject: defaultRejection,
		now:      time.Now,
	}
}

func (t *FixWindowLimiter) OnReject(onReject RejectStrategy) *FixWindowLimiter {
	t.onReject = onReject
	return t
}

func (t *FixWindowLimiter) Interceptor() eventbus.Interceptor {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			current := t.now().UnixNano()
			window := atomic.LoadInt64(&t.latestWindowStartTimestamp)
			// 如果要是最近窗口的起始时间 + 窗口大小 <= 当前时间戳
			// 说明换窗口了
			if window+t.interval <= current {
				// CAS 失败意味着有别的 goroutine 已经重置了窗口
				if atomic.CompareAndSwapInt64(&t.latestWindowStartTimestamp, window, current) {
					atomic.StoreInt64(&t.cnt, 0)
				}
			}
			// 先取号
			cnt := atomic.AddInt64(&t.cnt, 1)
			if cnt > t.maxRate {
				t.onReject(ctx, msg, next)
				return
			}
			next(ctx, msg)
		}
	}
}

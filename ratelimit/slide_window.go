package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
)

var _ Limiter = (*SlideWindowLimiter)(nil)

// SlideWindowLimiter allows maxRate messages in any interval long window.
type SlideWindowLimiter struct {
	maxRate int
	// 缓存住窗口内每一个请求的时间戳
	queue    *list.List
	mutex    sync.Mutex
	interval time.Duration
	onReject RejectStrategy
	now      func() time.Time
}

func NewSlideWindowLimiter(rate int, interval time.Duration) *SlideWindowLimiter {
	return &SlideWindowLimiter{
		maxRate:  rate,
		interval: interval,
		queue:    list.New(),
		onReject: defaultRejection,
		now:      time.Now,
	}
}

func (l *SlideWindowLimiter) OnReject(onReject RejectStrategy) *SlideWindowLimiter {
	l.onReject = onReject
	return l
}

func (l *SlideWindowLimiter) Interceptor() eventbus.Interceptor {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			if !l.allow() {
				l.onReject(ctx, msg, next)
				return
			}
			next(ctx, msg)
		}
	}
}

func (l *SlideWindowLimiter) allow() bool {
	current := l.now()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.queue.Len() < l.maxRate {
		l.queue.PushBack(current)
		return true
	}
	// 慢路径，往前回溯得到窗口起始时间
	windowStartTime := current.Add(-l.interval)
	reqTime := l.queue.Front()
	for reqTime != nil && !reqTime.Value.(time.Time).After(windowStartTime) {
		// 不在这个窗口范围内，移除
		l.queue.Remove(reqTime)
		reqTime = l.queue.Front()
	}
	if l.queue.Len() >= l.maxRate {
		return false
	}
	l.queue.PushBack(current)
	return true
}

package ratelimit

import (
	"context"
	_ "embed"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

//go:embed lua/slide_window.lua
var luaSlideWindow string

var _ Limiter = (*RedisSlideWindowLimiter)(nil)

// Evaler is the part of a redis client the limiter runs its script on.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisSlideWindowLimiter shares one sliding window between every process
// using the same key.
type RedisSlideWindowLimiter struct {
	key string
	// 窗口内的流量阈值
	maxRate int
	// 窗口大小，毫秒
	interval int64
	onReject RejectStrategy
	client   Evaler
	logger   *zap.Logger
}

func NewRedisSlideWindowLimiter(client Evaler, key string, maxRate int, interval time.Duration) *RedisSlideWindowLimiter {
	return &RedisSlideWindowLimiter{
		client:   client,
		key:      key,
		maxRate:  maxRate,
		interval: interval.Milliseconds(),
		onReject: defaultRejection,
		logger:   zap.NewNop(),
	}
}

func (l *RedisSlideWindowLimiter) OnReject(onReject RejectStrategy) *RedisSlideWindowLimiter {
	l.onReject = onReject
	return l
}

func (l *RedisSlideWindowLimiter) WithLogger(logger *zap.Logger) *RedisSlideWindowLimiter {
	l.logger = logger
	return l
}

func (l *RedisSlideWindowLimiter) Interceptor() eventbus.Interceptor {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			limit, err := l.limit(ctx)
			if err != nil {
				// 不知道要不要限流的时候，选择放行
				l.logger.Warn("ratelimit: redis slide window failed",
					zap.String("key", l.key), zap.Error(err))
				next(ctx, msg)
				return
			}
			if limit {
				l.onReject(ctx, msg, next)
				return
			}
			next(ctx, msg)
		}
	}
}

func (l *RedisSlideWindowLimiter) limit(ctx context.Context) (bool, error) {
	now := time.Now()
	return l.client.Eval(ctx, luaSlideWindow, []string{l.key}, l.interval, l.maxRate, now.UnixMilli()).Bool()
}

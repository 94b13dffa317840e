package ratelimit

import (
	"context"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"golang.org/x/time/rate"
)

var _ Limiter = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter refills one token every interval and holds at most
// capacity of them.
type TokenBucketLimiter struct {
	limiter  *rate.Limiter
	onReject RejectStrategy
}

func NewTokenBucketLimiter(capacity int, interval time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), capacity),
		onReject: defaultRejection,
	}
}

func (l *TokenBucketLimiter) OnReject(onReject RejectStrategy) *TokenBucketLimiter {
	l.onReject = onReject
	return l
}

func (l *TokenBucketLimiter) Interceptor() eventbus.Interceptor {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			if !l.limiter.Allow() {
				l.onReject(ctx, msg, next)
				return
			}
			next(ctx, msg)
		}
	}
}

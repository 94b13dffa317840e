package ratelimit

import (
	"context"

	"github.com/JobsHwang/LinkIOT/eventbus"
)

var _ Limiter = (*ActionLimiter)(nil)

// ActionLimiter applies Limiter only to messages whose action header is Action.
type ActionLimiter struct {
	Limiter
	Action string
}

func NewActionLimiter(action string, limiter Limiter) *ActionLimiter {
	return &ActionLimiter{
		Limiter: limiter,
		Action:  action,
	}
}

func (m *ActionLimiter) Interceptor() eventbus.Interceptor {
	interceptor := m.Limiter.Interceptor()
	return func(next eventbus.Handler) eventbus.Handler {
		limited := interceptor(next)
		return func(ctx context.Context, msg *eventbus.Message) {
			if msg.Header("action") == m.Action {
				limited(ctx, msg)
				return
			}
			next(ctx, msg)
		}
	}
}

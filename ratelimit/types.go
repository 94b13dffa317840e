package ratelimit

import (
	"context"
	"fmt"

	"github.com/JobsHwang/LinkIOT/eventbus"
)

// Limiter guards the consumers of an address.
type Limiter interface {
	Interceptor() eventbus.Interceptor
}

// RejectStrategy answers a message the limiter turned down.
type RejectStrategy func(ctx context.Context, msg *eventbus.Message, next eventbus.Handler)

// CodeRateLimited is the failure code of a rejected message.
const CodeRateLimited = 429

type limitedKey struct{}

var defaultRejection RejectStrategy = func(ctx context.Context, msg *eventbus.Message, next eventbus.Handler) {
	msg.Fail(CodeRateLimited, fmt.Sprintf("rate limited: %s", msg.Address()))
}

// MarkLimitedRejection lets the message through and flags ctx, see Limited.
var MarkLimitedRejection RejectStrategy = func(ctx context.Context, msg *eventbus.Message, next eventbus.Handler) {
	next(context.WithValue(ctx, limitedKey{}, true), msg)
}

// Limited reports whether ctx was flagged by MarkLimitedRejection.
func Limited(ctx context.Context) bool {
	limited, _ := ctx.Value(limitedKey{}).(bool)
	return limited
}

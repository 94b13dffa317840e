package eventbus

import (
	"context"
	"reflect"
)

// ReplyHandler receives the outcome of a request. Exactly one of reply and err
// is non-nil.
type ReplyHandler func(reply *Message, err error)

// Handler consumes messages sent to an address.
type Handler func(ctx context.Context, msg *Message)

// Interceptor decorates a consumer Handler.
type Interceptor func(next Handler) Handler

// Client is the part of a bus a service proxy depends on. Request must not
// block the caller; handler is invoked asynchronously.
//
//go:generate mockgen -package=mocks -destination=mocks/client.mock.go -source=types.go Client
type Client interface {
	Request(ctx context.Context, address string, body any, opts *DeliveryOptions, handler ReplyHandler)
	RegisterDefaultCodec(typ reflect.Type, codec MessageCodec) error
}

// Chain composes interceptors so that the first one is the outermost.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next Handler) Handler {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

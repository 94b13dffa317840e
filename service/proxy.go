package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
)

// Proxy is the state shared by all service proxies: the bus, the bound
// address and the default delivery options.
// Once closed, calls fail with ErrProxyClosed without reaching the bus.
// Calls already sent still complete.
type Proxy struct {
	bus     eventbus.Client
	address string
	options *eventbus.DeliveryOptions
	closed  atomic.Bool
	logger  *zap.Logger
}

// WithDeliveryOptions sets the defaults every call starts from. opts is
// copied, later changes to it are not seen by the proxy.
func WithDeliveryOptions(opts *eventbus.DeliveryOptions) option.Option[Proxy] {
	return func(p *Proxy) {
		if opts != nil {
			p.options = opts.Clone()
		}
	}
}

func WithLogger(logger *zap.Logger) option.Option[Proxy] {
	return func(p *Proxy) {
		p.logger = logger
	}
}

func (p *Proxy) init(bus eventbus.Client, address string, opts []option.Option[Proxy]) {
	p.bus = bus
	p.address = address
	p.logger = zap.NewNop()
	for _, opt := range opts {
		opt(p)
	}
	registerFailureCodec(bus, p.logger)
}

func (p *Proxy) Address() string {
	return p.address
}

// Close makes every later call fail immediately.
func (p *Proxy) Close() {
	p.closed.Store(true)
}

func (p *Proxy) Closed() bool {
	return p.closed.Load()
}

type codecRegistrar interface {
	RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error
}

// registerFailureCodec registers the ServiceError codec on bus. The bus keeps
// one codec per type, so any proxy after the first one gets
// ErrCodecAlreadyRegistered, which is expected.
func registerFailureCodec(bus codecRegistrar, logger *zap.Logger) {
	err := bus.RegisterDefaultCodec(reflect.TypeOf(&ServiceError{}), ServiceErrorCodec{})
	if err != nil && !errors.Is(err, eventbus.ErrCodecAlreadyRegistered) {
		logger.Warn("service: registering the failure codec failed", zap.Error(err))
	}
}

// invoke is the call site every proxy method goes through: action names the
// method, body holds its parameters and decode turns the reply body into
// the declared result.
func invoke[T any](ctx context.Context, p *Proxy, action string, body map[string]any,
	decode func(body any) (T, error), handler Handler[T]) {
	if handler == nil {
		handler = func(T, error) {}
	}
	if p.closed.Load() {
		var zero T
		handler(zero, ErrProxyClosed)
		return
	}
	var opts *eventbus.DeliveryOptions
	if p.options != nil {
		opts = p.options.Clone()
	} else {
		opts = eventbus.NewDeliveryOptions()
	}
	opts.AddHeader(HeaderAction, action)
	p.bus.Request(ctx, p.address, body, opts, func(reply *eventbus.Message, err error) {
		if err != nil {
			var zero T
			handler(zero, err)
			return
		}
		handler(decode(reply.Body()))
	})
}

func decodeMap(body any) (map[string]any, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedReply, body)
	}
}

func decodeString(body any) (string, error) {
	switch v := body.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnexpectedReply, body)
	}
}

func decodeNothing(any) (struct{}, error) {
	return struct{}{}, nil
}

func decodeDevice(body any) (*device.Info, error) {
	m, err := decodeMap(body)
	if err != nil {
		return nil, err
	}
	return device.FromJSON(m)
}

// deviceJSON keeps the key present with a nil value for a nil device.
func deviceJSON(dev *device.Info) any {
	if dev == nil {
		return nil
	}
	return dev.ToJSON()
}

// mapJSON stores a nil map as an untyped nil.
func mapJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

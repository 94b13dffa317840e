package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
)

var _ Client = (*EventBus)(nil)

// EventBus is an in-process, address-routed bus. Requests are delivered to
// one consumer of the address, picked round-robin; publications reach all of
// them.
type EventBus struct {
	mutex     sync.RWMutex
	consumers map[string]*consumerGroup
	seq       uint64
	codecs    *Codecs
	closed    atomic.Bool
	logger    *zap.Logger
}

type consumer struct {
	id      uint64
	handler Handler
}

type consumerGroup struct {
	consumers []*consumer
	cnt       uint64
}

func New(opts ...option.Option[EventBus]) *EventBus {
	res := &EventBus{
		consumers: make(map[string]*consumerGroup, 16),
		codecs:    NewCodecs(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

func WithLogger(logger *zap.Logger) option.Option[EventBus] {
	return func(b *EventBus) {
		b.logger = logger
	}
}

func (b *EventBus) Codecs() *Codecs {
	return b.codecs
}

func (b *EventBus) RegisterCodec(codec MessageCodec) error {
	return b.codecs.Register(codec)
}

func (b *EventBus) RegisterDefaultCodec(typ reflect.Type, codec MessageCodec) error {
	return b.codecs.RegisterDefault(typ, codec)
}

// Consumer subscribes handler to address and returns the function that
// removes it again.
func (b *EventBus) Consumer(address string, handler Handler, interceptors ...Interceptor) func() {
	if len(interceptors) > 0 {
		handler = Chain(interceptors...)(handler)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.seq++
	c := &consumer{id: b.seq, handler: handler}
	group, ok := b.consumers[address]
	if !ok {
		group = &consumerGroup{}
		b.consumers[address] = group
	}
	group.consumers = append(group.consumers, c)
	return func() {
		b.unregister(address, c.id)
	}
}

func (b *EventBus) unregister(address string, id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	group, ok := b.consumers[address]
	if !ok {
		return
	}
	for i, c := range group.consumers {
		if c.id == id {
			group.consumers = append(group.consumers[:i:i], group.consumers[i+1:]...)
			break
		}
	}
	if len(group.consumers) == 0 {
		delete(b.consumers, address)
	}
}

func (b *EventBus) pick(address string) (Handler, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	group, ok := b.consumers[address]
	if !ok || len(group.consumers) == 0 {
		return nil, false
	}
	idx := atomic.AddUint64(&group.cnt, 1) - 1
	return group.consumers[idx%uint64(len(group.consumers))].handler, true
}

func (b *EventBus) all(address string) []Handler {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	group, ok := b.consumers[address]
	if !ok {
		return nil
	}
	res := make([]Handler, 0, len(group.consumers))
	for _, c := range group.consumers {
		res = append(res, c.handler)
	}
	return res
}

// Request delivers body to one consumer of address and reports the reply,
// the consumer's failure or a timeout to handler. It never blocks.
func (b *EventBus) Request(ctx context.Context, address string, body any, opts *DeliveryOptions, handler ReplyHandler) {
	if opts == nil {
		opts = NewDeliveryOptions()
	}
	once := &replyOnce{handler: handler}
	if b.closed.Load() {
		go once.fire(nil, ErrBusClosed)
		return
	}
	h, ok := b.pick(address)
	if !ok {
		go once.fire(nil, NewNoHandlersError(address))
		return
	}
	payload, err := b.codecs.Transform(body, opts.CodecName)
	if err != nil {
		go once.fire(nil, err)
		return
	}
	timeout := opts.Timeout()
	timer := time.AfterFunc(timeout, func() {
		once.fire(nil, NewTimeoutError(address, timeout))
	})
	msg := NewMessage(address, opts.Clone().Headers, payload, func(body any, headers map[string]string, err error) {
		timer.Stop()
		if err != nil {
			go once.fire(nil, b.transformFailure(err))
			return
		}
		replyBody, err := b.codecs.Transform(body, "")
		if err != nil {
			go once.fire(nil, err)
			return
		}
		go once.fire(NewMessage(address, headers, replyBody, nil), nil)
	})
	b.dispatch(ctx, h, msg)
}

// Send delivers body to one consumer of address without waiting for a reply.
func (b *EventBus) Send(ctx context.Context, address string, body any, opts *DeliveryOptions) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if opts == nil {
		opts = NewDeliveryOptions()
	}
	h, ok := b.pick(address)
	if !ok {
		return NewNoHandlersError(address)
	}
	payload, err := b.codecs.Transform(body, opts.CodecName)
	if err != nil {
		return err
	}
	b.dispatch(ctx, h, NewMessage(address, opts.Clone().Headers, payload, nil))
	return nil
}

// Publish delivers body to every consumer of address.
func (b *EventBus) Publish(ctx context.Context, address string, body any, opts *DeliveryOptions) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if opts == nil {
		opts = NewDeliveryOptions()
	}
	for _, h := range b.all(address) {
		payload, err := b.codecs.Transform(body, opts.CodecName)
		if err != nil {
			return err
		}
		b.dispatch(ctx, h, NewMessage(address, opts.Clone().Headers, payload, nil))
	}
	return nil
}

// Close stops accepting new messages and drops all consumers. Requests
// already delivered still get their replies.
func (b *EventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mutex.Lock()
	b.consumers = make(map[string]*consumerGroup)
	b.mutex.Unlock()
	return nil
}

func (b *EventBus) dispatch(ctx context.Context, h Handler, msg *Message) {
	if ctx == nil {
		ctx = context.Background()
	}
	// the consumer outlives the caller's cancellation
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("eventbus: consumer panicked",
					zap.String("address", msg.Address()), zap.Any("panic", r))
				msg.Fail(-1, fmt.Sprintf("%v", r))
			}
		}()
		h(ctx, msg)
	}()
}

func (b *EventBus) transformFailure(err error) error {
	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return err
	}
	codec, ok, _ := b.codecs.Lookup(err, "")
	if !ok {
		return err
	}
	if res, ok := codec.Transform(err).(error); ok {
		return res
	}
	return err
}

type replyOnce struct {
	once    sync.Once
	handler ReplyHandler
}

func (r *replyOnce) fire(reply *Message, err error) {
	r.once.Do(func() {
		if r.handler != nil {
			r.handler(reply, err)
		}
	})
}

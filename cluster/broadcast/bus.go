// Package broadcast sends one request to every instance of a service.
package broadcast

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

// DialFunc returns the client that reaches the bridge at endpoint.
type DialFunc func(endpoint string) (eventbus.Client, error)

var _ eventbus.Client = (*Bus)(nil)

// Bus forwards requests to next unless the context was prepared with
// UsingBroadCast. Then the request goes to every registered instance and
// each outcome is streamed on the channel UsingBroadCast returned.
type Bus struct {
	next     eventbus.Client
	registry registry.Registry
	service  string
	timeout  time.Duration
	dial     DialFunc

	// 还可以考虑设计成 findServes func(ctx) []ServiceInstance，和注册中心解耦
}

func NewBus(next eventbus.Client, r registry.Registry, service string,
	timeout time.Duration, dial DialFunc) *Bus {
	return &Bus{
		next:     next,
		registry: r,
		service:  service,
		timeout:  timeout,
		dial:     dial,
	}
}

// Request calls handler once every instance has answered, with the first
// reply, or with the last failure when none succeeded.
func (b *Bus) Request(ctx context.Context, address string, body any,
	opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
	ch, ok := isBroadCast(ctx)
	if !ok {
		b.next.Request(ctx, address, body, opts, handler)
		return
	}
	if handler == nil {
		handler = func(*eventbus.Message, error) {}
	}
	go func() {
		reply, err := b.broadcast(ctx, ch, body, opts)
		// 要记得 close 掉，不然用户不知道还有没有数据
		close(ch)
		handler(reply, err)
	}()
}

func (b *Bus) broadcast(ctx context.Context, ch chan Resp, body any,
	opts *eventbus.DeliveryOptions) (*eventbus.Message, error) {
	listCtx, cancel := context.WithTimeout(ctx, b.timeout)
	instances, err := b.registry.ListServices(listCtx, b.service)
	cancel()
	if err != nil {
		send(ctx, ch, Resp{Err: err})
		return nil, err
	}
	if len(instances) == 0 {
		send(ctx, ch, Resp{Err: loadbalance.ErrNoInstanceAvailable})
		return nil, loadbalance.ErrNoInstanceAvailable
	}

	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		first   *eventbus.Message
		lastErr error
	)
	wg.Add(len(instances))
	for _, ins := range instances {
		ins := ins
		finish := func(reply *eventbus.Message, err error) {
			defer wg.Done()
			mutex.Lock()
			if err != nil {
				lastErr = err
			} else if first == nil {
				first = reply
			}
			mutex.Unlock()
			send(ctx, ch, Resp{Instance: ins, Reply: reply, Err: err})
		}
		conn, err := b.dial(ins.Endpoint)
		if err != nil {
			go finish(nil, err)
			continue
		}
		conn.Request(ctx, ins.Address, body, opts.Clone(), finish)
	}
	wg.Wait()
	if first != nil {
		return first, nil
	}
	return nil, lastErr
}

func (b *Bus) RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error {
	return b.next.RegisterDefaultCodec(typ, codec)
}

// send gives up once ctx is done so that an unread channel does not leak
// the goroutine.
func send(ctx context.Context, ch chan Resp, resp Resp) {
	select {
	case <-ctx.Done():
	case ch <- resp:
	}
}

// Resp is the outcome of one instance.
type Resp struct {
	Instance registry.ServiceInstance
	Reply    *eventbus.Message
	Err      error
}

func (r Resp) String() string {
	return fmt.Sprintf("%s@%s: %v", r.Instance.Address, r.Instance.Endpoint, r.Err)
}

type key struct{}

// UsingBroadCast marks ctx so that requests made with it reach every
// instance. The returned channel is closed after the last outcome, so the
// context serves a single request.
func UsingBroadCast(ctx context.Context) (context.Context, <-chan Resp) {
	ch := make(chan Resp)
	return context.WithValue(ctx, key{}, ch), ch
}

func isBroadCast(ctx context.Context) (chan Resp, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(key{}).(chan Resp)
	return res, ok
}

package linkiot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/JobsHwang/LinkIOT/cluster/broadcast"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/loadbalance/roundrobin"
	"github.com/JobsHwang/LinkIOT/observability/opentelemetry"
	"github.com/JobsHwang/LinkIOT/registry"
	"github.com/JobsHwang/LinkIOT/rpc"
	"github.com/JobsHwang/LinkIOT/service"
	"github.com/gotomicro/ekit/bean/option"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrClientClosed = errors.New("linkiot: client is closed")

// Client finds service instances in a registry and hands out proxies whose
// calls are balanced over them. It keeps one rpc.Client per endpoint.
type Client struct {
	registry      registry.Registry
	timeout       time.Duration
	pickerBuilder loadbalance.PickerBuilder
	rpcOpts       []option.Option[rpc.Client]
	proxyOpts     []option.Option[service.Proxy]
	tracing       bool
	tracer        trace.Tracer
	propagator    propagation.TextMapPropagator
	logger        *zap.Logger

	mutex     sync.Mutex
	resolvers map[string]*resolver
	conns     map[string]*rpc.Client
	codecs    map[reflect.Type]eventbus.MessageCodec
	closed    bool
	group     singleflight.Group
}

func ClientWithPickerBuilder(builder loadbalance.PickerBuilder) option.Option[Client] {
	return func(client *Client) {
		client.pickerBuilder = builder
	}
}

// ClientWithTimeout bounds every registry operation.
func ClientWithTimeout(timeout time.Duration) option.Option[Client] {
	return func(client *Client) {
		client.timeout = timeout
	}
}

func ClientWithRPCOptions(opts ...option.Option[rpc.Client]) option.Option[Client] {
	return func(client *Client) {
		client.rpcOpts = append(client.rpcOpts, opts...)
	}
}

func ClientWithProxyOptions(opts ...option.Option[service.Proxy]) option.Option[Client] {
	return func(client *Client) {
		client.proxyOpts = append(client.proxyOpts, opts...)
	}
}

// ClientWithTracing opens a client span per call. nil arguments fall back to
// the global tracer provider and propagator.
func ClientWithTracing(tracer trace.Tracer, propagator propagation.TextMapPropagator) option.Option[Client] {
	return func(client *Client) {
		client.tracing = true
		client.tracer = tracer
		client.propagator = propagator
	}
}

func ClientWithLogger(logger *zap.Logger) option.Option[Client] {
	return func(client *Client) {
		client.logger = logger
	}
}

func NewClient(r registry.Registry, opts ...option.Option[Client]) *Client {
	res := &Client{
		registry:      r,
		timeout:       time.Second * 3,
		pickerBuilder: &roundrobin.PickerBuilder{Filter: loadbalance.GroupFilter},
		logger:        zap.NewNop(),
		resolvers:     make(map[string]*resolver, 4),
		conns:         make(map[string]*rpc.Client, 4),
		codecs:        make(map[reflect.Type]eventbus.MessageCodec, 2),
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// DataHandleService returns a proxy of the DataHandleService published as name.
func (c *Client) DataHandleService(ctx context.Context, name string) (*service.DataHandleServiceProxy, error) {
	bus, err := c.Bus(ctx, name)
	if err != nil {
		return nil, err
	}
	return service.NewDataHandleServiceProxy(bus, name, c.proxyOpts...), nil
}

// DeviceManagerService returns a proxy of the DeviceManagerService published
// as name.
func (c *Client) DeviceManagerService(ctx context.Context, name string) (*service.DeviceManagerServiceProxy, error) {
	bus, err := c.Bus(ctx, name)
	if err != nil {
		return nil, err
	}
	return service.NewDeviceManagerServiceProxy(bus, name, c.proxyOpts...), nil
}

// Bus returns an eventbus.Client for the service name. Each request goes to
// the bus address of one picked instance, or of every instance when ctx was
// prepared with broadcast.UsingBroadCast.
func (c *Client) Bus(ctx context.Context, name string) (eventbus.Client, error) {
	res, err := c.resolver(ctx, name)
	if err != nil {
		return nil, err
	}
	var bus eventbus.Client = &serviceBus{client: c, service: name, resolver: res}
	bus = broadcast.NewBus(bus, c.registry, name, c.timeout, func(endpoint string) (eventbus.Client, error) {
		conn, err := c.conn(endpoint)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	if c.tracing {
		bus = opentelemetry.NewClientBus(bus, 0, c.tracer, c.propagator)
	}
	return bus, nil
}

func (c *Client) resolver(ctx context.Context, name string) (*resolver, error) {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil, ErrClientClosed
	}
	res, ok := c.resolvers[name]
	c.mutex.Unlock()
	if ok {
		return res, nil
	}
	val, err, _ := c.group.Do("resolver:"+name, func() (interface{}, error) {
		c.mutex.Lock()
		if res, ok := c.resolvers[name]; ok {
			c.mutex.Unlock()
			return res, nil
		}
		c.mutex.Unlock()
		res, err := newResolver(name, c.registry, c.pickerBuilder, c.timeout, c.logger)
		if err != nil {
			return nil, err
		}
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if c.closed {
			res.Close()
			return nil, ErrClientClosed
		}
		c.resolvers[name] = res
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("linkiot: resolving %s: %w", name, err)
	}
	return val.(*resolver), nil
}

// conn returns the rpc.Client of endpoint. Concurrent first uses dial once.
func (c *Client) conn(endpoint string) (*rpc.Client, error) {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil, ErrClientClosed
	}
	conn, ok := c.conns[endpoint]
	c.mutex.Unlock()
	if ok {
		return conn, nil
	}
	val, err, _ := c.group.Do("conn:"+endpoint, func() (interface{}, error) {
		c.mutex.Lock()
		if conn, ok := c.conns[endpoint]; ok {
			c.mutex.Unlock()
			return conn, nil
		}
		c.mutex.Unlock()
		opts := append([]option.Option[rpc.Client]{rpc.ClientWithLogger(c.logger)}, c.rpcOpts...)
		conn, err := rpc.NewClient(endpoint, opts...)
		if err != nil {
			return nil, err
		}
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if c.closed {
			_ = conn.Close()
			return nil, ErrClientClosed
		}
		for typ, codec := range c.codecs {
			if err = conn.RegisterDefaultCodec(typ, codec); err != nil {
				c.logger.Warn("linkiot: registering codec failed",
					zap.String("endpoint", endpoint), zap.Error(err))
			}
		}
		c.conns[endpoint] = conn
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*rpc.Client), nil
}

// registerDefaultCodec registers codec on every current and future endpoint.
func (c *Client) registerDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.codecs[typ]; ok {
		return fmt.Errorf("%w: %s", eventbus.ErrCodecAlreadyRegistered, typ)
	}
	c.codecs[typ] = codec
	for _, conn := range c.conns {
		if err := conn.RegisterDefaultCodec(typ, codec); err != nil &&
			!errors.Is(err, eventbus.ErrCodecAlreadyRegistered) {
			return err
		}
	}
	return nil
}

// Close stops watching the registry and closes every connection. The
// registry itself is left open.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, res := range c.resolvers {
		res.Close()
	}
	var errs []error
	for _, conn := range c.conns {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}

var _ eventbus.Client = (*serviceBus)(nil)

// serviceBus routes each request to one instance of service. The address
// given to Request is the service name and is replaced by the bus address
// of the picked instance.
type serviceBus struct {
	client   *Client
	service  string
	resolver *resolver
}

func (b *serviceBus) Request(ctx context.Context, address string, body any,
	opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == nil {
		handler = func(*eventbus.Message, error) {}
	}
	picked, err := b.resolver.Pick(loadbalance.PickInfo{Ctx: ctx, Service: b.service})
	if err != nil {
		go handler(nil, err)
		return
	}
	done := func(err error) {
		if picked.Done != nil {
			picked.Done(loadbalance.DoneInfo{Err: err})
		}
	}
	go func() {
		conn, err := b.client.conn(picked.Instance.Endpoint)
		if err != nil {
			done(err)
			handler(nil, err)
			return
		}
		conn.Request(ctx, picked.Instance.Address, body, opts, func(reply *eventbus.Message, err error) {
			done(err)
			handler(reply, err)
		})
	}()
}

func (b *serviceBus) RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error {
	return b.client.registerDefaultCodec(typ, codec)
}
